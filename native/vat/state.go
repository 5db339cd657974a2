package vat

import (
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/fixed"
	"cdpbank/storage"
)

// State is the persistence surface the engine relies on.
type State interface {
	GetIlk(id string) (*Ilk, bool, error)
	PutIlk(id string, ilk *Ilk) error
	Ilks() ([]string, error)
	GetUrn(id string, owner ethcommon.Address) (*Urn, error)
	PutUrn(id string, owner ethcommon.Address, urn *Urn) error
	Owners(id string) ([]ethcommon.Address, error)
	GetGem(id string, owner ethcommon.Address) (*uint256.Int, error)
	PutGem(id string, owner ethcommon.Address, amount *uint256.Int) error
	GetJoy(owner ethcommon.Address) (*uint256.Int, error)
	PutJoy(owner ethcommon.Address, amount *uint256.Int) error
	GetSin(owner ethcommon.Address) (*uint256.Int, error)
	PutSin(owner ethcommon.Address, amount *uint256.Int) error
	GetGlobals() (*Globals, error)
	PutGlobals(g *Globals) error
	IsWard(who ethcommon.Address) (bool, error)
	SetWard(who ethcommon.Address, on bool) error
	WardCount() (uint64, error)
}

const (
	ilkPrefix     = "vat/ilk"
	ilkListPrefix = "vat/ilks"
	urnPrefix     = "vat/urn"
	ownerPrefix   = "vat/owners"
	gemPrefix     = "vat/gem"
	joyPrefix     = "vat/joy"
	sinPrefix     = "vat/sin"
	globalPrefix  = "vat/globals"
	wardPrefix    = "vat/ward"
	wardCountKey  = "vat/wards"
)

// NormalizeIlk canonicalises a collateral class identifier.
func NormalizeIlk(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// PositionKey derives the storage identity of a position from its class and
// owner.
func PositionKey(id string, owner ethcommon.Address) []byte {
	return nativecommon.Key(urnPrefix, []byte(NormalizeIlk(id)), owner.Bytes())
}

type amountRecord struct {
	Amount *uint256.Int
}

type ownersRecord struct {
	Owners []ethcommon.Address
}

type ilksRecord struct {
	IDs []string
}

type wardRecord struct {
	On bool
}

type countRecord struct {
	Count uint64
}

// KVState stores ledger records RLP encoded under hashed keys.
type KVState struct {
	kv nativecommon.KV
}

// NewKVState binds the ledger state to db.
func NewKVState(db storage.Database) *KVState {
	return &KVState{kv: nativecommon.NewKV(db)}
}

func (s *KVState) GetIlk(id string) (*Ilk, bool, error) {
	ilk := new(Ilk)
	ok, err := s.kv.Load(nativecommon.Key(ilkPrefix, []byte(NormalizeIlk(id))), ilk)
	if err != nil || !ok {
		return nil, false, err
	}
	return ilk, true, nil
}

func (s *KVState) PutIlk(id string, ilk *Ilk) error {
	id = NormalizeIlk(id)
	key := nativecommon.Key(ilkPrefix, []byte(id))
	exists, err := s.kv.Load(key, new(Ilk))
	if err != nil {
		return err
	}
	if err := s.kv.Save(key, ilk); err != nil {
		return err
	}
	if exists {
		return nil
	}
	ids, err := s.Ilks()
	if err != nil {
		return err
	}
	return s.kv.Save(nativecommon.Key(ilkListPrefix), &ilksRecord{IDs: append(ids, id)})
}

// Ilks lists every initialised class in initialisation order.
func (s *KVState) Ilks() ([]string, error) {
	rec := ilksRecord{}
	if _, err := s.kv.Load(nativecommon.Key(ilkListPrefix), &rec); err != nil {
		return nil, err
	}
	return rec.IDs, nil
}

func (s *KVState) GetUrn(id string, owner ethcommon.Address) (*Urn, error) {
	urn := new(Urn)
	ok, err := s.kv.Load(PositionKey(id, owner), urn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emptyUrn(), nil
	}
	if urn.Ink == nil {
		urn.Ink = fixed.Zero()
	}
	if urn.Art == nil {
		urn.Art = fixed.Zero()
	}
	return urn, nil
}

// PutUrn writes the position and indexes its owner the first time it is
// seen.
func (s *KVState) PutUrn(id string, owner ethcommon.Address, urn *Urn) error {
	key := PositionKey(id, owner)
	seen, err := s.kv.Load(key, new(Urn))
	if err != nil {
		return err
	}
	if err := s.kv.Save(key, urn); err != nil {
		return err
	}
	if seen {
		return nil
	}
	owners, err := s.Owners(id)
	if err != nil {
		return err
	}
	ownerKey := nativecommon.Key(ownerPrefix, []byte(NormalizeIlk(id)))
	return s.kv.Save(ownerKey, &ownersRecord{Owners: append(owners, owner)})
}

// Owners lists every address that has ever held a position in the class.
func (s *KVState) Owners(id string) ([]ethcommon.Address, error) {
	rec := ownersRecord{}
	if _, err := s.kv.Load(nativecommon.Key(ownerPrefix, []byte(NormalizeIlk(id))), &rec); err != nil {
		return nil, err
	}
	return rec.Owners, nil
}

func (s *KVState) amount(key []byte) (*uint256.Int, error) {
	rec := amountRecord{}
	ok, err := s.kv.Load(key, &rec)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Amount == nil {
		return fixed.Zero(), nil
	}
	return rec.Amount, nil
}

func (s *KVState) GetGem(id string, owner ethcommon.Address) (*uint256.Int, error) {
	return s.amount(nativecommon.Key(gemPrefix, []byte(NormalizeIlk(id)), owner.Bytes()))
}

func (s *KVState) PutGem(id string, owner ethcommon.Address, amount *uint256.Int) error {
	return s.kv.Save(nativecommon.Key(gemPrefix, []byte(NormalizeIlk(id)), owner.Bytes()), &amountRecord{Amount: amount})
}

func (s *KVState) GetJoy(owner ethcommon.Address) (*uint256.Int, error) {
	return s.amount(nativecommon.Key(joyPrefix, owner.Bytes()))
}

func (s *KVState) PutJoy(owner ethcommon.Address, amount *uint256.Int) error {
	return s.kv.Save(nativecommon.Key(joyPrefix, owner.Bytes()), &amountRecord{Amount: amount})
}

func (s *KVState) GetSin(owner ethcommon.Address) (*uint256.Int, error) {
	return s.amount(nativecommon.Key(sinPrefix, owner.Bytes()))
}

func (s *KVState) PutSin(owner ethcommon.Address, amount *uint256.Int) error {
	return s.kv.Save(nativecommon.Key(sinPrefix, owner.Bytes()), &amountRecord{Amount: amount})
}

func (s *KVState) GetGlobals() (*Globals, error) {
	g := new(Globals)
	ok, err := s.kv.Load(nativecommon.Key(globalPrefix), g)
	if err != nil {
		return nil, err
	}
	if !ok {
		return newGlobals(), nil
	}
	return g, nil
}

func (s *KVState) PutGlobals(g *Globals) error {
	return s.kv.Save(nativecommon.Key(globalPrefix), g)
}

func (s *KVState) IsWard(who ethcommon.Address) (bool, error) {
	rec := wardRecord{}
	if _, err := s.kv.Load(nativecommon.Key(wardPrefix, who.Bytes()), &rec); err != nil {
		return false, err
	}
	return rec.On, nil
}

func (s *KVState) SetWard(who ethcommon.Address, on bool) error {
	current, err := s.IsWard(who)
	if err != nil {
		return err
	}
	if current == on {
		return nil
	}
	count, err := s.WardCount()
	if err != nil {
		return err
	}
	if on {
		count++
	} else if count > 0 {
		count--
	}
	if err := s.kv.Save(nativecommon.Key(wardPrefix, who.Bytes()), &wardRecord{On: on}); err != nil {
		return err
	}
	return s.kv.Save(nativecommon.Key(wardCountKey), &countRecord{Count: count})
}

func (s *KVState) WardCount() (uint64, error) {
	rec := countRecord{}
	if _, err := s.kv.Load(nativecommon.Key(wardCountKey), &rec); err != nil {
		return 0, err
	}
	return rec.Count, nil
}
