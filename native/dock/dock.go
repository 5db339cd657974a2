// Package dock moves value between external token balances and the ledger's
// internal gem and joy credits. A collateral class may be backed by several
// token representations; custody is tracked per representation.
package dock

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/fixed"
	"cdpbank/native/token"
	"cdpbank/native/vat"
	"cdpbank/storage"
)

var (
	ErrNilState     = errors.New("dock: state not configured")
	ErrNotBound     = errors.New("dock: asset not bound to class")
	ErrMissingAsset = errors.New("dock: insufficient custody for asset")
	ErrInvalidAsset = errors.New("dock: asset symbol required")
)

const (
	moduleName    = "dock"
	bindingPrefix = "dock/assets"
	custodyPrefix = "dock/custody"
)

// Ledger is the subset of the ledger engine the dock drives.
type Ledger interface {
	Wards(who ethcommon.Address) (bool, error)
	Ilk(id string) (*vat.Ilk, error)
	Slip(caller ethcommon.Address, id string, usr ethcommon.Address, wad *big.Int) error
	Move(caller, src, dst ethcommon.Address, rad *uint256.Int) error
}

// Tokens is the external asset ledger.
type Tokens interface {
	BalanceOf(asset string, holder ethcommon.Address) (*uint256.Int, error)
	Transfer(asset string, from, to ethcommon.Address, amount *uint256.Int) error
	Mint(asset string, to ethcommon.Address, amount *uint256.Int) error
	Burn(asset string, from ethcommon.Address, amount *uint256.Int) error
}

type bindingRecord struct {
	Assets []string
}

type custodyRecord struct {
	Amount *uint256.Int
}

// Engine holds tokens on behalf of the ledger under its own address.
type Engine struct {
	address ethcommon.Address
	stable  string
	kv      nativecommon.KV
	bound   bool
	vat     Ledger
	tokens  Tokens
	pauses  nativecommon.PauseView
	logger  *slog.Logger
}

// NewEngine returns a dock operating from address. Joy crosses the boundary
// as the stable asset.
func NewEngine(address ethcommon.Address, stable string) *Engine {
	return &Engine{address: address, stable: token.Normalize(stable), logger: slog.Default()}
}

// Address returns the account that holds custody.
func (e *Engine) Address() ethcommon.Address { return e.address }

// Stable returns the symbol joy is exported as.
func (e *Engine) Stable() string { return e.stable }

func (e *Engine) SetState(db storage.Database) {
	e.kv = nativecommon.NewKV(db)
	e.bound = db != nil
}

func (e *Engine) SetLedger(l Ledger) { e.vat = l }

func (e *Engine) SetTokens(t Tokens) { e.tokens = t }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *Engine) ready() error {
	if e == nil || !e.bound || e.vat == nil || e.tokens == nil {
		return ErrNilState
	}
	return nil
}

func bindingKey(id string) []byte {
	return nativecommon.Key(bindingPrefix, []byte(vat.NormalizeIlk(id)))
}

func custodyKey(id, asset string) []byte {
	return nativecommon.Key(custodyPrefix, []byte(vat.NormalizeIlk(id)), []byte(asset))
}

// Bind registers asset as a representation of the collateral class.
func (e *Engine) Bind(caller ethcommon.Address, id, asset string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ok, err := e.vat.Wards(caller)
	if err != nil {
		return err
	}
	if !ok {
		return vat.ErrNotAuthorized
	}
	asset = token.Normalize(asset)
	if asset == "" {
		return ErrInvalidAsset
	}
	if _, err := e.vat.Ilk(id); err != nil {
		return err
	}
	assets, err := e.Assets(id)
	if err != nil {
		return err
	}
	if slices.Contains(assets, asset) {
		return nil
	}
	return e.kv.Save(bindingKey(id), &bindingRecord{Assets: append(assets, asset)})
}

// Assets lists the representations bound to a class in binding order.
func (e *Engine) Assets(id string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec := bindingRecord{}
	if _, err := e.kv.Load(bindingKey(id), &rec); err != nil {
		return nil, err
	}
	return rec.Assets, nil
}

// Custody returns how much of asset the dock holds for the class.
func (e *Engine) Custody(id, asset string) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec := custodyRecord{}
	if _, err := e.kv.Load(custodyKey(id, token.Normalize(asset)), &rec); err != nil {
		return nil, err
	}
	if rec.Amount == nil {
		return fixed.Zero(), nil
	}
	return rec.Amount, nil
}

func (e *Engine) requireBound(id, asset string) error {
	assets, err := e.Assets(id)
	if err != nil {
		return err
	}
	if !slices.Contains(assets, asset) {
		return fmt.Errorf("%w: %s/%s", ErrNotBound, vat.NormalizeIlk(id), asset)
	}
	return nil
}

// JoinGem deposits wad of asset from usr and credits usr's gem balance.
func (e *Engine) JoinGem(usr ethcommon.Address, id, asset string, wad *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	asset = token.Normalize(asset)
	if err := e.requireBound(id, asset); err != nil {
		return err
	}
	held, err := e.Custody(id, asset)
	if err != nil {
		return err
	}
	next, err := fixed.Add(held, wad)
	if err != nil {
		return fmt.Errorf("dock: join %s: %w", asset, err)
	}
	if err := e.tokens.Transfer(asset, usr, e.address, wad); err != nil {
		return err
	}
	if err := e.kv.Save(custodyKey(id, asset), &custodyRecord{Amount: next}); err != nil {
		return err
	}
	return e.vat.Slip(e.address, id, usr, wad.ToBig())
}

// ExitGem debits usr's gem balance and releases wad of asset to usr.
func (e *Engine) ExitGem(usr ethcommon.Address, id, asset string, wad *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	asset = token.Normalize(asset)
	if err := e.requireBound(id, asset); err != nil {
		return err
	}
	held, err := e.Custody(id, asset)
	if err != nil {
		return err
	}
	if held.Lt(wad) {
		return fmt.Errorf("%w: %s holds %s", ErrMissingAsset, asset, held.Dec())
	}
	next, _ := fixed.Sub(held, wad)
	if err := e.vat.Slip(e.address, id, usr, new(big.Int).Neg(wad.ToBig())); err != nil {
		return err
	}
	if err := e.kv.Save(custodyKey(id, asset), &custodyRecord{Amount: next}); err != nil {
		return err
	}
	return e.tokens.Transfer(asset, e.address, usr, wad)
}

// JoinJoy burns wad of the stable asset held by usr and credits the
// equivalent joy.
func (e *Engine) JoinJoy(usr ethcommon.Address, wad *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	rad, err := fixed.Mul(wad, fixed.RAY())
	if err != nil {
		return fmt.Errorf("dock: join joy: %w", err)
	}
	if err := e.tokens.Burn(e.stable, usr, wad); err != nil {
		return err
	}
	return e.vat.Move(e.address, e.address, usr, rad)
}

// ExitJoy debits wad worth of usr's joy and mints the stable asset to usr.
func (e *Engine) ExitJoy(usr ethcommon.Address, wad *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	rad, err := fixed.Mul(wad, fixed.RAY())
	if err != nil {
		return fmt.Errorf("dock: exit joy: %w", err)
	}
	if err := e.vat.Move(e.address, usr, e.address, rad); err != nil {
		return err
	}
	e.logger.Debug("dock: joy exited", slog.String("usr", usr.Hex()), slog.String("wad", wad.Dec()))
	return e.tokens.Mint(e.stable, usr, wad)
}
