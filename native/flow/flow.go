// Package flow is the rate-limited exchange gateway. Trades are split into an
// initiation step that consumes ramp capacity and escrows the input, and a
// settlement step that executes the venue swap and delivers the proceeds.
package flow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/fixed"
	"cdpbank/native/token"
	"cdpbank/storage"
)

var (
	ErrNilState    = errors.New("flow: state not configured")
	ErrLotZero     = errors.New("flow: no capacity available")
	ErrUnsupported = errors.New("flow: unsupported ramp setting")
	ErrUnknownFlow = errors.New("flow: unknown flow record")
	ErrInvalidRamp = errors.New("flow: invalid ramp")
)

const (
	moduleName   = "flow"
	rampPrefix   = "flow/ramp"
	recordPrefix = "flow/record"
	nonceKey     = "flow/nonce"
)

// recordSpace namespaces flow record identifiers.
var recordSpace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("cdpbank/flow"))

// Status tracks a record through its two phases.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusSettled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Record is a trade between initiation and settlement.
type Record struct {
	ID        string
	Consumer  ethcommon.Address
	AssetIn   string
	Requested *uint256.Int
	AmountIn  *uint256.Int
	AssetOut  string
	MinOut    *uint256.Int
	AmountOut *uint256.Int
	Status    Status
	Created   uint64
	Settled   uint64
}

// Venue is the narrow capability the gateway trades through.
type Venue interface {
	Swap(trader ethcommon.Address, assetIn string, amountIn *uint256.Int, assetOut string, minOut *uint256.Int) (*uint256.Int, error)
	ReserveOf(asset string) (*uint256.Int, error)
}

// Tokens moves escrow and proceeds. TotalSupply provides the relative base
// for the issuance consumer.
type Tokens interface {
	Transfer(asset string, from, to ethcommon.Address, amount *uint256.Int) error
	TotalSupply(asset string) (*uint256.Int, error)
}

type nonceRecord struct {
	Next uint64
}

// Engine holds escrowed inputs under its own address.
type Engine struct {
	address ethcommon.Address
	issuer  ethcommon.Address
	kv      nativecommon.KV
	bound   bool
	venue   Venue
	tokens  Tokens
	pauses  nativecommon.PauseView
	clock   func() time.Time
	logger  *slog.Logger
}

// NewEngine returns a gateway operating from address. Ramps registered for
// issuer measure their relative bucket against the total supply of the asset
// instead of the venue reserve.
func NewEngine(address, issuer ethcommon.Address) *Engine {
	return &Engine{address: address, issuer: issuer, clock: time.Now, logger: slog.Default()}
}

func (e *Engine) Address() ethcommon.Address { return e.address }

// Issuer returns the reserved issuance consumer.
func (e *Engine) Issuer() ethcommon.Address { return e.issuer }

func (e *Engine) SetState(db storage.Database) {
	e.kv = nativecommon.NewKV(db)
	e.bound = db != nil
}

func (e *Engine) SetVenue(v Venue) { e.venue = v }

func (e *Engine) SetTokens(t Tokens) { e.tokens = t }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetClock overrides the time source. Intended for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	if clock != nil {
		e.clock = clock
	}
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *Engine) now() uint64 {
	ts := e.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || !e.bound || e.venue == nil || e.tokens == nil {
		return ErrNilState
	}
	return nil
}

func rampKey(consumer ethcommon.Address, asset string) []byte {
	return nativecommon.Key(rampPrefix, consumer.Bytes(), []byte(token.Normalize(asset)))
}

func recordKey(id string) []byte {
	return nativecommon.Key(recordPrefix, []byte(id))
}

// Curb installs the ramp for consumer selling asset. The bucket state of an
// existing ramp is kept; only the rates and window change.
func (e *Engine) Curb(consumer ethcommon.Address, asset string, ramp Ramp) error {
	if err := e.ready(); err != nil {
		return err
	}
	if ramp.Del != 0 {
		return fmt.Errorf("%w: del=%d", ErrUnsupported, ramp.Del)
	}
	if ramp.Vel == nil || ramp.Rel == nil {
		return ErrInvalidRamp
	}
	current, err := e.Ramp(consumer, asset)
	if err != nil {
		return err
	}
	next := ramp.Clone()
	if current != nil {
		next.Bel = current.Bel
		next.Avail = cloneInt(current.Avail)
	}
	if ramp.Bel != 0 {
		next.Bel = ramp.Bel
	}
	return e.kv.Save(rampKey(consumer, asset), next)
}

// Ramp returns the configured ramp or nil.
func (e *Engine) Ramp(consumer ethcommon.Address, asset string) (*Ramp, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ramp := new(Ramp)
	ok, err := e.kv.Load(rampKey(consumer, asset), ramp)
	if err != nil || !ok {
		return nil, err
	}
	return ramp, nil
}

func (e *Engine) base(consumer ethcommon.Address, asset string) (*uint256.Int, error) {
	if consumer == e.issuer {
		return e.tokens.TotalSupply(asset)
	}
	return e.venue.ReserveOf(asset)
}

// Capacity reports the amount consumer may sell of asset right now.
func (e *Engine) Capacity(consumer ethcommon.Address, asset string) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ramp, err := e.Ramp(consumer, asset)
	if err != nil {
		return nil, err
	}
	if ramp == nil {
		return fixed.Zero(), nil
	}
	base, err := e.base(consumer, asset)
	if err != nil {
		return nil, err
	}
	return ramp.Capacity(e.now(), base)
}

// Take consumes up to amount of consumer's capacity for asset and returns
// what was granted. It fails with ErrLotZero when nothing is available.
func (e *Engine) Take(consumer ethcommon.Address, asset string, amount *uint256.Int) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ramp, err := e.Ramp(consumer, asset)
	if err != nil {
		return nil, err
	}
	if ramp == nil {
		return nil, fmt.Errorf("%w: no ramp for %s", ErrLotZero, token.Normalize(asset))
	}
	base, err := e.base(consumer, asset)
	if err != nil {
		return nil, err
	}
	now := e.now()
	capacity, err := ramp.Capacity(now, base)
	if err != nil {
		return nil, fmt.Errorf("flow: capacity: %w", err)
	}
	granted := fixed.Min(amount, capacity)
	if granted.IsZero() {
		return nil, ErrLotZero
	}
	ramp.Avail, _ = fixed.Sub(capacity, granted)
	ramp.Bel = now
	if err := e.kv.Save(rampKey(consumer, asset), ramp); err != nil {
		return nil, err
	}
	return granted, nil
}

func (e *Engine) nextID(consumer ethcommon.Address) (string, error) {
	rec := nonceRecord{}
	if _, err := e.kv.Load(nativecommon.Key(nonceKey), &rec); err != nil {
		return "", err
	}
	n := rec.Next
	rec.Next++
	if err := e.kv.Save(nativecommon.Key(nonceKey), &rec); err != nil {
		return "", err
	}
	seed := make([]byte, 0, ethcommon.AddressLength+8)
	seed = append(seed, consumer.Bytes()...)
	seed = binary.BigEndian.AppendUint64(seed, n)
	return uuid.NewSHA1(recordSpace, seed).String(), nil
}

// Trade sells up to amount of assetIn held by consumer for assetOut. The
// amount is capped by the consumer's ramp and escrowed with the gateway; the
// minimum output is scaled down in proportion to the cap.
func (e *Engine) Trade(consumer ethcommon.Address, assetIn string, amount *uint256.Int, assetOut string, minOut *uint256.Int) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrLotZero
	}
	assetIn, assetOut = token.Normalize(assetIn), token.Normalize(assetOut)
	granted, err := e.Take(consumer, assetIn, amount)
	if err != nil {
		return nil, err
	}
	scaledMin := fixed.Zero()
	if minOut != nil && !minOut.IsZero() {
		if scaledMin, err = fixed.MulDiv(minOut, granted, amount); err != nil {
			return nil, fmt.Errorf("flow: min out: %w", err)
		}
	}
	if err := e.tokens.Transfer(assetIn, consumer, e.address, granted); err != nil {
		return nil, err
	}
	id, err := e.nextID(consumer)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		ID:        id,
		Consumer:  consumer,
		AssetIn:   assetIn,
		Requested: cloneInt(amount),
		AmountIn:  granted,
		AssetOut:  assetOut,
		MinOut:    scaledMin,
		AmountOut: fixed.Zero(),
		Status:    StatusPending,
		Created:   e.now(),
	}
	if err := e.kv.Save(recordKey(id), rec); err != nil {
		return nil, err
	}
	e.logger.Info("flow: trade initiated",
		slog.String("id", id),
		slog.String("consumer", consumer.Hex()),
		slog.String("asset_in", assetIn),
		slog.String("amount_in", granted.Dec()),
		slog.String("asset_out", assetOut))
	return rec, nil
}

// Record loads a flow record.
func (e *Engine) Record(id string) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec := new(Record)
	ok, err := e.kv.Load(recordKey(id), rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, id)
	}
	return rec, nil
}

// Settle executes the venue swap for a pending record and delivers the
// proceeds to its consumer. Settling a settled record returns it unchanged.
func (e *Engine) Settle(id string) (*Record, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec, err := e.Record(id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusSettled {
		return rec, nil
	}
	out, err := e.venue.Swap(e.address, rec.AssetIn, rec.AmountIn, rec.AssetOut, rec.MinOut)
	if err != nil {
		return nil, fmt.Errorf("flow: settle %s: %w", id, err)
	}
	if err := e.tokens.Transfer(rec.AssetOut, e.address, rec.Consumer, out); err != nil {
		return nil, err
	}
	rec.AmountOut = out
	rec.Status = StatusSettled
	rec.Settled = e.now()
	if err := e.kv.Save(recordKey(id), rec); err != nil {
		return nil, err
	}
	e.logger.Info("flow: trade settled",
		slog.String("id", id),
		slog.String("amount_out", out.Dec()))
	return rec, nil
}
