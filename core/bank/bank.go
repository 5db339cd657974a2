// Package bank composes the ledger, dock, gateway, venue and settlement
// engines into a single serialized state machine. Every call runs against a
// write overlay of the root database and is committed only if it succeeds.
package bank

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/dock"
	"cdpbank/native/feed"
	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/token"
	"cdpbank/native/vat"
	"cdpbank/native/venue"
	"cdpbank/native/vow"
	"cdpbank/observability"
	"cdpbank/observability/otel"
	"cdpbank/storage"
)

var ErrClosed = errors.New("bank: closed")

// Addresses are the ledger accounts of the bank's own components.
type Addresses struct {
	Admin  ethcommon.Address
	Vow    ethcommon.Address
	Dock   ethcommon.Address
	Flow   ethcommon.Address
	Issuer ethcommon.Address
	Venue  ethcommon.Address
}

// Derive returns the account for a component name.
func Derive(name string) ethcommon.Address {
	return ethcommon.BytesToAddress(crypto.Keccak256([]byte("cdpbank/" + name)))
}

// DefaultAddresses derives every component account from its name.
func DefaultAddresses() Addresses {
	return Addresses{
		Admin:  Derive("admin"),
		Vow:    Derive("vow"),
		Dock:   Derive("dock"),
		Flow:   Derive("flow"),
		Issuer: Derive("issuer"),
		Venue:  Derive("venue"),
	}
}

// Config fixes the assets and accounts the bank is built around.
type Config struct {
	Stable    string
	Risk      string
	Bar       *uint256.Int
	Addresses Addresses
}

// Tx exposes the engines bound to one call's overlay. It must not be retained
// after the callback returns.
type Tx struct {
	Vat    *vat.Engine
	Dock   *dock.Engine
	Flow   *flow.Engine
	Venue  *venue.Engine
	Vow    *vow.Engine
	Tokens *token.Ledger
	Feeds  *feed.Store
}

// Bank serializes access to the engines.
type Bank struct {
	mu      sync.Mutex
	db      storage.Database
	cfg     Config
	pauses  *nativecommon.Pauses
	clock   func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.BankMetrics
	kinds   observability.Kinds
	closed  bool
}

// New returns a bank over db.
func New(db storage.Database, cfg Config) *Bank {
	if cfg.Addresses == (Addresses{}) {
		cfg.Addresses = DefaultAddresses()
	}
	if cfg.Bar == nil {
		cfg.Bar = fixed.Zero()
	}
	cfg.Stable = token.Normalize(cfg.Stable)
	cfg.Risk = token.Normalize(cfg.Risk)
	return &Bank{
		db:      db,
		cfg:     cfg,
		pauses:  nativecommon.NewPauses(),
		clock:   time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer("cdpbank/bank"),
		metrics: observability.Bank(),
		kinds:   ErrorKinds(),
	}
}

// ErrorKinds labels the failure taxonomy for metrics and transport mapping.
func ErrorKinds() observability.Kinds {
	return observability.Kinds{
		{Err: vat.ErrNotAuthorized, Label: "not_authorized"},
		{Err: vat.ErrOverCeiling, Label: "over_ceiling"},
		{Err: vat.ErrUnsafe, Label: "unsafe"},
		{Err: vat.ErrBelowDust, Label: "below_dust"},
		{Err: vow.ErrMarkZero, Label: "mark_zero"},
		{Err: flow.ErrLotZero, Label: "lot_zero"},
		{Err: dock.ErrMissingAsset, Label: "missing_asset"},
		{Err: fixed.ErrArithmetic, Label: "arithmetic"},
		{Err: nativecommon.ErrModulePaused, Label: "paused"},
	}
}

func (b *Bank) SetClock(clock func() time.Time) {
	if clock != nil {
		b.clock = clock
	}
}

func (b *Bank) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

func (b *Bank) SetTracer(tracer trace.Tracer) {
	if tracer != nil {
		b.tracer = tracer
	}
}

// Config returns the bank configuration.
func (b *Bank) Config() Config { return b.cfg }

// Addresses returns the component accounts.
func (b *Bank) Addresses() Addresses { return b.cfg.Addresses }

// Pause toggles the pause flag of an engine module ("vat", "dock", "flow",
// "vow").
func (b *Bank) Pause(module string, paused bool) {
	b.pauses.Set(module, paused)
	b.logger.Info("bank: pause updated", slog.String("module", module), slog.Bool("paused", paused))
}

// Close releases the underlying database. Later calls fail with ErrClosed.
func (b *Bank) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.db.Close()
}

func (b *Bank) bind(db storage.Database) *Tx {
	addrs := b.cfg.Addresses
	tokens := token.NewLedger(db)
	feeds := feed.NewStore(db)

	v := vat.NewEngine(addrs.Vow)
	v.SetState(vat.NewKVState(db))
	v.SetFeeds(feeds)
	v.SetPauses(b.pauses)
	v.SetClock(b.clock)
	v.SetLogger(b.logger)

	d := dock.NewEngine(addrs.Dock, b.cfg.Stable)
	d.SetState(db)
	d.SetLedger(v)
	d.SetTokens(tokens)
	d.SetPauses(b.pauses)
	d.SetLogger(b.logger)

	pools := venue.NewEngine(addrs.Venue)
	pools.SetState(db)
	pools.SetTokens(tokens)
	pools.SetLogger(b.logger)

	f := flow.NewEngine(addrs.Flow, addrs.Issuer)
	f.SetState(db)
	f.SetVenue(pools)
	f.SetTokens(tokens)
	f.SetPauses(b.pauses)
	f.SetClock(b.clock)
	f.SetLogger(b.logger)

	w := vow.NewEngine(addrs.Vow, vow.Config{Bar: b.cfg.Bar, Stable: b.cfg.Stable, Risk: b.cfg.Risk})
	w.SetLedger(v)
	w.SetDock(d)
	w.SetGateway(f)
	w.SetTokens(tokens)
	w.SetPricer(pools)
	w.SetPauses(b.pauses)
	w.SetLogger(b.logger)

	return &Tx{Vat: v, Dock: d, Flow: f, Venue: pools, Vow: w, Tokens: tokens, Feeds: feeds}
}

// Update runs fn as one atomic call. Writes made through tx are committed
// when fn returns nil and discarded otherwise.
func (b *Bank) Update(ctx context.Context, op string, fn func(tx *Tx) error) error {
	return b.run(ctx, op, true, fn)
}

// View runs fn against the current state and discards any writes.
func (b *Bank) View(ctx context.Context, op string, fn func(tx *Tx) error) error {
	return b.run(ctx, op, false, fn)
}

func (b *Bank) run(ctx context.Context, op string, commit bool, fn func(tx *Tx) error) (err error) {
	start := time.Now()
	_, span := b.tracer.Start(ctx, "bank."+op,
		trace.WithAttributes(attribute.Bool("bank.write", commit)))
	defer span.End()
	defer func() {
		outcome := b.kinds.Label(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.String("bank.outcome", outcome))
		b.metrics.Observe(op, outcome, time.Since(start))
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	overlay := storage.NewOverlay(b.db)
	if err = fn(b.bind(overlay)); err != nil {
		overlay.Discard()
		if commit {
			b.logger.Debug("bank: call rolled back", slog.String("op", op), slog.Any("error", err))
		}
		return err
	}
	if !commit {
		overlay.Discard()
		return nil
	}
	if err = overlay.Commit(); err != nil {
		return err
	}
	if g, gerr := vat.NewKVState(b.db).GetGlobals(); gerr == nil {
		b.metrics.SetDebt(units(g.Debt, fixed.RadDecimals))
	}
	return nil
}
