// Package vat implements the collateralized-debt ledger: collateral classes,
// per-owner positions, internal stable (joy) and deficit (sin) balances and
// the interest accumulator.
package vat

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/feed"
	"cdpbank/native/fixed"
)

const moduleName = "vat"

// Engine applies ledger state transitions against the configured State.
type Engine struct {
	state     State
	feeds     feed.Source
	pauses    nativecommon.PauseView
	collector ethcommon.Address
	clock     func() time.Time
	logger    *slog.Logger
}

// NewEngine constructs a ledger engine. Accrued interest is credited to
// collector as joy.
func NewEngine(collector ethcommon.Address) *Engine {
	return &Engine{
		collector: collector,
		clock:     time.Now,
		logger:    slog.Default(),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetFeeds configures the price source used to refresh collateral marks.
func (e *Engine) SetFeeds(src feed.Source) { e.feeds = src }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetClock overrides the time source. Intended for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	if e == nil || clock == nil {
		return
	}
	e.clock = clock
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Collector returns the account that receives accrued interest.
func (e *Engine) Collector() ethcommon.Address { return e.collector }

func (e *Engine) now() uint64 {
	ts := e.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nil
}

func (e *Engine) auth(caller ethcommon.Address) error {
	ok, err := e.state.IsWard(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// Rely grants or revokes administrative rights. While no administrator
// exists the first caller may enrol itself.
func (e *Engine) Rely(caller, who ethcommon.Address, on bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	count, err := e.state.WardCount()
	if err != nil {
		return err
	}
	if count > 0 || caller != who || !on {
		if err := e.auth(caller); err != nil {
			return err
		}
	}
	return e.state.SetWard(who, on)
}

// Wards reports whether who holds administrative rights.
func (e *Engine) Wards(who ethcommon.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.IsWard(who)
}

// Init creates a collateral class with a unit accumulator and zero limits.
func (e *Engine) Init(caller ethcommon.Address, id, tag string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.auth(caller); err != nil {
		return err
	}
	id = NormalizeIlk(id)
	if id == "" {
		return fmt.Errorf("%w: empty class", ErrInvalidParam)
	}
	_, exists, err := e.state.GetIlk(id)
	if err != nil {
		return err
	}
	if exists {
		return ErrIlkExists
	}
	e.logger.Info("vat: class initialised", slog.String("ilk", id), slog.String("tag", tag))
	return e.state.PutIlk(id, newIlk(tag, e.now()))
}

// File sets a global parameter: ceil (rad), par (ray) or way (ray).
func (e *Engine) File(caller ethcommon.Address, key string, value *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.auth(caller); err != nil {
		return err
	}
	if value == nil {
		return ErrInvalidParam
	}
	g, err := e.state.GetGlobals()
	if err != nil {
		return err
	}
	switch key {
	case "ceil":
		g.Ceil = cloneInt(value)
	case "par":
		if value.IsZero() {
			return fmt.Errorf("%w: par must be positive", ErrInvalidParam)
		}
		g.Par = cloneInt(value)
	case "way":
		if value.IsZero() {
			return fmt.Errorf("%w: way must be positive", ErrInvalidParam)
		}
		g.Way = cloneInt(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParam, key)
	}
	return e.state.PutGlobals(g)
}

// Filk sets a class parameter: line, dust (rad), fee, chop, liqr or mark
// (ray). Mark may only be administered for classes without a feed tag.
func (e *Engine) Filk(caller ethcommon.Address, id, key string, value *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.auth(caller); err != nil {
		return err
	}
	if value == nil {
		return ErrInvalidParam
	}
	ilk, err := e.loadIlk(id)
	if err != nil {
		return err
	}
	switch key {
	case "line":
		ilk.Line = cloneInt(value)
	case "dust":
		ilk.Dust = cloneInt(value)
	case "fee":
		if value.Lt(fixed.RAY()) {
			return fmt.Errorf("%w: fee below one", ErrInvalidParam)
		}
		// Fee changes apply from now on; earlier time accrues at the old rate.
		// Interest that no longer fits is forgone so the fee can still be
		// lowered.
		if err := e.accrue(NormalizeIlk(id), ilk); err != nil {
			if !errors.Is(err, fixed.ErrArithmetic) {
				return err
			}
			e.logger.Warn("vat: accrual overflow on fee change, resetting rho",
				slog.String("ilk", NormalizeIlk(id)), slog.String("error", err.Error()))
			ilk.Rho = e.now()
		}
		ilk.Fee = cloneInt(value)
	case "chop":
		if value.Lt(fixed.RAY()) {
			return fmt.Errorf("%w: chop below one", ErrInvalidParam)
		}
		ilk.Chop = cloneInt(value)
	case "liqr":
		if value.IsZero() {
			return fmt.Errorf("%w: liqr must be positive", ErrInvalidParam)
		}
		ilk.Liqr = cloneInt(value)
	case "mark":
		if ilk.Tag != "" {
			return fmt.Errorf("%w: mark is fed by %q", ErrInvalidParam, ilk.Tag)
		}
		ilk.Mark = cloneInt(value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParam, key)
	}
	return e.state.PutIlk(id, ilk)
}

// SetTag rebinds the price feed tag of a class.
func (e *Engine) SetTag(caller ethcommon.Address, id, tag string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.auth(caller); err != nil {
		return err
	}
	ilk, err := e.loadIlk(id)
	if err != nil {
		return err
	}
	ilk.Tag = tag
	return e.state.PutIlk(id, ilk)
}

func (e *Engine) loadIlk(id string) (*Ilk, error) {
	ilk, ok, err := e.state.GetIlk(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIlk, NormalizeIlk(id))
	}
	return ilk, nil
}

// observe returns the mark to value the class with and whether it is backed
// by a fresh reading. A missing or stale reading keeps the last stored mark
// but reports it as not fresh.
func (e *Engine) observe(ilk *Ilk) (*uint256.Int, bool) {
	if ilk.Tag == "" {
		return cloneInt(ilk.Mark), true
	}
	if e.feeds == nil {
		return cloneInt(ilk.Mark), false
	}
	reading, err := e.feeds.Read(ilk.Tag)
	if err != nil || !reading.Fresh(e.now()) {
		return cloneInt(ilk.Mark), false
	}
	return cloneInt(reading.Value), true
}

// Plot refreshes the stored mark of a class from its feed and reports
// whether the reading was fresh.
func (e *Engine) Plot(id string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ilk, err := e.loadIlk(id)
	if err != nil {
		return false, err
	}
	mark, fresh := e.observe(ilk)
	if !fresh || mark.Eq(ilk.Mark) {
		return fresh, nil
	}
	ilk.Mark = mark
	return true, e.state.PutIlk(id, ilk)
}

func (e *Engine) status(ilk *Ilk, urn *Urn, par *uint256.Int, mark *uint256.Int, fresh bool) (Status, error) {
	if urn.Art.IsZero() {
		return StatusSafe, nil
	}
	tab, err := fixed.Mul(urn.Art, ilk.Rack)
	if err != nil {
		return StatusUnsafe, err
	}
	need, err := fixed.Rmul(tab, par)
	if err != nil {
		return StatusUnsafe, err
	}
	need, err = fixed.Rmul(need, ilk.Liqr)
	if err != nil {
		return StatusUnsafe, err
	}
	cut, err := fixed.Mul(urn.Ink, mark)
	if err != nil {
		return StatusUnsafe, err
	}
	if cut.Lt(need) {
		return StatusUnsafe, nil
	}
	if !fresh {
		return StatusSick, nil
	}
	return StatusSafe, nil
}

// Safe classifies a position against the current price reading.
func (e *Engine) Safe(id string, owner ethcommon.Address) (Status, error) {
	if err := e.ready(); err != nil {
		return StatusUnsafe, err
	}
	ilk, err := e.loadIlk(id)
	if err != nil {
		return StatusUnsafe, err
	}
	urn, err := e.state.GetUrn(id, owner)
	if err != nil {
		return StatusUnsafe, err
	}
	g, err := e.state.GetGlobals()
	if err != nil {
		return StatusUnsafe, err
	}
	mark, fresh := e.observe(ilk)
	return e.status(ilk, urn, g.Par, mark, fresh)
}

// Frob adjusts the collateral (dink, wad) and normalized debt (dart, wad) of
// owner's position. Collateral moves between the position and owner's gem
// balance; the debt change times the accumulator moves owner's joy.
func (e *Engine) Frob(caller ethcommon.Address, id string, owner ethcommon.Address, dink, dart *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if dink == nil {
		dink = new(big.Int)
	}
	if dart == nil {
		dart = new(big.Int)
	}
	ilk, err := e.loadIlk(id)
	if err != nil {
		return err
	}
	urn, err := e.state.GetUrn(id, owner)
	if err != nil {
		return err
	}
	g, err := e.state.GetGlobals()
	if err != nil {
		return err
	}

	worse := dink.Sign() < 0 || dart.Sign() > 0
	if worse && caller != owner {
		return ErrNotAuthorized
	}

	ink, err := fixed.ApplyDelta(urn.Ink, dink)
	if err != nil {
		return fmt.Errorf("vat: collateral: %w", err)
	}
	art, err := fixed.ApplyDelta(urn.Art, dart)
	if err != nil {
		return fmt.Errorf("vat: debt: %w", err)
	}
	tart, err := fixed.ApplyDelta(ilk.Tart, dart)
	if err != nil {
		return fmt.Errorf("vat: class debt: %w", err)
	}
	dtab := new(big.Int).Mul(dart, ilk.Rack.ToBig())
	debt, err := fixed.ApplyDelta(g.Debt, dtab)
	if err != nil {
		return fmt.Errorf("vat: total debt: %w", err)
	}

	if dart.Sign() > 0 {
		classDebt, err := fixed.Mul(tart, ilk.Rack)
		if err != nil {
			return fmt.Errorf("vat: class debt: %w", err)
		}
		if classDebt.Gt(ilk.Line) || debt.Gt(g.Ceil) {
			return ErrOverCeiling
		}
	}

	next := &Urn{Ink: ink, Art: art}
	if worse {
		mark, fresh := e.observe(ilk)
		if fresh && !mark.Eq(ilk.Mark) {
			ilk.Mark = mark
		}
		st, err := e.status(ilk, next, g.Par, mark, fresh)
		if err != nil {
			return err
		}
		if st != StatusSafe {
			return ErrUnsafe
		}
	}

	tab, err := fixed.Mul(art, ilk.Rack)
	if err != nil {
		return fmt.Errorf("vat: debt: %w", err)
	}
	if !tab.IsZero() && tab.Lt(ilk.Dust) {
		return ErrBelowDust
	}

	gem, err := e.state.GetGem(id, owner)
	if err != nil {
		return err
	}
	gem, err = fixed.ApplyDelta(gem, new(big.Int).Neg(dink))
	if err != nil {
		return fmt.Errorf("vat: gem balance: %w", err)
	}
	joy, err := e.state.GetJoy(owner)
	if err != nil {
		return err
	}
	joy, err = fixed.ApplyDelta(joy, dtab)
	if err != nil {
		return fmt.Errorf("vat: joy balance: %w", err)
	}

	ilk.Tart = tart
	g.Debt = debt
	if err := e.state.PutIlk(id, ilk); err != nil {
		return err
	}
	if err := e.state.PutUrn(id, owner, next); err != nil {
		return err
	}
	if err := e.state.PutGem(id, owner, gem); err != nil {
		return err
	}
	if err := e.state.PutJoy(owner, joy); err != nil {
		return err
	}
	return e.state.PutGlobals(g)
}

// Grab seizes a whole position: its collateral is credited to gemTo as gem
// and its debt, inflated by the class penalty, is booked as sin on sinTo.
func (e *Engine) Grab(caller ethcommon.Address, id string, owner, gemTo, sinTo ethcommon.Address) (*Seizure, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.auth(caller); err != nil {
		return nil, err
	}
	ilk, err := e.loadIlk(id)
	if err != nil {
		return nil, err
	}
	urn, err := e.state.GetUrn(id, owner)
	if err != nil {
		return nil, err
	}
	g, err := e.state.GetGlobals()
	if err != nil {
		return nil, err
	}
	tab, err := fixed.Mul(urn.Art, ilk.Rack)
	if err != nil {
		return nil, fmt.Errorf("vat: debt: %w", err)
	}
	bill, err := fixed.Rmul(tab, ilk.Chop)
	if err != nil {
		return nil, fmt.Errorf("vat: penalty: %w", err)
	}
	tart, err := fixed.Sub(ilk.Tart, urn.Art)
	if err != nil {
		return nil, fmt.Errorf("vat: class debt: %w", err)
	}
	debt, err := fixed.Sub(g.Debt, tab)
	if err != nil {
		return nil, fmt.Errorf("vat: total debt: %w", err)
	}
	vice, err := fixed.Add(g.Vice, bill)
	if err != nil {
		return nil, fmt.Errorf("vat: total sin: %w", err)
	}
	gem, err := e.state.GetGem(id, gemTo)
	if err != nil {
		return nil, err
	}
	gem, err = fixed.Add(gem, urn.Ink)
	if err != nil {
		return nil, fmt.Errorf("vat: gem balance: %w", err)
	}
	sin, err := e.state.GetSin(sinTo)
	if err != nil {
		return nil, err
	}
	sin, err = fixed.Add(sin, bill)
	if err != nil {
		return nil, fmt.Errorf("vat: sin balance: %w", err)
	}

	seized := &Seizure{Ink: cloneInt(urn.Ink), Art: cloneInt(urn.Art), Tab: tab, Bill: bill}
	ilk.Tart = tart
	g.Debt = debt
	g.Vice = vice
	if err := e.state.PutIlk(id, ilk); err != nil {
		return nil, err
	}
	if err := e.state.PutUrn(id, owner, emptyUrn()); err != nil {
		return nil, err
	}
	if err := e.state.PutGem(id, gemTo, gem); err != nil {
		return nil, err
	}
	if err := e.state.PutSin(sinTo, sin); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobals(g); err != nil {
		return nil, err
	}
	e.logger.Info("vat: position grabbed",
		slog.String("ilk", NormalizeIlk(id)),
		slog.String("owner", owner.Hex()),
		slog.String("ink", seized.Ink.Dec()),
		slog.String("bill", bill.Dec()))
	return seized, nil
}

// Drip accrues interest on a class up to now and credits the accrued amount
// (rad) to the collector.
func (e *Engine) Drip(id string) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	ilk, err := e.loadIlk(id)
	if err != nil {
		return nil, err
	}
	before, err := e.state.GetGlobals()
	if err != nil {
		return nil, err
	}
	prevDebt := cloneInt(before.Debt)
	if err := e.accrue(NormalizeIlk(id), ilk); err != nil {
		return nil, err
	}
	if err := e.state.PutIlk(id, ilk); err != nil {
		return nil, err
	}
	after, err := e.state.GetGlobals()
	if err != nil {
		return nil, err
	}
	return fixed.Sub(after.Debt, prevDebt)
}

// accrue advances ilk to now in memory and books the accrued interest. The
// caller persists ilk.
func (e *Engine) accrue(id string, ilk *Ilk) error {
	now := e.now()
	if now <= ilk.Rho {
		return nil
	}
	dt := now - ilk.Rho
	ilk.Rho = now
	if ilk.Fee.Eq(fixed.RAY()) {
		return nil
	}
	growth, err := fixed.Rpow(ilk.Fee, dt)
	if err != nil {
		return fmt.Errorf("vat: accrue %s: %w", id, err)
	}
	rack, err := fixed.Rmul(ilk.Rack, growth)
	if err != nil {
		return fmt.Errorf("vat: accrue %s: %w", id, err)
	}
	if rack.Lt(ilk.Rack) {
		rack = cloneInt(ilk.Rack)
	}
	delta, _ := fixed.Sub(rack, ilk.Rack)
	rad, err := fixed.Mul(ilk.Tart, delta)
	if err != nil {
		return fmt.Errorf("vat: accrue %s: %w", id, err)
	}
	g, err := e.state.GetGlobals()
	if err != nil {
		return err
	}
	debt, err := fixed.Add(g.Debt, rad)
	if err != nil {
		return fmt.Errorf("vat: accrue %s: %w", id, err)
	}
	joy, err := e.state.GetJoy(e.collector)
	if err != nil {
		return err
	}
	joy, err = fixed.Add(joy, rad)
	if err != nil {
		return fmt.Errorf("vat: accrue %s: %w", id, err)
	}
	ilk.Rack = rack
	g.Debt = debt
	if err := e.state.PutJoy(e.collector, joy); err != nil {
		return err
	}
	e.logger.Debug("vat: interest accrued", slog.String("ilk", id), slog.Uint64("dt", dt), slog.String("rad", rad.Dec()))
	return e.state.PutGlobals(g)
}

// Suck mints rad of joy to u against the same amount of sin on v.
func (e *Engine) Suck(caller, u, v ethcommon.Address, rad *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.auth(caller); err != nil {
		return err
	}
	if rad == nil || rad.IsZero() {
		return nil
	}
	g, err := e.state.GetGlobals()
	if err != nil {
		return err
	}
	joy, err := e.state.GetJoy(u)
	if err != nil {
		return err
	}
	sin, err := e.state.GetSin(v)
	if err != nil {
		return err
	}
	if joy, err = fixed.Add(joy, rad); err != nil {
		return fmt.Errorf("vat: suck: %w", err)
	}
	if sin, err = fixed.Add(sin, rad); err != nil {
		return fmt.Errorf("vat: suck: %w", err)
	}
	if g.Vice, err = fixed.Add(g.Vice, rad); err != nil {
		return fmt.Errorf("vat: suck: %w", err)
	}
	if err := e.state.PutJoy(u, joy); err != nil {
		return err
	}
	if err := e.state.PutSin(v, sin); err != nil {
		return err
	}
	return e.state.PutGlobals(g)
}

// Heal cancels up to rad of the caller's joy against its sin and returns the
// amount actually cancelled.
func (e *Engine) Heal(caller ethcommon.Address, rad *uint256.Int) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if rad == nil {
		return fixed.Zero(), nil
	}
	joy, err := e.state.GetJoy(caller)
	if err != nil {
		return nil, err
	}
	sin, err := e.state.GetSin(caller)
	if err != nil {
		return nil, err
	}
	amt := fixed.Min(fixed.Min(rad, joy), sin)
	if amt.IsZero() {
		return amt, nil
	}
	g, err := e.state.GetGlobals()
	if err != nil {
		return nil, err
	}
	joy, _ = fixed.Sub(joy, amt)
	sin, _ = fixed.Sub(sin, amt)
	if g.Vice, err = fixed.Sub(g.Vice, amt); err != nil {
		return nil, fmt.Errorf("vat: heal: %w", err)
	}
	if err := e.state.PutJoy(caller, joy); err != nil {
		return nil, err
	}
	if err := e.state.PutSin(caller, sin); err != nil {
		return nil, err
	}
	if err := e.state.PutGlobals(g); err != nil {
		return nil, err
	}
	return amt, nil
}

// Slip adjusts usr's gem balance of a class. Used by the asset adapter.
func (e *Engine) Slip(caller ethcommon.Address, id string, usr ethcommon.Address, wad *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.auth(caller); err != nil {
		return err
	}
	if _, err := e.loadIlk(id); err != nil {
		return err
	}
	gem, err := e.state.GetGem(id, usr)
	if err != nil {
		return err
	}
	gem, err = fixed.ApplyDelta(gem, wad)
	if err != nil {
		return fmt.Errorf("vat: slip: %w", err)
	}
	return e.state.PutGem(id, usr, gem)
}

// Flux moves gem between accounts. The source account or an administrator
// must authorise it.
func (e *Engine) Flux(caller ethcommon.Address, id string, src, dst ethcommon.Address, wad *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != src {
		if err := e.auth(caller); err != nil {
			return err
		}
	}
	from, err := e.state.GetGem(id, src)
	if err != nil {
		return err
	}
	if from, err = fixed.Sub(from, wad); err != nil {
		return fmt.Errorf("vat: flux: %w", err)
	}
	if err := e.state.PutGem(id, src, from); err != nil {
		return err
	}
	to, err := e.state.GetGem(id, dst)
	if err != nil {
		return err
	}
	if to, err = fixed.Add(to, wad); err != nil {
		return fmt.Errorf("vat: flux: %w", err)
	}
	return e.state.PutGem(id, dst, to)
}

// Move transfers rad of joy between accounts. The source account or an
// administrator must authorise it.
func (e *Engine) Move(caller, src, dst ethcommon.Address, rad *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != src {
		if err := e.auth(caller); err != nil {
			return err
		}
	}
	from, err := e.state.GetJoy(src)
	if err != nil {
		return err
	}
	if from, err = fixed.Sub(from, rad); err != nil {
		return fmt.Errorf("vat: move: %w", err)
	}
	if err := e.state.PutJoy(src, from); err != nil {
		return err
	}
	to, err := e.state.GetJoy(dst)
	if err != nil {
		return err
	}
	if to, err = fixed.Add(to, rad); err != nil {
		return fmt.Errorf("vat: move: %w", err)
	}
	return e.state.PutJoy(dst, to)
}

// Ilk returns a copy of the class record.
func (e *Engine) Ilk(id string) (*Ilk, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadIlk(id)
}

// Ilks lists the initialised classes.
func (e *Engine) Ilks() ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.Ilks()
}

// Urn returns owner's position in a class.
func (e *Engine) Urn(id string, owner ethcommon.Address) (*Urn, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.loadIlk(id); err != nil {
		return nil, err
	}
	return e.state.GetUrn(id, owner)
}

// Owners lists addresses holding a non-empty position in a class.
func (e *Engine) Owners(id string) ([]ethcommon.Address, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	all, err := e.state.Owners(id)
	if err != nil {
		return nil, err
	}
	out := make([]ethcommon.Address, 0, len(all))
	for _, owner := range all {
		urn, err := e.state.GetUrn(id, owner)
		if err != nil {
			return nil, err
		}
		if !urn.Empty() {
			out = append(out, owner)
		}
	}
	return out, nil
}

func (e *Engine) Gem(id string, owner ethcommon.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.GetGem(id, owner)
}

func (e *Engine) Joy(owner ethcommon.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.GetJoy(owner)
}

func (e *Engine) Sin(owner ethcommon.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.GetSin(owner)
}

// Globals returns the system-wide scalars.
func (e *Engine) Globals() (*Globals, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.GetGlobals()
}

// IsArithmetic reports whether err stems from a checked arithmetic fault.
func IsArithmetic(err error) bool { return errors.Is(err, fixed.ErrArithmetic) }
