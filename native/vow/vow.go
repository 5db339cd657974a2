// Package vow is the settlement engine. It liquidates unsafe positions
// through the rate-limited gateway and reconciles the system surplus and
// deficit against the risk asset.
package vow

import (
	"errors"
	"fmt"
	"log/slog"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/dock"
	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/token"
	"cdpbank/native/vat"
)

var (
	ErrNilState = errors.New("vow: state not configured")
	ErrMarkZero = errors.New("vow: no valid liquidation price")
)

const moduleName = "vow"

// Ledger is the subset of the ledger engine the settlement engine drives.
type Ledger interface {
	Plot(id string) (bool, error)
	Safe(id string, owner ethcommon.Address) (vat.Status, error)
	Ilk(id string) (*vat.Ilk, error)
	Grab(caller ethcommon.Address, id string, owner, gemTo, sinTo ethcommon.Address) (*vat.Seizure, error)
	Drip(id string) (*uint256.Int, error)
	Joy(owner ethcommon.Address) (*uint256.Int, error)
	Sin(owner ethcommon.Address) (*uint256.Int, error)
	Heal(caller ethcommon.Address, rad *uint256.Int) (*uint256.Int, error)
}

// Dock converts between ledger credits and tokens.
type Dock interface {
	Assets(id string) ([]string, error)
	Custody(id, asset string) (*uint256.Int, error)
	ExitGem(usr ethcommon.Address, id, asset string, wad *uint256.Int) error
	JoinJoy(usr ethcommon.Address, wad *uint256.Int) error
	ExitJoy(usr ethcommon.Address, wad *uint256.Int) error
}

// Gateway is the rate-limited exchange.
type Gateway interface {
	Issuer() ethcommon.Address
	Take(consumer ethcommon.Address, asset string, amount *uint256.Int) (*uint256.Int, error)
	Trade(consumer ethcommon.Address, assetIn string, amount *uint256.Int, assetOut string, minOut *uint256.Int) (*flow.Record, error)
	Settle(id string) (*flow.Record, error)
}

// Tokens mints and burns the risk asset.
type Tokens interface {
	BalanceOf(asset string, holder ethcommon.Address) (*uint256.Int, error)
	Mint(asset string, to ethcommon.Address, amount *uint256.Int) error
	Burn(asset string, from ethcommon.Address, amount *uint256.Int) error
}

// Pricer quotes the venue's marginal price of base in quote (ray).
type Pricer interface {
	Spot(base, quote string) (*uint256.Int, error)
}

// Engine settles on behalf of its own ledger account.
type Engine struct {
	address ethcommon.Address
	cfg     Config
	vat     Ledger
	dock    Dock
	flow    Gateway
	tokens  Tokens
	pricer  Pricer
	pauses  nativecommon.PauseView
	logger  *slog.Logger
}

// NewEngine returns a settlement engine acting as address.
func NewEngine(address ethcommon.Address, cfg Config) *Engine {
	cfg.Stable = token.Normalize(cfg.Stable)
	cfg.Risk = token.Normalize(cfg.Risk)
	if cfg.Bar == nil {
		cfg.Bar = fixed.Zero()
	}
	return &Engine{address: address, cfg: cfg, logger: slog.Default()}
}

func (e *Engine) Address() ethcommon.Address { return e.address }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) SetLedger(l Ledger) { e.vat = l }

func (e *Engine) SetDock(d Dock) { e.dock = d }

func (e *Engine) SetGateway(g Gateway) { e.flow = g }

func (e *Engine) SetTokens(t Tokens) { e.tokens = t }

func (e *Engine) SetPricer(p Pricer) { e.pricer = p }

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *Engine) ready() error {
	if e == nil || e.vat == nil || e.dock == nil || e.flow == nil || e.tokens == nil || e.pricer == nil {
		return ErrNilState
	}
	return nil
}

// Bail seizes an unsafe position whole and sells the collateral for the
// stable asset. assets names the collateral representations to draw the
// seized amount from, in order; when empty every bound representation is
// used. The debt, inflated by the class penalty, is booked as sin on the
// engine and the sale proceeds are credited as its joy.
func (e *Engine) Bail(id string, owner ethcommon.Address, assets []string) (*Liquidation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	fresh, err := e.vat.Plot(id)
	if err != nil {
		return nil, err
	}
	status, err := e.vat.Safe(id, owner)
	if err != nil {
		return nil, err
	}
	if status != vat.StatusUnsafe {
		return nil, fmt.Errorf("%w: position is %s", vat.ErrUnsafe, status)
	}
	ilk, err := e.vat.Ilk(id)
	if err != nil {
		return nil, err
	}
	if !fresh || ilk.Mark.IsZero() {
		return nil, ErrMarkZero
	}
	if len(assets) == 0 {
		if assets, err = e.dock.Assets(id); err != nil {
			return nil, err
		}
	}

	seized, err := e.vat.Grab(e.address, id, owner, e.address, e.address)
	if err != nil {
		return nil, err
	}
	result := &Liquidation{
		Ilk:      vat.NormalizeIlk(id),
		Owner:    owner,
		Ink:      seized.Ink,
		Art:      seized.Art,
		Bill:     seized.Bill,
		Proceeds: fixed.Zero(),
	}

	remaining := cloneInt(seized.Ink)
	for _, asset := range assets {
		if remaining.IsZero() {
			break
		}
		held, err := e.dock.Custody(id, asset)
		if err != nil {
			return nil, err
		}
		amt := fixed.Min(held, remaining)
		if amt.IsZero() {
			continue
		}
		if err := e.dock.ExitGem(e.address, id, asset, amt); err != nil {
			return nil, err
		}
		remaining, _ = fixed.Sub(remaining, amt)
		result.Sales = append(result.Sales, Sale{Asset: token.Normalize(asset), Exited: amt})
	}
	if !remaining.IsZero() {
		return nil, fmt.Errorf("%w: %s of %s uncovered", dock.ErrMissingAsset, remaining.Dec(), result.Ilk)
	}

	for i := range result.Sales {
		sale := &result.Sales[i]
		rec, err := e.sell(sale.Asset, sale.Exited, e.cfg.Stable)
		if err != nil {
			return nil, err
		}
		sale.Sold = rec.AmountIn
		sale.Proceeds = rec.AmountOut
		sale.FlowID = rec.ID
		if result.Proceeds, err = fixed.Add(result.Proceeds, rec.AmountOut); err != nil {
			return nil, err
		}
	}
	if !result.Proceeds.IsZero() {
		if err := e.dock.JoinJoy(e.address, result.Proceeds); err != nil {
			return nil, err
		}
	}
	e.logger.Info("vow: position liquidated",
		slog.String("ilk", result.Ilk),
		slog.String("owner", owner.Hex()),
		slog.String("ink", result.Ink.Dec()),
		slog.String("bill", result.Bill.Dec()),
		slog.String("proceeds", result.Proceeds.Dec()))
	return result, nil
}

// sell trades through the gateway and settles in the same call.
func (e *Engine) sell(assetIn string, amount *uint256.Int, assetOut string) (*flow.Record, error) {
	rec, err := e.flow.Trade(e.address, assetIn, amount, assetOut, nil)
	if err != nil {
		return nil, err
	}
	return e.flow.Settle(rec.ID)
}

// Sweep re-offers collateral tokens left with the engine by a rate-limited
// liquidation and credits the proceeds as joy.
func (e *Engine) Sweep(id string, assets []string) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		var err error
		if assets, err = e.dock.Assets(id); err != nil {
			return nil, err
		}
	}
	proceeds := fixed.Zero()
	traded := false
	for _, asset := range assets {
		bal, err := e.tokens.BalanceOf(asset, e.address)
		if err != nil {
			return nil, err
		}
		if bal.IsZero() {
			continue
		}
		rec, err := e.sell(asset, bal, e.cfg.Stable)
		if errors.Is(err, flow.ErrLotZero) {
			continue
		}
		if err != nil {
			return nil, err
		}
		traded = true
		if proceeds, err = fixed.Add(proceeds, rec.AmountOut); err != nil {
			return nil, err
		}
	}
	if !traded {
		return nil, flow.ErrLotZero
	}
	if !proceeds.IsZero() {
		if err := e.dock.JoinJoy(e.address, proceeds); err != nil {
			return nil, err
		}
	}
	return proceeds, nil
}

// Keep accrues interest on the listed classes and then settles the engine's
// own joy against its sin: equal balances are healed, surplus above the
// buffer is sold for the risk asset which is burned, and a deficit is
// covered by minting risk within the issuance ramp and selling it. At most
// one trade is made per call.
func (e *Engine) Keep(ids []string) (*Reconciliation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	out := &Reconciliation{
		Action:   ActionNone,
		Accrued:  fixed.Zero(),
		Healed:   fixed.Zero(),
		Sold:     fixed.Zero(),
		Received: fixed.Zero(),
		Burned:   fixed.Zero(),
		Minted:   fixed.Zero(),
	}
	for _, id := range ids {
		accrued, err := e.vat.Drip(id)
		if err != nil {
			return nil, err
		}
		if out.Accrued, err = fixed.Add(out.Accrued, accrued); err != nil {
			return nil, err
		}
	}
	joy, err := e.vat.Joy(e.address)
	if err != nil {
		return nil, err
	}
	sin, err := e.vat.Sin(e.address)
	if err != nil {
		return nil, err
	}

	switch {
	case joy.Eq(sin):
		if joy.IsZero() {
			return out, nil
		}
		if out.Healed, err = e.vat.Heal(e.address, joy); err != nil {
			return nil, err
		}
		out.Action = ActionHeal
	case joy.Gt(sin):
		threshold, err := fixed.Add(sin, e.cfg.Bar)
		if err != nil {
			return nil, err
		}
		if !joy.Gt(threshold) {
			return out, nil
		}
		if err := e.flap(out, joy, sin, threshold); err != nil {
			return nil, err
		}
	default:
		if err := e.flop(out, joy, sin); err != nil {
			return nil, err
		}
	}
	e.logger.Info("vow: kept",
		slog.String("action", string(out.Action)),
		slog.String("healed", out.Healed.Dec()),
		slog.String("sold", out.Sold.Dec()),
		slog.String("received", out.Received.Dec()))
	return out, nil
}

func (e *Engine) flap(out *Reconciliation, joy, sin, threshold *uint256.Int) error {
	healed, err := e.vat.Heal(e.address, sin)
	if err != nil {
		return err
	}
	out.Healed = healed
	surplus, _ := fixed.Sub(joy, threshold)
	lot, err := fixed.Div(surplus, fixed.RAY())
	if err != nil {
		return err
	}
	if lot.IsZero() {
		return nil
	}
	if err := e.dock.ExitJoy(e.address, lot); err != nil {
		return err
	}
	rec, err := e.sell(e.cfg.Stable, lot, e.cfg.Risk)
	if err != nil {
		return err
	}
	if err := e.tokens.Burn(e.cfg.Risk, e.address, rec.AmountOut); err != nil {
		return err
	}
	if unsold, _ := fixed.Sub(lot, rec.AmountIn); !unsold.IsZero() {
		if err := e.dock.JoinJoy(e.address, unsold); err != nil {
			return err
		}
	}
	out.Action = ActionFlap
	out.Sold = rec.AmountIn
	out.Received = rec.AmountOut
	out.Burned = rec.AmountOut
	out.FlowID = rec.ID
	return nil
}

func (e *Engine) flop(out *Reconciliation, joy, sin *uint256.Int) error {
	if !joy.IsZero() {
		healed, err := e.vat.Heal(e.address, joy)
		if err != nil {
			return err
		}
		out.Healed = healed
	}
	deficit, _ := fixed.Sub(sin, joy)
	need, err := fixed.MulDivUp(deficit, uint256.NewInt(1), fixed.RAY())
	if err != nil {
		return err
	}
	spot, err := e.pricer.Spot(e.cfg.Risk, e.cfg.Stable)
	if err != nil {
		return err
	}
	lot, err := fixed.Rdiv(need, spot)
	if err != nil {
		return err
	}
	if lot.IsZero() {
		return flow.ErrLotZero
	}
	lot, err = e.flow.Take(e.flow.Issuer(), e.cfg.Risk, lot)
	if err != nil {
		return err
	}
	if err := e.tokens.Mint(e.cfg.Risk, e.address, lot); err != nil {
		return err
	}
	rec, err := e.sell(e.cfg.Risk, lot, e.cfg.Stable)
	if err != nil {
		return err
	}
	if err := e.dock.JoinJoy(e.address, rec.AmountOut); err != nil {
		return err
	}
	healed, err := e.vat.Heal(e.address, fixed.Max())
	if err != nil {
		return err
	}
	if out.Healed, err = fixed.Add(out.Healed, healed); err != nil {
		return err
	}
	if unsold, _ := fixed.Sub(lot, rec.AmountIn); !unsold.IsZero() {
		if err := e.tokens.Burn(e.cfg.Risk, e.address, unsold); err != nil {
			return err
		}
		lot, _ = fixed.Sub(lot, unsold)
	}
	out.Action = ActionFlop
	out.Minted = lot
	out.Sold = rec.AmountIn
	out.Received = rec.AmountOut
	out.FlowID = rec.ID
	return nil
}

func cloneInt(x *uint256.Int) *uint256.Int {
	if x == nil {
		return fixed.Zero()
	}
	return new(uint256.Int).Set(x)
}
