// Package venue is an in-process liquidity venue made of constant-product
// pools. One venue account holds the tokens of every pool; reserves are
// tracked per pool.
package venue

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "cdpbank/native/common"
	"cdpbank/native/fixed"
	"cdpbank/native/token"
	"cdpbank/storage"
)

var (
	ErrNilState      = errors.New("venue: state not configured")
	ErrNoPool        = errors.New("venue: no pool for pair")
	ErrPoolExists    = errors.New("venue: pool already exists")
	ErrSamePair      = errors.New("venue: pair assets must differ")
	ErrInvalidFee    = errors.New("venue: fee must be below 10000 bps")
	ErrSlippage      = errors.New("venue: output below minimum")
	ErrZeroLiquidity = errors.New("venue: pool has no liquidity")
	ErrDustTrade     = errors.New("venue: input too small to buy any output")
)

const (
	poolPrefix    = "venue/pool"
	reservePrefix = "venue/reserve"
	poolListKey   = "venue/pools"
	bpsDenom      = 10_000
)

// Pool is a constant-product pair. AssetA sorts before AssetB.
type Pool struct {
	AssetA   string
	AssetB   string
	ReserveA *uint256.Int
	ReserveB *uint256.Int
	FeeBps   uint64
}

// ID returns the canonical pair identifier.
func (p *Pool) ID() string { return p.AssetA + "/" + p.AssetB }

func (p *Pool) reserves(assetIn string) (in, out *uint256.Int) {
	if assetIn == p.AssetA {
		return p.ReserveA, p.ReserveB
	}
	return p.ReserveB, p.ReserveA
}

func (p *Pool) setReserves(assetIn string, in, out *uint256.Int) {
	if assetIn == p.AssetA {
		p.ReserveA, p.ReserveB = in, out
		return
	}
	p.ReserveB, p.ReserveA = in, out
}

// Tokens is the external asset ledger the venue settles against.
type Tokens interface {
	Transfer(asset string, from, to ethcommon.Address, amount *uint256.Int) error
}

type poolList struct {
	IDs []string
}

type reserveRecord struct {
	Amount *uint256.Int
}

// Engine executes swaps against the pools.
type Engine struct {
	address ethcommon.Address
	kv      nativecommon.KV
	bound   bool
	tokens  Tokens
	logger  *slog.Logger
}

func NewEngine(address ethcommon.Address) *Engine {
	return &Engine{address: address, logger: slog.Default()}
}

func (e *Engine) Address() ethcommon.Address { return e.address }

func (e *Engine) SetState(db storage.Database) {
	e.kv = nativecommon.NewKV(db)
	e.bound = db != nil
}

func (e *Engine) SetTokens(t Tokens) { e.tokens = t }

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

func (e *Engine) ready() error {
	if e == nil || !e.bound || e.tokens == nil {
		return ErrNilState
	}
	return nil
}

func pairOf(a, b string) (string, string) {
	a, b = token.Normalize(a), token.Normalize(b)
	if strings.Compare(a, b) > 0 {
		return b, a
	}
	return a, b
}

func poolKey(a, b string) []byte {
	return nativecommon.Key(poolPrefix, []byte(a), []byte(b))
}

func reserveKey(asset string) []byte {
	return nativecommon.Key(reservePrefix, []byte(asset))
}

// CreatePool opens an empty pool for the pair.
func (e *Engine) CreatePool(assetA, assetB string, feeBps uint64) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	a, b := pairOf(assetA, assetB)
	if a == "" || b == "" || a == b {
		return nil, ErrSamePair
	}
	if feeBps >= bpsDenom {
		return nil, ErrInvalidFee
	}
	if _, err := e.Pool(a, b); err == nil {
		return nil, ErrPoolExists
	} else if !errors.Is(err, ErrNoPool) {
		return nil, err
	}
	pool := &Pool{AssetA: a, AssetB: b, ReserveA: fixed.Zero(), ReserveB: fixed.Zero(), FeeBps: feeBps}
	if err := e.kv.Save(poolKey(a, b), pool); err != nil {
		return nil, err
	}
	list := poolList{}
	if _, err := e.kv.Load(nativecommon.Key(poolListKey), &list); err != nil {
		return nil, err
	}
	list.IDs = append(list.IDs, pool.ID())
	return pool, e.kv.Save(nativecommon.Key(poolListKey), &list)
}

// Pools lists pair identifiers in creation order.
func (e *Engine) Pools() ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	list := poolList{}
	if _, err := e.kv.Load(nativecommon.Key(poolListKey), &list); err != nil {
		return nil, err
	}
	return list.IDs, nil
}

// Pool loads the pool for a pair in either order.
func (e *Engine) Pool(assetA, assetB string) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	a, b := pairOf(assetA, assetB)
	pool := new(Pool)
	ok, err := e.kv.Load(poolKey(a, b), pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoPool, a, b)
	}
	return pool, nil
}

// AddLiquidity moves tokens from provider into the pool.
func (e *Engine) AddLiquidity(provider ethcommon.Address, assetA string, amountA *uint256.Int, assetB string, amountB *uint256.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	pool, err := e.Pool(assetA, assetB)
	if err != nil {
		return err
	}
	assetA, assetB = token.Normalize(assetA), token.Normalize(assetB)
	inA, inB := pool.reserves(assetA)
	nextA, err := fixed.Add(inA, amountA)
	if err != nil {
		return fmt.Errorf("venue: add liquidity: %w", err)
	}
	nextB, err := fixed.Add(inB, amountB)
	if err != nil {
		return fmt.Errorf("venue: add liquidity: %w", err)
	}
	if err := e.tokens.Transfer(assetA, provider, e.address, amountA); err != nil {
		return err
	}
	if err := e.tokens.Transfer(assetB, provider, e.address, amountB); err != nil {
		return err
	}
	if err := e.adjustReserve(assetA, amountA, true); err != nil {
		return err
	}
	if err := e.adjustReserve(assetB, amountB, true); err != nil {
		return err
	}
	pool.setReserves(assetA, nextA, nextB)
	return e.kv.Save(poolKey(pool.AssetA, pool.AssetB), pool)
}

func (e *Engine) adjustReserve(asset string, amount *uint256.Int, add bool) error {
	total, err := e.ReserveOf(asset)
	if err != nil {
		return err
	}
	var next *uint256.Int
	if add {
		next, err = fixed.Add(total, amount)
	} else {
		next, err = fixed.Sub(total, amount)
	}
	if err != nil {
		return fmt.Errorf("venue: reserve %s: %w", asset, err)
	}
	return e.kv.Save(reserveKey(asset), &reserveRecord{Amount: next})
}

// ReserveOf returns the venue's total reserve of asset across every pool.
func (e *Engine) ReserveOf(asset string) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	rec := reserveRecord{}
	if _, err := e.kv.Load(reserveKey(token.Normalize(asset)), &rec); err != nil {
		return nil, err
	}
	if rec.Amount == nil {
		return fixed.Zero(), nil
	}
	return rec.Amount, nil
}

// Quote returns the output a swap of amountIn would produce right now.
func (e *Engine) Quote(assetIn string, amountIn *uint256.Int, assetOut string) (*uint256.Int, error) {
	pool, err := e.Pool(assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	rin, rout := pool.reserves(token.Normalize(assetIn))
	return amountOut(rin, rout, amountIn, pool.FeeBps)
}

// amountOut applies the constant-product formula with the fee taken from
// the input.
func amountOut(rin, rout, amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if rin.IsZero() || rout.IsZero() {
		return nil, ErrZeroLiquidity
	}
	inAfterFee, err := fixed.Mul(amountIn, uint256.NewInt(bpsDenom-feeBps))
	if err != nil {
		return nil, err
	}
	scaled, err := fixed.Mul(rin, uint256.NewInt(bpsDenom))
	if err != nil {
		return nil, err
	}
	denom, err := fixed.Add(scaled, inAfterFee)
	if err != nil {
		return nil, err
	}
	return fixed.MulDiv(inAfterFee, rout, denom)
}

// Swap sells amountIn of assetIn held by trader for assetOut.
func (e *Engine) Swap(trader ethcommon.Address, assetIn string, amountIn *uint256.Int, assetOut string, minOut *uint256.Int) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	assetIn, assetOut = token.Normalize(assetIn), token.Normalize(assetOut)
	pool, err := e.Pool(assetIn, assetOut)
	if err != nil {
		return nil, err
	}
	rin, rout := pool.reserves(assetIn)
	out, err := amountOut(rin, rout, amountIn, pool.FeeBps)
	if err != nil {
		return nil, err
	}
	if out.IsZero() && !amountIn.IsZero() {
		return nil, fmt.Errorf("%w: %s %s", ErrDustTrade, amountIn.Dec(), assetIn)
	}
	if minOut != nil && out.Lt(minOut) {
		return nil, fmt.Errorf("%w: got %s want %s", ErrSlippage, out.Dec(), minOut.Dec())
	}
	nextIn, err := fixed.Add(rin, amountIn)
	if err != nil {
		return nil, err
	}
	nextOut, err := fixed.Sub(rout, out)
	if err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(assetIn, trader, e.address, amountIn); err != nil {
		return nil, err
	}
	if err := e.tokens.Transfer(assetOut, e.address, trader, out); err != nil {
		return nil, err
	}
	if err := e.adjustReserve(assetIn, amountIn, true); err != nil {
		return nil, err
	}
	if err := e.adjustReserve(assetOut, out, false); err != nil {
		return nil, err
	}
	pool.setReserves(assetIn, nextIn, nextOut)
	if err := e.kv.Save(poolKey(pool.AssetA, pool.AssetB), pool); err != nil {
		return nil, err
	}
	e.logger.Debug("venue: swap",
		slog.String("pool", pool.ID()),
		slog.String("in", amountIn.Dec()),
		slog.String("out", out.Dec()))
	return out, nil
}

// Spot returns the marginal price of base in units of quote as a ray.
func (e *Engine) Spot(base, quote string) (*uint256.Int, error) {
	pool, err := e.Pool(base, quote)
	if err != nil {
		return nil, err
	}
	rbase, rquote := pool.reserves(token.Normalize(base))
	if rbase.IsZero() || rquote.IsZero() {
		return nil, ErrZeroLiquidity
	}
	return fixed.Rdiv(rquote, rbase)
}
