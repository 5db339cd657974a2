package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/token"
	"cdpbank/native/vat"
	"cdpbank/native/venue"
	"cdpbank/native/vow"
)

var ErrReservedAsset = errors.New("bank: stable asset is only issued against ledger credit")

func (tx *Tx) requireWard(caller ethcommon.Address) error {
	ok, err := tx.Vat.Wards(caller)
	if err != nil {
		return err
	}
	if !ok {
		return vat.ErrNotAuthorized
	}
	return nil
}

// Rely grants or revokes administrative rights on the ledger.
func (b *Bank) Rely(ctx context.Context, caller, who ethcommon.Address, on bool) error {
	return b.Update(ctx, "rely", func(tx *Tx) error {
		return tx.Vat.Rely(caller, who, on)
	})
}

// Init creates a collateral class.
func (b *Bank) Init(ctx context.Context, caller ethcommon.Address, id, tag string) error {
	return b.Update(ctx, "init", func(tx *Tx) error {
		return tx.Vat.Init(caller, id, tag)
	})
}

// File sets a global ledger parameter.
func (b *Bank) File(ctx context.Context, caller ethcommon.Address, key string, value *uint256.Int) error {
	return b.Update(ctx, "file", func(tx *Tx) error {
		return tx.Vat.File(caller, key, value)
	})
}

// Filk sets a class parameter.
func (b *Bank) Filk(ctx context.Context, caller ethcommon.Address, id, key string, value *uint256.Int) error {
	return b.Update(ctx, "filk", func(tx *Tx) error {
		return tx.Vat.Filk(caller, id, key, value)
	})
}

// Bind accepts asset as a representation of class id.
func (b *Bank) Bind(ctx context.Context, caller ethcommon.Address, id, asset string) error {
	return b.Update(ctx, "bind", func(tx *Tx) error {
		return tx.Dock.Bind(caller, id, asset)
	})
}

// Curb configures a gateway ramp. Only ledger administrators may curb.
func (b *Bank) Curb(ctx context.Context, caller, consumer ethcommon.Address, asset string, ramp flow.Ramp) error {
	return b.Update(ctx, "curb", func(tx *Tx) error {
		if err := tx.requireWard(caller); err != nil {
			return err
		}
		return tx.Flow.Curb(consumer, asset, ramp)
	})
}

// CreatePool opens a venue pool.
func (b *Bank) CreatePool(ctx context.Context, caller ethcommon.Address, assetA, assetB string, feeBps uint64) (*venue.Pool, error) {
	var pool *venue.Pool
	err := b.Update(ctx, "create_pool", func(tx *Tx) error {
		if err := tx.requireWard(caller); err != nil {
			return err
		}
		var err error
		pool, err = tx.Venue.CreatePool(assetA, assetB, feeBps)
		return err
	})
	return pool, err
}

// AddLiquidity deposits provider's tokens into a venue pool.
func (b *Bank) AddLiquidity(ctx context.Context, provider ethcommon.Address, assetA string, amountA *uint256.Int, assetB string, amountB *uint256.Int) error {
	return b.Update(ctx, "add_liquidity", func(tx *Tx) error {
		return tx.Venue.AddLiquidity(provider, assetA, amountA, assetB, amountB)
	})
}

// Push publishes a price reading (ray) for tag.
func (b *Bank) Push(ctx context.Context, caller ethcommon.Address, tag string, value *uint256.Int, validUntil uint64) error {
	return b.Update(ctx, "push", func(tx *Tx) error {
		if err := tx.requireWard(caller); err != nil {
			return err
		}
		return tx.Feeds.Push(tag, value, validUntil)
	})
}

// Mint credits tokens to an account. The stable asset is refused; it only
// enters circulation through ExitJoy.
func (b *Bank) Mint(ctx context.Context, caller ethcommon.Address, asset string, to ethcommon.Address, amount *uint256.Int) error {
	return b.Update(ctx, "mint", func(tx *Tx) error {
		if err := tx.requireWard(caller); err != nil {
			return err
		}
		asset = token.Normalize(asset)
		if asset == b.cfg.Stable {
			return fmt.Errorf("%w: %s", ErrReservedAsset, asset)
		}
		return tx.Tokens.Mint(asset, to, amount)
	})
}

// JoinGem deposits usr's asset tokens as free collateral of class id.
func (b *Bank) JoinGem(ctx context.Context, usr ethcommon.Address, id, asset string, wad *uint256.Int) error {
	return b.Update(ctx, "join_gem", func(tx *Tx) error {
		return tx.Dock.JoinGem(usr, id, asset, wad)
	})
}

// ExitGem withdraws free collateral of class id as asset tokens.
func (b *Bank) ExitGem(ctx context.Context, usr ethcommon.Address, id, asset string, wad *uint256.Int) error {
	return b.Update(ctx, "exit_gem", func(tx *Tx) error {
		return tx.Dock.ExitGem(usr, id, asset, wad)
	})
}

// JoinJoy turns stable tokens back into ledger credit.
func (b *Bank) JoinJoy(ctx context.Context, usr ethcommon.Address, wad *uint256.Int) error {
	return b.Update(ctx, "join_joy", func(tx *Tx) error {
		return tx.Dock.JoinJoy(usr, wad)
	})
}

// ExitJoy withdraws ledger credit as stable tokens.
func (b *Bank) ExitJoy(ctx context.Context, usr ethcommon.Address, wad *uint256.Int) error {
	return b.Update(ctx, "exit_joy", func(tx *Tx) error {
		return tx.Dock.ExitJoy(usr, wad)
	})
}

// Adjust applies signed collateral and normalized debt deltas to a position
// and returns the resulting position.
func (b *Bank) Adjust(ctx context.Context, caller ethcommon.Address, id string, owner ethcommon.Address, dink, dart *big.Int) (*vat.Urn, error) {
	var urn *vat.Urn
	err := b.Update(ctx, "adjust", func(tx *Tx) error {
		if err := tx.Vat.Frob(caller, id, owner, dink, dart); err != nil {
			return err
		}
		var err error
		urn, err = tx.Vat.Urn(id, owner)
		return err
	})
	return urn, err
}

// Drip accrues interest on class id and returns the rad credited.
func (b *Bank) Drip(ctx context.Context, id string) (*uint256.Int, error) {
	var accrued *uint256.Int
	err := b.Update(ctx, "drip", func(tx *Tx) error {
		var err error
		accrued, err = tx.Vat.Drip(id)
		return err
	})
	return accrued, err
}

// Suck mints joy on u backed by sin on v.
func (b *Bank) Suck(ctx context.Context, caller, u, v ethcommon.Address, rad *uint256.Int) error {
	return b.Update(ctx, "suck", func(tx *Tx) error {
		return tx.Vat.Suck(caller, u, v, rad)
	})
}

// Heal cancels the caller's joy against its sin.
func (b *Bank) Heal(ctx context.Context, caller ethcommon.Address, rad *uint256.Int) (*uint256.Int, error) {
	var healed *uint256.Int
	err := b.Update(ctx, "heal", func(tx *Tx) error {
		var err error
		healed, err = tx.Vat.Heal(caller, rad)
		return err
	})
	return healed, err
}

// Move transfers joy between accounts.
func (b *Bank) Move(ctx context.Context, caller, src, dst ethcommon.Address, rad *uint256.Int) error {
	return b.Update(ctx, "move", func(tx *Tx) error {
		return tx.Vat.Move(caller, src, dst, rad)
	})
}

// Liquidate seizes an unsafe position and sells its collateral.
func (b *Bank) Liquidate(ctx context.Context, id string, owner ethcommon.Address, assets []string) (*vow.Liquidation, error) {
	var out *vow.Liquidation
	err := b.Update(ctx, "liquidate", func(tx *Tx) error {
		var err error
		out, err = tx.Vow.Bail(id, owner, assets)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.metrics.RecordLiquidation(out.Ilk)
	for _, sale := range out.Sales {
		b.metrics.RecordFlow(sale.Asset, "settled")
	}
	return out, nil
}

// Sweep sells collateral left with the settlement engine for class id.
func (b *Bank) Sweep(ctx context.Context, id string, assets []string) (*uint256.Int, error) {
	var proceeds *uint256.Int
	err := b.Update(ctx, "sweep", func(tx *Tx) error {
		var err error
		proceeds, err = tx.Vow.Sweep(id, assets)
		return err
	})
	return proceeds, err
}

// Keep reconciles the settlement engine's surplus and deficit after accruing
// interest on ids. An empty ids accrues every class.
func (b *Bank) Keep(ctx context.Context, ids []string) (*vow.Reconciliation, error) {
	var out *vow.Reconciliation
	err := b.Update(ctx, "keep", func(tx *Tx) error {
		if len(ids) == 0 {
			all, err := tx.Vat.Ilks()
			if err != nil {
				return err
			}
			ids = all
		}
		var err error
		out, err = tx.Vow.Keep(ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.metrics.RecordKeep(string(out.Action))
	return out, nil
}

// Trade sells amount of consumer's assetIn through the gateway. The record
// is left pending until Settle.
func (b *Bank) Trade(ctx context.Context, consumer ethcommon.Address, assetIn string, amount *uint256.Int, assetOut string, minOut *uint256.Int) (*flow.Record, error) {
	var rec *flow.Record
	err := b.Update(ctx, "trade", func(tx *Tx) error {
		var err error
		rec, err = tx.Flow.Trade(consumer, assetIn, amount, assetOut, minOut)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.metrics.RecordFlow(rec.AssetIn, "pending")
	return rec, nil
}

// Settle executes a pending gateway record.
func (b *Bank) Settle(ctx context.Context, id string) (*flow.Record, error) {
	var rec *flow.Record
	err := b.Update(ctx, "settle", func(tx *Tx) error {
		var err error
		rec, err = tx.Flow.Settle(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.metrics.RecordFlow(rec.AssetIn, "settled")
	return rec, nil
}

// Plot refreshes the stored mark of class id and reports whether the feed
// reading was fresh.
func (b *Bank) Plot(ctx context.Context, id string) (bool, error) {
	var fresh bool
	err := b.Update(ctx, "plot", func(tx *Tx) error {
		var err error
		fresh, err = tx.Vat.Plot(id)
		return err
	})
	return fresh, err
}

// Safe reports the status of a position against the current price.
func (b *Bank) Safe(ctx context.Context, id string, owner ethcommon.Address) (vat.Status, error) {
	var status vat.Status
	err := b.View(ctx, "safe", func(tx *Tx) error {
		var err error
		status, err = tx.Vat.Safe(id, owner)
		return err
	})
	return status, err
}

// Urn returns a position.
func (b *Bank) Urn(ctx context.Context, id string, owner ethcommon.Address) (*vat.Urn, error) {
	var urn *vat.Urn
	err := b.View(ctx, "urn", func(tx *Tx) error {
		var err error
		urn, err = tx.Vat.Urn(id, owner)
		return err
	})
	return urn, err
}

// Ilk returns a collateral class.
func (b *Bank) Ilk(ctx context.Context, id string) (*vat.Ilk, error) {
	var ilk *vat.Ilk
	err := b.View(ctx, "ilk", func(tx *Tx) error {
		var err error
		ilk, err = tx.Vat.Ilk(id)
		return err
	})
	return ilk, err
}

// Ilks lists the collateral classes in creation order.
func (b *Bank) Ilks(ctx context.Context) ([]string, error) {
	var ids []string
	err := b.View(ctx, "ilks", func(tx *Tx) error {
		var err error
		ids, err = tx.Vat.Ilks()
		return err
	})
	return ids, err
}

// Globals returns the system-wide ledger totals.
func (b *Bank) Globals(ctx context.Context) (*vat.Globals, error) {
	var g *vat.Globals
	err := b.View(ctx, "globals", func(tx *Tx) error {
		var err error
		g, err = tx.Vat.Globals()
		return err
	})
	return g, err
}

// Balances is an account's ledger and token holdings.
type Balances struct {
	Joy    *uint256.Int
	Sin    *uint256.Int
	Stable *uint256.Int
	Risk   *uint256.Int
}

// Balances returns who's joy, sin and issued token balances.
func (b *Bank) Balances(ctx context.Context, who ethcommon.Address) (*Balances, error) {
	out := &Balances{}
	err := b.View(ctx, "balances", func(tx *Tx) error {
		var err error
		if out.Joy, err = tx.Vat.Joy(who); err != nil {
			return err
		}
		if out.Sin, err = tx.Vat.Sin(who); err != nil {
			return err
		}
		if out.Stable, err = tx.Tokens.BalanceOf(b.cfg.Stable, who); err != nil {
			return err
		}
		out.Risk, err = tx.Tokens.BalanceOf(b.cfg.Risk, who)
		return err
	})
	return out, err
}

// Capacity returns the gateway capacity currently available to consumer.
func (b *Bank) Capacity(ctx context.Context, consumer ethcommon.Address, asset string) (*uint256.Int, error) {
	var avail *uint256.Int
	err := b.View(ctx, "capacity", func(tx *Tx) error {
		var err error
		avail, err = tx.Flow.Capacity(consumer, asset)
		return err
	})
	if err == nil {
		b.metrics.SetCapacity(consumer.Hex(), asset, units(avail, fixed.WadDecimals))
	}
	return avail, err
}

// Record returns a gateway record.
func (b *Bank) Record(ctx context.Context, id string) (*flow.Record, error) {
	var rec *flow.Record
	err := b.View(ctx, "record", func(tx *Tx) error {
		var err error
		rec, err = tx.Flow.Record(id)
		return err
	})
	return rec, err
}

// Candidates lists the positions of class id that are currently unsafe.
func (b *Bank) Candidates(ctx context.Context, id string) ([]ethcommon.Address, error) {
	var out []ethcommon.Address
	err := b.View(ctx, "candidates", func(tx *Tx) error {
		owners, err := tx.Vat.Owners(id)
		if err != nil {
			return err
		}
		for _, owner := range owners {
			status, err := tx.Vat.Safe(id, owner)
			if err != nil {
				return err
			}
			if status == vat.StatusUnsafe {
				out = append(out, owner)
			}
		}
		return nil
	})
	return out, err
}

func units(x *uint256.Int, decimals int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(x.ToBig()), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))).Float64()
	return f
}
