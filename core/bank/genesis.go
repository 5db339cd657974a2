package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"cdpbank/config"
	"cdpbank/native/flow"
	"cdpbank/native/vat"
	"cdpbank/native/venue"
)

// ResolveConsumer maps a configured ramp consumer to its account.
func (b *Bank) ResolveConsumer(consumer string) (ethcommon.Address, error) {
	switch strings.TrimSpace(consumer) {
	case config.ConsumerSettlement:
		return b.cfg.Addresses.Vow, nil
	case config.ConsumerIssuer:
		return b.cfg.Addresses.Issuer, nil
	}
	if !ethcommon.IsHexAddress(consumer) {
		return ethcommon.Address{}, fmt.Errorf("bank: unknown consumer %q", consumer)
	}
	return ethcommon.HexToAddress(consumer), nil
}

// Bootstrap applies market parameters in a single call. It enrols the
// administrator, settlement engine and dock as ledger wards, creates missing
// classes and pools and reapplies every parameter, so it is safe to run on
// every start.
func (b *Bank) Bootstrap(ctx context.Context, params config.Params) error {
	addrs := b.cfg.Addresses
	admin := addrs.Admin
	err := b.Update(ctx, "bootstrap", func(tx *Tx) error {
		for _, who := range []ethcommon.Address{admin, addrs.Vow, addrs.Dock} {
			if err := tx.Vat.Rely(admin, who, true); err != nil {
				return fmt.Errorf("rely %s: %w", who.Hex(), err)
			}
		}
		if err := tx.Vat.File(admin, "ceil", params.Ceil); err != nil {
			return err
		}
		if err := tx.Vat.File(admin, "par", params.Par); err != nil {
			return err
		}
		for _, ilk := range params.Ilks {
			if err := tx.Vat.Init(admin, ilk.ID, ilk.Tag); err != nil && !errors.Is(err, vat.ErrIlkExists) {
				return fmt.Errorf("init %s: %w", ilk.ID, err)
			}
			if err := tx.Vat.SetTag(admin, ilk.ID, ilk.Tag); err != nil {
				return err
			}
			if err := filkAll(tx, admin, ilk); err != nil {
				return fmt.Errorf("filk %s: %w", ilk.ID, err)
			}
			for _, asset := range ilk.Assets {
				if err := tx.Dock.Bind(admin, ilk.ID, asset); err != nil {
					return fmt.Errorf("bind %s/%s: %w", ilk.ID, asset, err)
				}
			}
		}
		for _, ramp := range params.Ramps {
			consumer, err := b.ResolveConsumer(ramp.Consumer)
			if err != nil {
				return err
			}
			if err := tx.Flow.Curb(consumer, ramp.Asset, flow.Ramp{Vel: ramp.Vel, Rel: ramp.Rel, Cel: ramp.Cel, Del: ramp.Del}); err != nil {
				return fmt.Errorf("curb %s/%s: %w", ramp.Consumer, ramp.Asset, err)
			}
		}
		for _, pool := range params.Pools {
			if _, err := tx.Venue.CreatePool(pool.AssetA, pool.AssetB, pool.FeeBps); err != nil && !errors.Is(err, venue.ErrPoolExists) {
				return fmt.Errorf("pool %s/%s: %w", pool.AssetA, pool.AssetB, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, module := range params.Pauses {
		b.Pause(module, true)
	}
	b.logger.Info("bank: market bootstrapped",
		slog.Int("ilks", len(params.Ilks)),
		slog.Int("ramps", len(params.Ramps)),
		slog.Int("pools", len(params.Pools)))
	return nil
}

func filkAll(tx *Tx, admin ethcommon.Address, ilk config.IlkParams) error {
	for _, p := range []struct {
		key   string
		value *uint256.Int
	}{
		{"line", ilk.Line},
		{"dust", ilk.Dust},
		{"fee", ilk.Fee},
		{"chop", ilk.Chop},
		{"liqr", ilk.Liqr},
	} {
		if err := tx.Vat.Filk(admin, ilk.ID, p.key, p.value); err != nil {
			return err
		}
	}
	if ilk.Mark != nil && !ilk.Mark.IsZero() {
		return tx.Vat.Filk(admin, ilk.ID, "mark", ilk.Mark)
	}
	return nil
}
