// Package keeper drives the periodic upkeep of the bank: reconciling the
// settlement engine and liquidating positions that became unsafe.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"cdpbank/native/vat"
	"cdpbank/native/vow"
)

// Bank is the upkeep surface the keeper drives.
type Bank interface {
	Ilks(ctx context.Context) ([]string, error)
	Keep(ctx context.Context, ids []string) (*vow.Reconciliation, error)
	Candidates(ctx context.Context, id string) ([]ethcommon.Address, error)
	Liquidate(ctx context.Context, id string, owner ethcommon.Address, assets []string) (*vow.Liquidation, error)
}

// Journal receives the outcome of every successful upkeep call.
type Journal interface {
	RecordLiquidation(ctx context.Context, liq *vow.Liquidation) error
	RecordReconciliation(ctx context.Context, rec *vow.Reconciliation) error
}

// Report summarises one tick.
type Report struct {
	Action       vow.Action
	Liquidations []*vow.Liquidation
	Failures     int
}

// Keeper runs upkeep on a fixed interval.
type Keeper struct {
	bank     Bank
	journal  Journal
	interval time.Duration
	logger   *slog.Logger
	once     sync.Once
}

// New constructs a keeper. journal may be nil.
func New(bank Bank, journal Journal, interval time.Duration, logger *slog.Logger) (*Keeper, error) {
	if bank == nil {
		return nil, fmt.Errorf("bank required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{bank: bank, journal: journal, interval: interval, logger: logger}, nil
}

// Run ticks until the context is cancelled. Failures are logged and retried
// on the next tick.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	k.once.Do(func() {
		k.logger.Info("keeper: started", slog.Duration("interval", k.interval))
	})
	for {
		if _, err := k.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warn("keeper: tick failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick reconciles the settlement engine across every class and then
// liquidates each unsafe position. A failed liquidation does not stop the
// remaining candidates.
func (k *Keeper) Tick(ctx context.Context) (*Report, error) {
	report := &Report{Action: vow.ActionNone}
	ids, err := k.bank.Ilks(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return report, nil
	}

	rec, err := k.bank.Keep(ctx, ids)
	if err != nil {
		k.logger.Warn("keeper: keep failed", slog.Any("error", err))
		report.Failures++
	} else {
		report.Action = rec.Action
		if rec.Action != vow.ActionNone {
			k.logger.Info("keeper: reconciled", slog.String("action", string(rec.Action)))
		}
		if k.journal != nil {
			k.warn("keep", k.journal.RecordReconciliation(ctx, rec))
		}
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		owners, err := k.bank.Candidates(ctx, id)
		if err != nil {
			k.logger.Warn("keeper: scan failed", slog.String("ilk", id), slog.Any("error", err))
			report.Failures++
			continue
		}
		for _, owner := range owners {
			liq, err := k.bank.Liquidate(ctx, id, owner, nil)
			if err != nil {
				// The position may have been repaired or refreshed since the scan.
				if !errors.Is(err, vat.ErrUnsafe) {
					report.Failures++
				}
				k.logger.Warn("keeper: liquidation failed",
					slog.String("ilk", id),
					slog.String("owner", owner.Hex()),
					slog.Any("error", err))
				continue
			}
			report.Liquidations = append(report.Liquidations, liq)
			if k.journal != nil {
				k.warn("liquidate", k.journal.RecordLiquidation(ctx, liq))
			}
		}
	}
	return report, nil
}

func (k *Keeper) warn(op string, err error) {
	if err != nil {
		k.logger.Warn("keeper: journal write failed", slog.String("op", op), slog.Any("error", err))
	}
}
