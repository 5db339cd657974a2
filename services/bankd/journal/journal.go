// Package journal appends the bank's settlement events to a SQL database for
// audit and reporting. The ledger state itself never depends on it.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/vow"
)

var ErrDriver = errors.New("journal: unsupported driver")

// Liquidation is one completed liquidation.
type Liquidation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Ilk       string    `gorm:"size:64;index"`
	Owner     string    `gorm:"size:42;index"`
	Ink       string    `gorm:"size:96"`
	Art       string    `gorm:"size:96"`
	Bill      string    `gorm:"size:96"`
	Proceeds  string    `gorm:"size:96"`
	FlowIDs   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

// Reconciliation is one settlement engine upkeep call that acted.
type Reconciliation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Action    string    `gorm:"size:16;index"`
	Accrued   string    `gorm:"size:96"`
	Healed    string    `gorm:"size:96"`
	Sold      string    `gorm:"size:96"`
	Received  string    `gorm:"size:96"`
	Minted    string    `gorm:"size:96"`
	Burned    string    `gorm:"size:96"`
	FlowID    string    `gorm:"size:36"`
	CreatedAt time.Time `gorm:"index"`
}

// FlowRecord mirrors a gateway record; settling updates the pending row.
type FlowRecord struct {
	ID        string `gorm:"size:36;primaryKey"`
	Consumer  string `gorm:"size:42;index"`
	AssetIn   string `gorm:"size:32"`
	AmountIn  string `gorm:"size:96"`
	AssetOut  string `gorm:"size:32"`
	AmountOut string `gorm:"size:96"`
	Status    string `gorm:"size:16;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AutoMigrate performs all schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Liquidation{}, &Reconciliation{}, &FlowRecord{})
}

// Journal writes events through gorm.
type Journal struct {
	db    *gorm.DB
	clock func() time.Time
}

// Open connects to driver ("sqlite" or "postgres") at dsn and migrates the
// schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *gorm.DB) *Journal {
	return &Journal{db: db, clock: time.Now}
}

func (j *Journal) SetClock(clock func() time.Time) {
	if clock != nil {
		j.clock = clock
	}
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordLiquidation appends a liquidation and the gateway records of its
// sales.
func (j *Journal) RecordLiquidation(ctx context.Context, liq *vow.Liquidation) error {
	if liq == nil {
		return nil
	}
	ids := make([]string, 0, len(liq.Sales))
	for _, sale := range liq.Sales {
		ids = append(ids, sale.FlowID)
	}
	row := Liquidation{
		ID:        uuid.New(),
		Ilk:       liq.Ilk,
		Owner:     liq.Owner.Hex(),
		Ink:       fixed.Format(liq.Ink, fixed.WadDecimals),
		Art:       fixed.Format(liq.Art, fixed.WadDecimals),
		Bill:      fixed.Format(liq.Bill, fixed.RadDecimals),
		Proceeds:  fixed.Format(liq.Proceeds, fixed.WadDecimals),
		FlowIDs:   strings.Join(ids, ","),
		CreatedAt: j.clock().UTC(),
	}
	return j.db.WithContext(ctx).Create(&row).Error
}

// RecordReconciliation appends a keep result. Results that took no action
// are skipped.
func (j *Journal) RecordReconciliation(ctx context.Context, rec *vow.Reconciliation) error {
	if rec == nil || rec.Action == vow.ActionNone {
		return nil
	}
	row := Reconciliation{
		ID:        uuid.New(),
		Action:    string(rec.Action),
		Accrued:   fixed.Format(rec.Accrued, fixed.RadDecimals),
		Healed:    fixed.Format(rec.Healed, fixed.RadDecimals),
		Sold:      fixed.Format(rec.Sold, fixed.WadDecimals),
		Received:  fixed.Format(rec.Received, fixed.WadDecimals),
		Minted:    fixed.Format(rec.Minted, fixed.WadDecimals),
		Burned:    fixed.Format(rec.Burned, fixed.WadDecimals),
		FlowID:    rec.FlowID,
		CreatedAt: j.clock().UTC(),
	}
	return j.db.WithContext(ctx).Create(&row).Error
}

// RecordFlow inserts or updates a gateway record.
func (j *Journal) RecordFlow(ctx context.Context, rec *flow.Record) error {
	if rec == nil {
		return nil
	}
	now := j.clock().UTC()
	row := FlowRecord{
		ID:        rec.ID,
		Consumer:  rec.Consumer.Hex(),
		AssetIn:   rec.AssetIn,
		AmountIn:  fixed.Format(rec.AmountIn, fixed.WadDecimals),
		AssetOut:  rec.AssetOut,
		AmountOut: fixed.Format(rec.AmountOut, fixed.WadDecimals),
		Status:    rec.Status.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount_out", "status", "updated_at"}),
	}).Create(&row).Error
}

// Liquidations returns the most recent liquidations, newest first.
func (j *Journal) Liquidations(ctx context.Context, limit int) ([]Liquidation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []Liquidation
	err := j.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Reconciliations returns the most recent keep results, newest first.
func (j *Journal) Reconciliations(ctx context.Context, limit int) ([]Reconciliation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []Reconciliation
	err := j.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Flow returns a journaled gateway record.
func (j *Journal) Flow(ctx context.Context, id string) (*FlowRecord, error) {
	row := FlowRecord{}
	if err := j.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
