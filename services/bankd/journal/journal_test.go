package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/vow"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "bank")
	require.ErrorIs(t, err, ErrDriver)
}

func TestRecordLiquidation(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	now := base
	j.SetClock(func() time.Time { return now })

	owner := ethcommon.HexToAddress("0xa1")
	for i := 0; i < 2; i++ {
		require.NoError(t, j.RecordLiquidation(ctx, &vow.Liquidation{
			Ilk:      "weth",
			Owner:    owner,
			Ink:      fixed.Wad(100),
			Art:      fixed.Wad(50),
			Bill:     fixed.MustParse("55", fixed.RadDecimals),
			Proceeds: fixed.MustParse("99.5", fixed.WadDecimals),
			Sales:    []vow.Sale{{Asset: "WETH", FlowID: fmt.Sprintf("flow-%d", i)}},
		}))
		now = now.Add(time.Minute)
	}

	rows, err := j.Liquidations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "flow-1", rows[0].FlowIDs)
	require.Equal(t, owner.Hex(), rows[0].Owner)
	require.Equal(t, "55", rows[0].Bill)
	require.Equal(t, "99.5", rows[0].Proceeds)
}

func TestRecordReconciliationSkipsNone(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.RecordReconciliation(ctx, &vow.Reconciliation{Action: vow.ActionNone}))
	require.NoError(t, j.RecordReconciliation(ctx, &vow.Reconciliation{
		Action:   vow.ActionHeal,
		Accrued:  fixed.Zero(),
		Healed:   fixed.Rad(5),
		Sold:     fixed.Zero(),
		Received: fixed.Zero(),
		Minted:   fixed.Zero(),
		Burned:   fixed.Zero(),
	}))

	rows, err := j.Reconciliations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "heal", rows[0].Action)
	require.Equal(t, "5", rows[0].Healed)
}

func TestRecordFlowUpserts(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	rec := &flow.Record{
		ID:        uuid.NewString(),
		Consumer:  ethcommon.HexToAddress("0xee"),
		AssetIn:   "WETH",
		AmountIn:  fixed.Wad(10),
		AssetOut:  "RICO",
		AmountOut: fixed.Zero(),
		Status:    flow.StatusPending,
	}
	require.NoError(t, j.RecordFlow(ctx, rec))

	rec.AmountOut = fixed.MustParse("9.9", fixed.WadDecimals)
	rec.Status = flow.StatusSettled
	require.NoError(t, j.RecordFlow(ctx, rec))

	row, err := j.Flow(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "settled", row.Status)
	require.Equal(t, "9.9", row.AmountOut)
	require.Equal(t, "10", row.AmountIn)
}
