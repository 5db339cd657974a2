package dock

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cdpbank/native/fixed"
	"cdpbank/native/token"
	"cdpbank/native/vat"
	"cdpbank/storage"
)

var (
	admin    = ethcommon.HexToAddress("0xad")
	ali      = ethcommon.HexToAddress("0xa1")
	dockAddr = ethcommon.HexToAddress("0xd0")
)

type fixture struct {
	dock   *Engine
	ledger *vat.Engine
	tokens *token.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	ledger := vat.NewEngine(ethcommon.HexToAddress("0xee"))
	ledger.SetState(vat.NewKVState(db))
	require.NoError(t, ledger.Rely(admin, admin, true))
	require.NoError(t, ledger.Rely(admin, dockAddr, true))
	require.NoError(t, ledger.Init(admin, "eth", ""))

	tokens := token.NewLedger(db)
	d := NewEngine(dockAddr, "rico")
	d.SetState(db)
	d.SetLedger(ledger)
	d.SetTokens(tokens)
	require.NoError(t, d.Bind(admin, "eth", "weth"))
	require.NoError(t, d.Bind(admin, "eth", "steth"))
	return &fixture{dock: d, ledger: ledger, tokens: tokens}
}

func TestJoinExitGem(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tokens.Mint("WETH", ali, fixed.Wad(10)))

	require.NoError(t, f.dock.JoinGem(ali, "eth", "weth", fixed.Wad(4)))
	gem, err := f.ledger.Gem("eth", ali)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(4).Dec(), gem.Dec())
	held, err := f.dock.Custody("eth", "WETH")
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(4).Dec(), held.Dec())

	// Gem credited through one representation cannot leave through another.
	require.ErrorIs(t, f.dock.ExitGem(ali, "eth", "steth", fixed.Wad(1)), ErrMissingAsset)

	require.NoError(t, f.dock.ExitGem(ali, "eth", "weth", fixed.Wad(3)))
	bal, err := f.tokens.BalanceOf("WETH", ali)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(9).Dec(), bal.Dec())

	require.ErrorIs(t, f.dock.JoinGem(ali, "eth", "wbtc", fixed.Wad(1)), ErrNotBound)
	require.ErrorIs(t, f.dock.Bind(ali, "eth", "wbtc"), vat.ErrNotAuthorized)

	assets, err := f.dock.Assets("eth")
	require.NoError(t, err)
	require.Equal(t, []string{"WETH", "STETH"}, assets)
}

func TestJoinExitJoy(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Suck(admin, ali, admin, fixed.Rad(5)))

	require.NoError(t, f.dock.ExitJoy(ali, fixed.Wad(2)))
	bal, err := f.tokens.BalanceOf("RICO", ali)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(2).Dec(), bal.Dec())
	joy, err := f.ledger.Joy(ali)
	require.NoError(t, err)
	require.Equal(t, fixed.Rad(3).Dec(), joy.Dec())

	require.NoError(t, f.dock.JoinJoy(ali, fixed.Wad(2)))
	joy, err = f.ledger.Joy(ali)
	require.NoError(t, err)
	require.Equal(t, fixed.Rad(5).Dec(), joy.Dec())
	supply, err := f.tokens.TotalSupply("RICO")
	require.NoError(t, err)
	require.True(t, supply.IsZero())

	require.ErrorIs(t, f.dock.ExitJoy(ali, fixed.Wad(6)), fixed.ErrUnderflow)
	require.ErrorIs(t, f.dock.JoinJoy(ali, fixed.Wad(1)), token.ErrInsufficientBalance)
}
