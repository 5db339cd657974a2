package vow

import (
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpbank/native/dock"
	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/token"
	"cdpbank/native/vat"
	"cdpbank/native/venue"
	"cdpbank/storage"
)

var (
	admin    = ethcommon.HexToAddress("0xad")
	ali      = ethcommon.HexToAddress("0xa1")
	lp       = ethcommon.HexToAddress("0x11")
	vowAddr  = ethcommon.HexToAddress("0xee")
	dockAddr = ethcommon.HexToAddress("0xd0")
	flowAddr = ethcommon.HexToAddress("0xf1")
	issuer   = ethcommon.HexToAddress("0xf10b")
	vault    = ethcommon.HexToAddress("0xba")
)

type system struct {
	t      *testing.T
	now    time.Time
	tokens *token.Ledger
	vat    *vat.Engine
	dock   *dock.Engine
	venue  *venue.Engine
	flow   *flow.Engine
	vow    *Engine
}

func (s *system) advance(d time.Duration) { s.now = s.now.Add(d) }

func (s *system) clock() time.Time { return s.now }

// fundStable issues stable tokens to who through the ledger so the dock
// holds the matching joy.
func (s *system) fundStable(who ethcommon.Address, wad uint64) {
	s.t.Helper()
	require.NoError(s.t, s.vat.Suck(admin, who, admin, fixed.Rad(wad)))
	require.NoError(s.t, s.dock.ExitJoy(who, fixed.Wad(wad)))
}

func (s *system) curb(consumer ethcommon.Address, asset, vel, rel string, cel uint64) {
	s.t.Helper()
	require.NoError(s.t, s.flow.Curb(consumer, asset, flow.Ramp{
		Vel: fixed.MustParse(vel, fixed.WadDecimals),
		Rel: fixed.MustParse(rel, fixed.WadDecimals),
		Cel: cel,
	}))
}

func newSystem(t *testing.T, bar *uint256.Int) *system {
	t.Helper()
	db := storage.NewMemDB()
	s := &system{t: t, now: time.Unix(1_700_000_000, 0), tokens: token.NewLedger(db)}

	s.vat = vat.NewEngine(vowAddr)
	s.vat.SetState(vat.NewKVState(db))
	s.vat.SetClock(s.clock)
	for _, who := range []ethcommon.Address{admin, vowAddr, dockAddr} {
		require.NoError(t, s.vat.Rely(admin, who, true))
	}
	require.NoError(t, s.vat.Init(admin, "weth", ""))
	require.NoError(t, s.vat.File(admin, "ceil", fixed.Rad(100_000)))
	require.NoError(t, s.vat.Filk(admin, "weth", "line", fixed.Rad(100_000)))
	require.NoError(t, s.vat.Filk(admin, "weth", "mark", fixed.Ray(1)))

	s.dock = dock.NewEngine(dockAddr, "RICO")
	s.dock.SetState(db)
	s.dock.SetLedger(s.vat)
	s.dock.SetTokens(s.tokens)
	require.NoError(t, s.dock.Bind(admin, "weth", "WETH"))
	require.NoError(t, s.dock.Bind(admin, "weth", "STETH"))

	s.venue = venue.NewEngine(vault)
	s.venue.SetState(db)
	s.venue.SetTokens(s.tokens)
	s.fundStable(lp, 20_000)
	require.NoError(t, s.tokens.Mint("WETH", lp, fixed.Wad(10_000)))
	require.NoError(t, s.tokens.Mint("RISK", lp, fixed.Wad(10_000)))
	for _, pair := range [][2]string{{"WETH", "RICO"}, {"RISK", "RICO"}} {
		_, err := s.venue.CreatePool(pair[0], pair[1], 0)
		require.NoError(t, err)
		require.NoError(t, s.venue.AddLiquidity(lp, pair[0], fixed.Wad(10_000), pair[1], fixed.Wad(10_000)))
	}

	s.flow = flow.NewEngine(flowAddr, issuer)
	s.flow.SetState(db)
	s.flow.SetVenue(s.venue)
	s.flow.SetTokens(s.tokens)
	s.flow.SetClock(s.clock)

	s.vow = NewEngine(vowAddr, Config{Bar: bar, Stable: "rico", Risk: "risk"})
	s.vow.SetLedger(s.vat)
	s.vow.SetDock(s.dock)
	s.vow.SetGateway(s.flow)
	s.vow.SetTokens(s.tokens)
	s.vow.SetPricer(s.venue)

	require.NoError(t, s.tokens.Mint("WETH", ali, fixed.Wad(100)))
	require.NoError(t, s.dock.JoinGem(ali, "weth", "WETH", fixed.Wad(100)))
	require.NoError(t, s.vat.Frob(ali, "weth", ali, fixed.Wad(100).ToBig(), fixed.Wad(50).ToBig()))
	return s
}

func TestBailSafePositionFails(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "WETH", "1000", "1", 1000)

	_, err := s.vow.Bail("weth", ali, nil)
	require.ErrorIs(t, err, vat.ErrUnsafe)

	urn, err := s.vat.Urn("weth", ali)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(100).Dec(), urn.Ink.Dec())
	sin, err := s.vat.Sin(vowAddr)
	require.NoError(t, err)
	require.True(t, sin.IsZero())
}

func TestBailUnsafePosition(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "WETH", "1000", "1", 1000)
	require.NoError(t, s.vat.Filk(admin, "weth", "chop", fixed.MustParse("1.1", fixed.RayDecimals)))
	require.NoError(t, s.vat.Filk(admin, "weth", "mark", fixed.MustParse("0.4", fixed.RayDecimals)))

	quote, err := s.venue.Quote("WETH", fixed.Wad(100), "RICO")
	require.NoError(t, err)

	res, err := s.vow.Bail("weth", ali, nil)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(100).Dec(), res.Ink.Dec())
	require.Equal(t, fixed.Rad(55).Dec(), res.Bill.Dec())
	require.Equal(t, quote.Dec(), res.Proceeds.Dec())
	require.Len(t, res.Sales, 1)

	urn, err := s.vat.Urn("weth", ali)
	require.NoError(t, err)
	require.True(t, urn.Empty())
	sin, err := s.vat.Sin(vowAddr)
	require.NoError(t, err)
	require.Equal(t, fixed.Rad(55).Dec(), sin.Dec())
	joy, err := s.vat.Joy(vowAddr)
	require.NoError(t, err)
	want, err := fixed.Mul(quote, fixed.RAY())
	require.NoError(t, err)
	require.Equal(t, want.Dec(), joy.Dec())

	held, err := s.dock.Custody("weth", "WETH")
	require.NoError(t, err)
	require.True(t, held.IsZero())

	_, err = s.vow.Bail("weth", ali, nil)
	require.ErrorIs(t, err, vat.ErrUnsafe)
}

func TestBailMarkZero(t *testing.T) {
	s := newSystem(t, nil)
	require.NoError(t, s.vat.Filk(admin, "weth", "mark", fixed.Zero()))
	_, err := s.vow.Bail("weth", ali, nil)
	require.ErrorIs(t, err, ErrMarkZero)
}

func TestBailMissingAsset(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "WETH", "1000", "1", 1000)
	require.NoError(t, s.vat.Filk(admin, "weth", "mark", fixed.MustParse("0.4", fixed.RayDecimals)))
	_, err := s.vow.Bail("weth", ali, []string{"STETH"})
	require.ErrorIs(t, err, dock.ErrMissingAsset)
}

func TestBailLotZero(t *testing.T) {
	s := newSystem(t, nil)
	require.NoError(t, s.vat.Filk(admin, "weth", "mark", fixed.MustParse("0.4", fixed.RayDecimals)))
	_, err := s.vow.Bail("weth", ali, nil)
	require.ErrorIs(t, err, flow.ErrLotZero)
}

func TestBailRateLimitedThenSweep(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "WETH", "0.1", "1", 100)
	require.NoError(t, s.vat.Filk(admin, "weth", "mark", fixed.MustParse("0.4", fixed.RayDecimals)))

	res, err := s.vow.Bail("weth", ali, []string{"WETH"})
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(10).Dec(), res.Sales[0].Sold.Dec())

	left, err := s.tokens.BalanceOf("WETH", vowAddr)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(90).Dec(), left.Dec())

	_, err = s.vow.Sweep("weth", nil)
	require.ErrorIs(t, err, flow.ErrLotZero)

	s.advance(50 * time.Second)
	proceeds, err := s.vow.Sweep("weth", nil)
	require.NoError(t, err)
	require.False(t, proceeds.IsZero())
	left, err = s.tokens.BalanceOf("WETH", vowAddr)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(85).Dec(), left.Dec())
}

func TestKeepHealsWhenBalanced(t *testing.T) {
	s := newSystem(t, nil)
	require.NoError(t, s.vat.Suck(admin, vowAddr, vowAddr, fixed.Rad(1)))

	res, err := s.vow.Keep([]string{"weth"})
	require.NoError(t, err)
	require.Equal(t, ActionHeal, res.Action)
	require.Equal(t, fixed.Rad(1).Dec(), res.Healed.Dec())
	require.Empty(t, res.FlowID)

	res, err = s.vow.Keep([]string{"weth"})
	require.NoError(t, err)
	require.Equal(t, ActionNone, res.Action)
	require.True(t, res.Healed.IsZero())
}

func TestKeepFlapBurnsRisk(t *testing.T) {
	s := newSystem(t, fixed.Rad(10))
	s.curb(vowAddr, "RICO", "1000", "1", 1000)
	require.NoError(t, s.vat.Suck(admin, vowAddr, admin, fixed.Rad(100)))
	before, err := s.tokens.TotalSupply("RISK")
	require.NoError(t, err)

	res, err := s.vow.Keep(nil)
	require.NoError(t, err)
	require.Equal(t, ActionFlap, res.Action)
	require.Equal(t, fixed.Wad(90).Dec(), res.Sold.Dec())

	after, err := s.tokens.TotalSupply("RISK")
	require.NoError(t, err)
	burned, err := fixed.Sub(before, after)
	require.NoError(t, err)
	require.Equal(t, res.Received.Dec(), burned.Dec())

	joy, err := s.vat.Joy(vowAddr)
	require.NoError(t, err)
	require.Equal(t, fixed.Rad(10).Dec(), joy.Dec())

	// Within the buffer nothing happens.
	res, err = s.vow.Keep(nil)
	require.NoError(t, err)
	require.Equal(t, ActionNone, res.Action)
}

func TestKeepFlapRejoinsUnsold(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "RICO", "0.1", "1", 100)
	require.NoError(t, s.vat.Suck(admin, vowAddr, admin, fixed.Rad(100)))

	res, err := s.vow.Keep(nil)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(10).Dec(), res.Sold.Dec())
	joy, err := s.vat.Joy(vowAddr)
	require.NoError(t, err)
	require.Equal(t, fixed.Rad(90).Dec(), joy.Dec())
}

func TestKeepDripsIntoFlap(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "RICO", "1000", "1", 1000)
	require.NoError(t, s.vat.Filk(admin, "weth", "fee", fixed.MustParse("1.05", fixed.RayDecimals)))
	s.advance(time.Second)

	res, err := s.vow.Keep([]string{"weth"})
	require.NoError(t, err)
	require.Equal(t, fixed.MustParse("2.5", fixed.RadDecimals).Dec(), res.Accrued.Dec())
	require.Equal(t, ActionFlap, res.Action)
	require.Equal(t, fixed.MustParse("2.5", fixed.WadDecimals).Dec(), res.Sold.Dec())

	joy, err := s.vat.Joy(vowAddr)
	require.NoError(t, err)
	require.True(t, joy.IsZero())
}

func TestKeepFlopBoundedByIssuance(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "RISK", "1000", "1", 1000)
	s.curb(issuer, "RISK", "0.001", "1000000", 1000)
	require.NoError(t, s.vat.Suck(admin, admin, vowAddr, fixed.Rad(10)))
	supply0, err := s.tokens.TotalSupply("RISK")
	require.NoError(t, err)

	res, err := s.vow.Keep(nil)
	require.NoError(t, err)
	require.Equal(t, ActionFlop, res.Action)
	require.Equal(t, fixed.Wad(1).Dec(), res.Minted.Dec())
	supply1, err := s.tokens.TotalSupply("RISK")
	require.NoError(t, err)
	mint1, err := fixed.Sub(supply1, supply0)
	require.NoError(t, err)
	require.Equal(t, fixed.Wad(1).Dec(), mint1.Dec())

	sin, err := s.vat.Sin(vowAddr)
	require.NoError(t, err)
	require.True(t, sin.Lt(fixed.Rad(10)))
	joy, err := s.vat.Joy(vowAddr)
	require.NoError(t, err)
	require.True(t, joy.IsZero())

	s.advance(500 * time.Second)
	res, err = s.vow.Keep(nil)
	require.NoError(t, err)
	require.Equal(t, fixed.MustParse("0.5", fixed.WadDecimals).Dec(), res.Minted.Dec())

	_, err = s.vow.Keep(nil)
	require.ErrorIs(t, err, flow.ErrLotZero)
}

func TestKeepFlopWithoutIssuanceRamp(t *testing.T) {
	s := newSystem(t, nil)
	s.curb(vowAddr, "RISK", "1000", "1", 1000)
	require.NoError(t, s.vat.Suck(admin, admin, vowAddr, fixed.Rad(10)))
	_, err := s.vow.Keep(nil)
	require.ErrorIs(t, err, flow.ErrLotZero)
}
