package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"cdpbank/config"
	"cdpbank/core/bank"
	nativecommon "cdpbank/native/common"
	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/vat"
	"cdpbank/services/bankd/journal"
	"cdpbank/services/bankd/middleware"
	"cdpbank/storage"
)

const testSecret = "bankd-secret"

var (
	ali      = ethcommon.HexToAddress("0xa1")
	lp       = ethcommon.HexToAddress("0x11")
	operator = ethcommon.HexToAddress("0xad")
)

type fixture struct {
	t       *testing.T
	now     time.Time
	bank    *bank.Bank
	journal *journal.Journal
	handler http.Handler
}

func testMarket() *config.Market {
	return &config.Market{
		Stable: "RICO",
		Risk:   "RISK",
		Bar:    "0",
		Ceil:   "100000",
		Ilks: []config.Ilk{{
			ID:     "weth",
			Tag:    "weth:rico",
			Line:   "100000",
			Fee:    "1",
			Chop:   "1.1",
			Liqr:   "1",
			Assets: []string{"WETH"},
		}},
		Ramps: []config.Ramp{
			{Consumer: config.ConsumerSettlement, Asset: "WETH", Vel: "1000", Rel: "1", Cel: 1000},
			{Consumer: config.ConsumerSettlement, Asset: "RICO", Vel: "1000", Rel: "1", Cel: 1000},
			{Consumer: config.ConsumerIssuer, Asset: "RISK", Vel: "1000", Rel: "1", Cel: 1000},
		},
		Pools: []config.Pool{
			{AssetA: "WETH", AssetB: "RICO"},
			{AssetA: "RISK", AssetB: "RICO"},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	market := testMarket()
	require.NoError(t, config.Validate(market))
	params, err := market.Params()
	require.NoError(t, err)

	f := &fixture{t: t, now: time.Unix(1_700_000_000, 0)}
	f.bank = bank.New(storage.NewMemDB(), bank.Config{Stable: params.Stable, Risk: params.Risk, Bar: params.Bar})
	f.bank.SetClock(func() time.Time { return f.now })
	require.NoError(t, f.bank.Bootstrap(ctx, params))

	admin := f.bank.Addresses().Admin
	require.NoError(t, f.bank.Suck(ctx, admin, lp, admin, fixed.Rad(20_000)))
	require.NoError(t, f.bank.ExitJoy(ctx, lp, fixed.Wad(20_000)))
	require.NoError(t, f.bank.Mint(ctx, admin, "WETH", lp, fixed.Wad(10_000)))
	require.NoError(t, f.bank.Mint(ctx, admin, "RISK", lp, fixed.Wad(10_000)))
	require.NoError(t, f.bank.AddLiquidity(ctx, lp, "WETH", fixed.Wad(10_000), "RICO", fixed.Wad(10_000)))
	require.NoError(t, f.bank.AddLiquidity(ctx, lp, "RISK", fixed.Wad(10_000), "RICO", fixed.Wad(10_000)))

	f.journal, err = journal.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.journal.Close() })

	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: testSecret}, nil)
	require.NoError(t, err)
	srv, err := New(Config{}, f.bank, f.journal, auth, nil, nil)
	require.NoError(t, err)
	f.handler = srv.Handler()
	return f
}

func bearer(t *testing.T, sub ethcommon.Address, scope string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub.Hex(),
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) push(price string) {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/v1/push", bearer(f.t, operator, "bank:admin"), map[string]interface{}{
		"tag":         "weth:rico",
		"value":       price,
		"valid_until": f.now.Add(time.Hour).Unix(),
	})
	require.Equal(f.t, http.StatusNoContent, rec.Code, rec.Body.String())
}

// open funds ali with 100 WETH of collateral and draws 50 of debt.
func (f *fixture) open() {
	f.t.Helper()
	admin := bearer(f.t, operator, "bank:admin")
	user := bearer(f.t, ali, "")
	f.push("1")

	rec := f.do(http.MethodPost, "/v1/mint", admin, map[string]string{"asset": "WETH", "to": ali.Hex(), "amount": "100"})
	require.Equal(f.t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = f.do(http.MethodPost, "/v1/gem/join", user, map[string]string{"ilk": "weth", "asset": "WETH", "amount": "100"})
	require.Equal(f.t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = f.do(http.MethodPost, "/v1/adjust", user, map[string]string{"ilk": "weth", "dink": "100", "dart": "50"})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())

	var urn urnResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &urn))
	require.Equal(f.t, "100", urn.Ink)
	require.Equal(f.t, "50", urn.Art)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestAuthTiers(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"tag": "weth:rico", "value": "1"}

	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/v1/push", "", body).Code)
	require.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/v1/push", bearer(t, ali, ""), body).Code)
	require.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/v1/adjust", "", map[string]string{"ilk": "weth"}).Code)

	// Upkeep is open to anyone.
	rec := f.do(http.MethodPost, "/v1/drip", "", map[string]string{"ilk": "weth"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPositionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.open()

	rec := f.do(http.MethodGet, "/v1/urns/weth/"+ali.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var urn urnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &urn))
	require.Equal(t, "50", urn.Art)

	rec = f.do(http.MethodGet, "/v1/balances/"+ali.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	require.Equal(t, "50", bal["joy"])

	rec = f.do(http.MethodPost, "/v1/joy/exit", bearer(t, ali, ""), map[string]string{"amount": "20"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = f.do(http.MethodGet, "/v1/balances/"+ali.Hex(), "", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	require.Equal(t, "30", bal["joy"])
	require.Equal(t, "20", bal["RICO"])

	rec = f.do(http.MethodGet, "/v1/safe/weth/"+ali.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"safe"`)
}

func TestAdjustErrors(t *testing.T) {
	f := newFixture(t)
	f.open()
	user := bearer(t, ali, "")

	rec := f.do(http.MethodPost, "/v1/adjust", user, map[string]string{"ilk": "weth", "dart": "60"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unsafe", body.Kind)

	rec = f.do(http.MethodPost, "/v1/adjust", user, map[string]string{"ilk": "wbtc", "dart": "1"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/v1/adjust", user, map[string]string{"ilk": "weth", "dart": "1.0000000000000000001"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Another account may not draw against ali's position.
	rec = f.do(http.MethodPost, "/v1/adjust", bearer(t, lp, ""), map[string]string{"ilk": "weth", "owner": ali.Hex(), "dart": "1"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLiquidateAndKeepAreJournalled(t *testing.T) {
	f := newFixture(t)
	f.open()
	f.push("0.4")

	rec := f.do(http.MethodPost, "/v1/liquidate", "", map[string]string{"ilk": "weth", "owner": ali.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var liq liquidationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &liq))
	require.Equal(t, "55", liq.Bill)
	require.Len(t, liq.Sales, 1)

	rec = f.do(http.MethodPost, "/v1/liquidate", "", map[string]string{"ilk": "weth", "owner": ali.Hex()})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(http.MethodPost, "/v1/keep", "", map[string]interface{}{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var keep reconciliationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keep))
	require.Equal(t, "flap", keep.Action)
	require.Equal(t, "55", keep.Healed)

	rec = f.do(http.MethodGet, "/v1/journal/liquidations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []journal.Liquidation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "weth", rows[0].Ilk)

	rec = f.do(http.MethodGet, "/v1/journal/reconciliations?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []journal.Reconciliation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	require.Equal(t, "flap", recs[0].Action)

	rec = f.do(http.MethodGet, "/v1/journal/reconciliations?limit=0", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTradeAndSettle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := bearer(t, operator, "bank:admin")

	rec := f.do(http.MethodPost, "/v1/curb", admin, map[string]interface{}{
		"consumer": lp.Hex(), "asset": "WETH", "vel": "5", "rel": "1", "cel": 10,
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.NoError(t, f.bank.Mint(ctx, f.bank.Addresses().Admin, "WETH", lp, fixed.Wad(100)))

	rec = f.do(http.MethodPost, "/v1/trade", admin, map[string]string{
		"consumer": lp.Hex(), "asset_in": "WETH", "amount": "100", "asset_out": "RICO",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var trade flowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trade))
	require.Equal(t, "50", trade.AmountIn)
	require.Equal(t, "pending", trade.Status)

	rec = f.do(http.MethodGet, fmt.Sprintf("/v1/capacity/%s/WETH", lp.Hex()), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":"0"`)

	rec = f.do(http.MethodPost, "/v1/settle", "", map[string]string{"id": trade.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var settled flowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	require.Equal(t, "settled", settled.Status)
	require.NotEmpty(t, settled.AmountOut)

	row, err := f.journal.Flow(ctx, trade.ID)
	require.NoError(t, err)
	require.Equal(t, "settled", row.Status)

	rec = f.do(http.MethodGet, "/v1/flows/"+trade.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/v1/settle", "", map[string]string{"id": uuid.NewString()})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPauseEndpoint(t *testing.T) {
	f := newFixture(t)
	f.open()
	admin := bearer(t, operator, "bank:admin")

	rec := f.do(http.MethodPost, "/v1/pause", admin, map[string]interface{}{"module": "vat", "paused": true})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/v1/adjust", bearer(t, ali, ""), map[string]string{"ilk": "weth", "dart": "-1"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(http.MethodPost, "/v1/pause", admin, map[string]interface{}{"module": "vat", "paused": false})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/v1/adjust", bearer(t, ali, ""), map[string]string{"ilk": "weth", "dart": "-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/pause", admin, map[string]interface{}{"module": "oracle", "paused": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileAndFilk(t *testing.T) {
	f := newFixture(t)
	admin := bearer(t, operator, "bank:admin")

	rec := f.do(http.MethodPost, "/v1/filk", admin, map[string]string{"ilk": "weth", "key": "dust", "value": "10"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = f.do(http.MethodGet, "/v1/ilks/weth", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ilk ilkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ilk))
	require.Equal(t, "10", ilk.Dust)

	rec = f.do(http.MethodPost, "/v1/filk", admin, map[string]string{"ilk": "weth", "key": "bogus", "value": "1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/file", admin, map[string]string{"key": "ceil", "value": "5"})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = f.do(http.MethodGet, "/v1/globals", "", nil)
	require.Contains(t, rec.Body.String(), `"ceil":"5"`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{badRequest("x"), http.StatusBadRequest},
		{vat.ErrNotAuthorized, http.StatusForbidden},
		{bank.ErrReservedAsset, http.StatusForbidden},
		{vat.ErrUnknownIlk, http.StatusNotFound},
		{flow.ErrUnknownFlow, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", vat.ErrUnsafe), http.StatusUnprocessableEntity},
		{flow.ErrLotZero, http.StatusUnprocessableEntity},
		{fixed.ErrOverflow, http.StatusUnprocessableEntity},
		{nativecommon.ErrModulePaused, http.StatusServiceUnavailable},
		{bank.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("disk"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
