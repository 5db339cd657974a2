package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/vat"
	"cdpbank/native/vow"
)

type urnResponse struct {
	Ilk   string `json:"ilk"`
	Owner string `json:"owner"`
	Ink   string `json:"ink"`
	Art   string `json:"art"`
}

type ilkResponse struct {
	ID   string `json:"id"`
	Tag  string `json:"tag,omitempty"`
	Tart string `json:"tart"`
	Rack string `json:"rack"`
	Mark string `json:"mark"`
	Line string `json:"line"`
	Dust string `json:"dust"`
	Fee  string `json:"fee"`
	Chop string `json:"chop"`
	Liqr string `json:"liqr"`
	Rho  uint64 `json:"rho"`
}

type saleResponse struct {
	Asset    string `json:"asset"`
	Exited   string `json:"exited"`
	Sold     string `json:"sold"`
	Proceeds string `json:"proceeds"`
	FlowID   string `json:"flow_id,omitempty"`
}

type liquidationResponse struct {
	Ilk      string         `json:"ilk"`
	Owner    string         `json:"owner"`
	Ink      string         `json:"ink"`
	Art      string         `json:"art"`
	Bill     string         `json:"bill"`
	Proceeds string         `json:"proceeds"`
	Sales    []saleResponse `json:"sales"`
}

type reconciliationResponse struct {
	Action   string `json:"action"`
	Accrued  string `json:"accrued"`
	Healed   string `json:"healed"`
	Sold     string `json:"sold"`
	Received string `json:"received"`
	Minted   string `json:"minted"`
	Burned   string `json:"burned"`
	FlowID   string `json:"flow_id,omitempty"`
}

type flowResponse struct {
	ID        string `json:"id"`
	Consumer  string `json:"consumer"`
	AssetIn   string `json:"asset_in"`
	Requested string `json:"requested"`
	AmountIn  string `json:"amount_in"`
	AssetOut  string `json:"asset_out"`
	AmountOut string `json:"amount_out,omitempty"`
	Status    string `json:"status"`
	Created   uint64 `json:"created"`
	Settled   uint64 `json:"settled,omitempty"`
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return fixed.Zero()
	}
	return x
}

func toUrn(id, owner string, u *vat.Urn) urnResponse {
	return urnResponse{Ilk: id, Owner: owner, Ink: wad(u.Ink), Art: wad(u.Art)}
}

func toIlk(id string, i *vat.Ilk) ilkResponse {
	return ilkResponse{
		ID:   id,
		Tag:  i.Tag,
		Tart: wad(i.Tart),
		Rack: ray(i.Rack),
		Mark: ray(i.Mark),
		Line: rad(i.Line),
		Dust: rad(i.Dust),
		Fee:  ray(i.Fee),
		Chop: ray(i.Chop),
		Liqr: ray(i.Liqr),
		Rho:  i.Rho,
	}
}

func toLiquidation(l *vow.Liquidation) liquidationResponse {
	out := liquidationResponse{
		Ilk:      l.Ilk,
		Owner:    l.Owner.Hex(),
		Ink:      wad(l.Ink),
		Art:      wad(l.Art),
		Bill:     rad(l.Bill),
		Proceeds: wad(orZero(l.Proceeds)),
		Sales:    make([]saleResponse, 0, len(l.Sales)),
	}
	for _, sale := range l.Sales {
		out.Sales = append(out.Sales, saleResponse{
			Asset:    sale.Asset,
			Exited:   wad(orZero(sale.Exited)),
			Sold:     wad(orZero(sale.Sold)),
			Proceeds: wad(orZero(sale.Proceeds)),
			FlowID:   sale.FlowID,
		})
	}
	return out
}

func toReconciliation(r *vow.Reconciliation) reconciliationResponse {
	return reconciliationResponse{
		Action:   string(r.Action),
		Accrued:  rad(orZero(r.Accrued)),
		Healed:   rad(orZero(r.Healed)),
		Sold:     wad(orZero(r.Sold)),
		Received: wad(orZero(r.Received)),
		Minted:   wad(orZero(r.Minted)),
		Burned:   wad(orZero(r.Burned)),
		FlowID:   r.FlowID,
	}
}

func toFlow(r *flow.Record) flowResponse {
	out := flowResponse{
		ID:        r.ID,
		Consumer:  r.Consumer.Hex(),
		AssetIn:   r.AssetIn,
		Requested: wad(orZero(r.Requested)),
		AmountIn:  wad(orZero(r.AmountIn)),
		AssetOut:  r.AssetOut,
		Status:    r.Status.String(),
		Created:   r.Created,
		Settled:   r.Settled,
	}
	if r.AmountOut != nil {
		out.AmountOut = wad(r.AmountOut)
	}
	return out
}

// Views.

func (s *Server) handleIlks(w http.ResponseWriter, r *http.Request) {
	ids, err := s.bank.Ilks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ilks": ids})
}

func (s *Server) handleIlk(w http.ResponseWriter, r *http.Request) {
	id := vat.NormalizeIlk(chi.URLParam(r, "ilk"))
	ilk, err := s.bank.Ilk(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIlk(id, ilk))
}

func (s *Server) handleUrn(w http.ResponseWriter, r *http.Request) {
	id := vat.NormalizeIlk(chi.URLParam(r, "ilk"))
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	urn, err := s.bank.Urn(r.Context(), id, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUrn(id, owner.Hex(), urn))
}

func (s *Server) handleSafe(w http.ResponseWriter, r *http.Request) {
	id := vat.NormalizeIlk(chi.URLParam(r, "ilk"))
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := s.bank.Safe(r.Context(), id, owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ilk": id, "owner": owner.Hex(), "status": status.String()})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bal, err := s.bank.Balances(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cfg := s.bank.Config()
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":    owner.Hex(),
		"joy":      rad(bal.Joy),
		"sin":      rad(bal.Sin),
		cfg.Stable: wad(bal.Stable),
		cfg.Risk:   wad(bal.Risk),
	})
}

func (s *Server) handleGlobals(w http.ResponseWriter, r *http.Request) {
	g, err := s.bank.Globals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ceil": rad(g.Ceil),
		"debt": rad(g.Debt),
		"vice": rad(g.Vice),
		"par":  ray(g.Par),
		"way":  ray(g.Way),
	})
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	rec, err := s.bank.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFlow(rec))
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	consumer, err := s.bank.ResolveConsumer(chi.URLParam(r, "consumer"))
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	asset := chi.URLParam(r, "asset")
	avail, err := s.bank.Capacity(r.Context(), consumer, asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"consumer": consumer.Hex(), "asset": asset, "available": wad(avail)})
}

func journalLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return 0, badRequest("limit must be between 1 and 1000")
	}
	return n, nil
}

func (s *Server) handleJournalLiquidations(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "journal disabled"})
		return
	}
	limit, err := journalLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.journal.Liquidations(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleJournalReconciliations(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "journal disabled"})
		return
	}
	limit, err := journalLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.journal.Reconciliations(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Public upkeep.

type ilkRequest struct {
	Ilk string `json:"ilk"`
}

type liquidateRequest struct {
	Ilk    string   `json:"ilk"`
	Owner  string   `json:"owner"`
	Assets []string `json:"assets,omitempty"`
}

type keepRequest struct {
	Ilks []string `json:"ilks,omitempty"`
}

type settleRequest struct {
	ID string `json:"id"`
}

type sweepRequest struct {
	Ilk    string   `json:"ilk"`
	Assets []string `json:"assets,omitempty"`
}

func (s *Server) handleDrip(w http.ResponseWriter, r *http.Request) {
	var req ilkRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	accrued, err := s.bank.Drip(r.Context(), req.Ilk)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ilk": vat.NormalizeIlk(req.Ilk), "accrued": rad(accrued)})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	liq, err := s.bank.Liquidate(r.Context(), req.Ilk, owner, req.Assets)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.journal != nil {
		s.journalErr("liquidate", s.journal.RecordLiquidation(r.Context(), liq))
	}
	writeJSON(w, http.StatusOK, toLiquidation(liq))
}

func (s *Server) handleKeep(w http.ResponseWriter, r *http.Request) {
	var req keepRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.bank.Keep(r.Context(), req.Ilks)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.journal != nil {
		s.journalErr("keep", s.journal.RecordReconciliation(r.Context(), rec))
	}
	writeJSON(w, http.StatusOK, toReconciliation(rec))
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.bank.Settle(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.journal != nil {
		s.journalErr("settle", s.journal.RecordFlow(r.Context(), rec))
	}
	writeJSON(w, http.StatusOK, toFlow(rec))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	proceeds, err := s.bank.Sweep(r.Context(), req.Ilk, req.Assets)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ilk": vat.NormalizeIlk(req.Ilk), "proceeds": wad(orZero(proceeds))})
}

// Account holder calls. The token subject is the acting account.

type adjustRequest struct {
	Ilk   string `json:"ilk"`
	Owner string `json:"owner,omitempty"`
	Dink  string `json:"dink"`
	Dart  string `json:"dart"`
}

type radRequest struct {
	Rad string `json:"rad"`
}

type moveRequest struct {
	Dst string `json:"dst"`
	Rad string `json:"rad"`
}

type gemRequest struct {
	Ilk    string `json:"ilk"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type joyRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	caller := s.principal(r).Subject
	var req adjustRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner := caller
	if req.Owner != "" {
		var err error
		if owner, err = parseAddress("owner", req.Owner); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	dink, err := parseDelta("dink", req.Dink, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	dart, err := parseDelta("dart", req.Dart, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	urn, err := s.bank.Adjust(r.Context(), caller, req.Ilk, owner, dink, dart)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUrn(vat.NormalizeIlk(req.Ilk), owner.Hex(), urn))
}

func (s *Server) handleHeal(w http.ResponseWriter, r *http.Request) {
	var req radRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("rad", req.Rad, fixed.RadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	healed, err := s.bank.Heal(r.Context(), s.principal(r).Subject, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"healed": rad(healed)})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	dst, err := parseAddress("dst", req.Dst)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("rad", req.Rad, fixed.RadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := s.principal(r).Subject
	if err := s.bank.Move(r.Context(), caller, caller, dst, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) gem(w http.ResponseWriter, r *http.Request, exit bool) {
	var req gemRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	usr := s.principal(r).Subject
	if exit {
		err = s.bank.ExitGem(r.Context(), usr, req.Ilk, req.Asset, amount)
	} else {
		err = s.bank.JoinGem(r.Context(), usr, req.Ilk, req.Asset, amount)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinGem(w http.ResponseWriter, r *http.Request) { s.gem(w, r, false) }

func (s *Server) handleExitGem(w http.ResponseWriter, r *http.Request) { s.gem(w, r, true) }

func (s *Server) joy(w http.ResponseWriter, r *http.Request, exit bool) {
	var req joyRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	usr := s.principal(r).Subject
	if exit {
		err = s.bank.ExitJoy(r.Context(), usr, amount)
	} else {
		err = s.bank.JoinJoy(r.Context(), usr, amount)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoinJoy(w http.ResponseWriter, r *http.Request) { s.joy(w, r, false) }

func (s *Server) handleExitJoy(w http.ResponseWriter, r *http.Request) { s.joy(w, r, true) }
