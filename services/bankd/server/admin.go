package server

import (
	"net/http"
	"strings"

	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/vat"
)

// Administrative calls act as the bank's admin account; the route group has
// already required the admin scope.

type suckRequest struct {
	U   string `json:"u"`
	V   string `json:"v"`
	Rad string `json:"rad"`
}

type tradeRequest struct {
	Consumer string `json:"consumer"`
	AssetIn  string `json:"asset_in"`
	Amount   string `json:"amount"`
	AssetOut string `json:"asset_out"`
	MinOut   string `json:"min_out,omitempty"`
}

type curbRequest struct {
	Consumer string `json:"consumer"`
	Asset    string `json:"asset"`
	Vel      string `json:"vel"`
	Rel      string `json:"rel"`
	Cel      uint64 `json:"cel"`
	Del      uint64 `json:"del,omitempty"`
}

type pushRequest struct {
	Tag        string `json:"tag"`
	Value      string `json:"value"`
	ValidUntil uint64 `json:"valid_until"`
}

type mintRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type fileRequest struct {
	Ilk   string `json:"ilk,omitempty"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

var pausable = map[string]bool{"vat": true, "dock": true, "flow": true, "vow": true}

func (s *Server) handleSuck(w http.ResponseWriter, r *http.Request) {
	var req suckRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := parseAddress("u", req.U)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := parseAddress("v", req.V)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("rad", req.Rad, fixed.RadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.bank.Suck(r.Context(), s.bank.Addresses().Admin, u, v, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	consumer, err := s.bank.ResolveConsumer(req.Consumer)
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	amount, err := parseAmount("amount", req.Amount, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var minOut = fixed.Zero()
	if req.MinOut != "" {
		if minOut, err = parseAmount("min_out", req.MinOut, fixed.WadDecimals); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	rec, err := s.bank.Trade(r.Context(), consumer, req.AssetIn, amount, req.AssetOut, minOut)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.journal != nil {
		s.journalErr("trade", s.journal.RecordFlow(r.Context(), rec))
	}
	writeJSON(w, http.StatusOK, toFlow(rec))
}

func (s *Server) handleCurb(w http.ResponseWriter, r *http.Request) {
	var req curbRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	consumer, err := s.bank.ResolveConsumer(req.Consumer)
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	vel, err := parseAmount("vel", req.Vel, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rel, err := parseAmount("rel", req.Rel, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ramp := flow.Ramp{Vel: vel, Rel: rel, Cel: req.Cel, Del: req.Del}
	if err := s.bank.Curb(r.Context(), s.bank.Addresses().Admin, consumer, req.Asset, ramp); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := parseAmount("value", req.Value, fixed.RayDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.bank.Push(r.Context(), s.bank.Addresses().Admin, req.Tag, value, req.ValidUntil); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount, fixed.WadDecimals)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.bank.Mint(r.Context(), s.bank.Addresses().Admin, req.Asset, to, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) parseParam(w http.ResponseWriter, r *http.Request) (*fileRequest, bool) {
	var req fileRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	req.Key = strings.ToLower(strings.TrimSpace(req.Key))
	decimals, err := paramDecimals(req.Key)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if _, err := parseAmount("value", req.Value, decimals); err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseParam(w, r)
	if !ok {
		return
	}
	decimals, _ := paramDecimals(req.Key)
	value, _ := parseAmount("value", req.Value, decimals)
	if err := s.bank.File(r.Context(), s.bank.Addresses().Admin, req.Key, value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFilk(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseParam(w, r)
	if !ok {
		return
	}
	if req.Ilk == "" {
		s.writeError(w, r, badRequest("ilk required"))
		return
	}
	decimals, _ := paramDecimals(req.Key)
	value, _ := parseAmount("value", req.Value, decimals)
	if err := s.bank.Filk(r.Context(), s.bank.Addresses().Admin, vat.NormalizeIlk(req.Ilk), req.Key, value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	module := strings.ToLower(strings.TrimSpace(req.Module))
	if !pausable[module] {
		s.writeError(w, r, badRequest("unknown module %q", req.Module))
		return
	}
	s.bank.Pause(module, req.Paused)
	writeJSON(w, http.StatusOK, map[string]interface{}{"module": module, "paused": req.Paused})
}
