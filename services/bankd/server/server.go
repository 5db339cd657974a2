package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cdpbank/core/bank"
	nativecommon "cdpbank/native/common"
	"cdpbank/native/dock"
	"cdpbank/native/fixed"
	"cdpbank/native/flow"
	"cdpbank/native/token"
	"cdpbank/native/vat"
	"cdpbank/native/venue"
	"cdpbank/native/vow"
	"cdpbank/services/bankd/journal"
	"cdpbank/services/bankd/middleware"
)

// Journal is the audit sink for settlement events.
type Journal interface {
	RecordLiquidation(ctx context.Context, liq *vow.Liquidation) error
	RecordReconciliation(ctx context.Context, rec *vow.Reconciliation) error
	RecordFlow(ctx context.Context, rec *flow.Record) error
	Liquidations(ctx context.Context, limit int) ([]journal.Liquidation, error)
	Reconciliations(ctx context.Context, limit int) ([]journal.Reconciliation, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
}

// Server hosts the bank's JSON API.
type Server struct {
	cfg     Config
	bank    *bank.Bank
	journal Journal
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	logger  *slog.Logger
	kinds   interface{ Label(error) string }
}

// New constructs a new HTTP server.
func New(cfg Config, b *bank.Bank, j Journal, auth *middleware.Authenticator, limiter *middleware.RateLimiter, logger *slog.Logger) (*Server, error) {
	if b == nil {
		return nil, fmt.Errorf("bank required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, bank: b, journal: j, auth: auth, limiter: limiter, logger: logger, kinds: bank.ErrorKinds()}, nil
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Observe)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/ilks", s.handleIlks)
		r.Get("/ilks/{ilk}", s.handleIlk)
		r.Get("/urns/{ilk}/{owner}", s.handleUrn)
		r.Get("/safe/{ilk}/{owner}", s.handleSafe)
		r.Get("/balances/{owner}", s.handleBalances)
		r.Get("/globals", s.handleGlobals)
		r.Get("/flows/{id}", s.handleFlow)
		r.Get("/capacity/{consumer}/{asset}", s.handleCapacity)
		r.Get("/journal/liquidations", s.handleJournalLiquidations)
		r.Get("/journal/reconciliations", s.handleJournalReconciliations)

		r.Post("/drip", s.handleDrip)
		r.Post("/liquidate", s.handleLiquidate)
		r.Post("/keep", s.handleKeep)
		r.Post("/settle", s.handleSettle)
		r.Post("/sweep", s.handleSweep)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require(false))
			r.Post("/adjust", s.handleAdjust)
			r.Post("/heal", s.handleHeal)
			r.Post("/move", s.handleMove)
			r.Post("/gem/join", s.handleJoinGem)
			r.Post("/gem/exit", s.handleExitGem)
			r.Post("/joy/join", s.handleJoinJoy)
			r.Post("/joy/exit", s.handleExitJoy)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Require(true))
			r.Post("/suck", s.handleSuck)
			r.Post("/trade", s.handleTrade)
			r.Post("/curb", s.handleCurb)
			r.Post("/push", s.handlePush)
			r.Post("/mint", s.handleMint)
			r.Post("/file", s.handleFile)
			r.Post("/filk", s.handleFilk)
			r.Post("/pause", s.handlePause)
		})
	})

	return otelhttp.NewHandler(r, "bankd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("bankd: listening", slog.String("addr", s.cfg.ListenAddress))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// statusFor maps the failure taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, vat.ErrInvalidParam),
		errors.Is(err, vat.ErrUnknownParam),
		errors.Is(err, token.ErrInvalidAsset),
		errors.Is(err, dock.ErrInvalidAsset),
		errors.Is(err, flow.ErrInvalidRamp),
		errors.Is(err, flow.ErrUnsupported),
		errors.Is(err, venue.ErrSamePair),
		errors.Is(err, venue.ErrInvalidFee):
		return http.StatusBadRequest
	case errors.Is(err, vat.ErrNotAuthorized), errors.Is(err, bank.ErrReservedAsset):
		return http.StatusForbidden
	case errors.Is(err, vat.ErrUnknownIlk),
		errors.Is(err, flow.ErrUnknownFlow),
		errors.Is(err, venue.ErrNoPool),
		errors.Is(err, dock.ErrNotBound):
		return http.StatusNotFound
	case errors.Is(err, vat.ErrIlkExists), errors.Is(err, venue.ErrPoolExists):
		return http.StatusConflict
	case errors.Is(err, vat.ErrOverCeiling),
		errors.Is(err, vat.ErrUnsafe),
		errors.Is(err, vat.ErrBelowDust),
		errors.Is(err, vow.ErrMarkZero),
		errors.Is(err, flow.ErrLotZero),
		errors.Is(err, dock.ErrMissingAsset),
		errors.Is(err, venue.ErrSlippage),
		errors.Is(err, venue.ErrZeroLiquidity),
		errors.Is(err, venue.ErrDustTrade),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, fixed.ErrArithmetic):
		return http.StatusUnprocessableEntity
	case errors.Is(err, nativecommon.ErrModulePaused), errors.Is(err, bank.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := s.kinds.Label(err)
	if kind == "error" {
		kind = ""
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("bankd: request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

func (s *Server) principal(r *http.Request) *middleware.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

// journalErr logs a journal failure; the ledger change is already committed.
func (s *Server) journalErr(op string, err error) {
	if err != nil {
		s.logger.Warn("bankd: journal write failed", slog.String("op", op), slog.Any("error", err))
	}
}
