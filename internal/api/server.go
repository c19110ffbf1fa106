// Package api exposes the carrier sales operations over HTTP for the call
// platform that drives inbound calls.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/inbound-carrier/internal/carrier"
	"github.com/sells-group/inbound-carrier/internal/catalog"
	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/negotiation"
	"github.com/sells-group/inbound-carrier/internal/recorder"
	"github.com/sells-group/inbound-carrier/internal/store"
)

// APIKeyHeader carries the shared secret on protected requests.
const APIKeyHeader = "X-API-Key"

// Verifier checks an MC number against the carrier registry.
type Verifier interface {
	Verify(ctx context.Context, mc string) (carrier.VerificationResult, error)
}

// Loads answers load queries.
type Loads interface {
	Get(ctx context.Context, loadID string) (model.Load, error)
	Suggest(ctx context.Context, q catalog.SuggestQuery) ([]model.Load, error)
	Search(ctx context.Context, f catalog.Filter) ([]model.Load, error)
}

// Negotiator runs and inspects negotiation sessions.
type Negotiator interface {
	Round(ctx context.Context, req negotiation.RoundRequest) (negotiation.RoundResult, error)
	Get(ctx context.Context, loadID, mcNumber string) (*model.NegotiationSession, error)
}

// Calls records finished calls and reports on them.
type Calls interface {
	Record(ctx context.Context, rec *model.CallRecord) error
	List(ctx context.Context, filter store.CallFilter) ([]model.CallRecord, error)
	Summary(ctx context.Context) (*recorder.Summary, error)
	LogEvent(ctx context.Context, ev model.Event)
}

// Config configures the router.
type Config struct {
	APIKey      string
	CORSOrigins []string
}

// Server holds the handlers' dependencies.
type Server struct {
	cfg        Config
	verifier   Verifier
	loads      Loads
	negotiator Negotiator
	calls      Calls
	nowFunc    func() time.Time
}

// NewServer creates a Server.
func NewServer(cfg Config, verifier Verifier, loads Loads, negotiator Negotiator, calls Calls) *Server {
	return &Server{
		cfg:        cfg,
		verifier:   verifier,
		loads:      loads,
		negotiator: negotiator,
		calls:      calls,
		nowFunc:    time.Now,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", APIKeyHeader},
		MaxAge:         600,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(s.cfg.APIKey))

		r.Post("/verify-mc", s.handleVerifyMC)
		r.Post("/suggest-loads", s.handleSuggestLoads)
		r.Get("/search-loads", s.handleSearchLoads)
		r.Get("/load/{load_id}", s.handleGetLoad)
		r.Post("/negotiate-round", s.handleNegotiateRound)
		r.Get("/negotiations/{load_id}/{mc_number}", s.handleGetNegotiation)
		r.Post("/webhooks/happyrobot/call-summary", s.handleCallSummary)
		r.Get("/calls", s.handleListCalls)
		r.Get("/calls/summary", s.handleCallStats)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "no such route"})
	})

	return r
}
