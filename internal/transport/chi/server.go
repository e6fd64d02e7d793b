package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/provider"
)

// SearchReader looks up searches for the execute endpoint.
type SearchReader interface {
	Get(ctx context.Context, id string) (*domain.Search, error)
}

// Enqueuer schedules search execution jobs.
type Enqueuer interface {
	EnqueueSearch(ctx context.Context, searchID string) error
}

// ProviderTester runs a single provider without fallback or persistence.
type ProviderTester interface {
	TestProvider(ctx context.Context, kind provider.Kind, query string, numResults int) ([]domain.SearchHit, error)
}

// Pinger checks store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the operational HTTP surface of the pipeline worker. The
// surrounding CRUD and auth system lives elsewhere; this surface only
// triggers work and reports liveness.
type Server struct {
	searches SearchReader
	enqueuer Enqueuer
	tester   ProviderTester
	pinger   Pinger
	logger   *zap.Logger
}

// NewServer creates the HTTP server.
func NewServer(searches SearchReader, enqueuer Enqueuer, tester ProviderTester, pinger Pinger, logger *zap.Logger) *Server {
	return &Server{
		searches: searches,
		enqueuer: enqueuer,
		tester:   tester,
		pinger:   pinger,
		logger:   logger,
	}
}

// Router builds the chi router with standard middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)

	r.Post("/searches/{searchID}/execute", s.executeSearch)
	r.Post("/providers/{kind}/test", s.testProvider)
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// executeSearch enqueues a pending search for background execution.
// Fire-and-forget: the response only acknowledges queueing.
func (s *Server) executeSearch(w http.ResponseWriter, r *http.Request) {
	searchID := chi.URLParam(r, "searchID")

	search, err := s.searches.Get(r.Context(), searchID)
	if err != nil {
		if errors.Is(err, domain.ErrSearchNotFound) {
			writeError(w, http.StatusNotFound, "search_not_found", "search does not exist")
			return
		}
		s.logger.Error("search lookup failed", zap.String("search_id", searchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "search lookup failed")
		return
	}
	if search.Status != domain.StatusPending {
		writeError(w, http.StatusConflict, "not_pending", "search already picked up")
		return
	}

	if err := s.enqueuer.EnqueueSearch(r.Context(), searchID); err != nil {
		s.logger.Error("enqueue failed", zap.String("search_id", searchID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to enqueue")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":    "queued",
		"search_id": searchID,
	})
}

type testProviderRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
}

type testProviderResponse struct {
	Provider string             `json:"provider"`
	Hits     []domain.SearchHit `json:"hits"`
}

// testProvider runs the named provider once, fallback disabled, so a
// misconfiguration is visible to the operator instead of masked.
func (s *Server) testProvider(w http.ResponseWriter, r *http.Request) {
	kind, err := provider.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown_provider", err.Error())
		return
	}

	var req testProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}
	if req.NumResults <= 0 {
		req.NumResults = 10
	}

	hits, err := s.tester.TestProvider(r.Context(), kind, req.Query, req.NumResults)
	if err != nil {
		s.handleProviderError(w, kind, err)
		return
	}

	writeJSON(w, http.StatusOK, testProviderResponse{Provider: string(kind), Hits: hits})
}

func (s *Server) handleProviderError(w http.ResponseWriter, kind provider.Kind, err error) {
	s.logger.Warn("provider test failed", zap.String("provider", string(kind)), zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrProviderMisconfigured):
		writeError(w, http.StatusBadRequest, "provider_misconfigured", err.Error())
	case errors.Is(err, domain.ErrCaptchaUnsolved):
		writeError(w, http.StatusBadGateway, "captcha_unsolved", err.Error())
	case errors.Is(err, domain.ErrBlockedByTarget):
		writeError(w, http.StatusBadGateway, "blocked_by_target", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "provider did not answer in time")
	default:
		writeError(w, http.StatusBadGateway, "provider_error", err.Error())
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
