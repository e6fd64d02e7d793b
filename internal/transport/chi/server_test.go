package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/provider"
)

type stubSearches struct {
	search *domain.Search
	err    error
}

func (s *stubSearches) Get(_ context.Context, _ string) (*domain.Search, error) {
	return s.search, s.err
}

type stubEnqueuer struct {
	searchIDs []string
	err       error
}

func (s *stubEnqueuer) EnqueueSearch(_ context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	s.searchIDs = append(s.searchIDs, id)
	return nil
}

type stubTester struct {
	hits     []domain.SearchHit
	err      error
	lastKind provider.Kind
}

func (s *stubTester) TestProvider(_ context.Context, kind provider.Kind, _ string, _ int) ([]domain.SearchHit, error) {
	s.lastKind = kind
	return s.hits, s.err
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(_ context.Context) error { return s.err }

func newTestServer(searches SearchReader, enq Enqueuer, tester ProviderTester, pinger Pinger) http.Handler {
	return NewServer(searches, enq, tester, pinger, zap.NewNop()).Router()
}

func TestExecuteSearch_Queued(t *testing.T) {
	enq := &stubEnqueuer{}
	router := newTestServer(
		&stubSearches{search: &domain.Search{ID: "s1", Status: domain.StatusPending}},
		enq, &stubTester{}, &stubPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/searches/s1/execute", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(enq.searchIDs) != 1 || enq.searchIDs[0] != "s1" {
		t.Errorf("enqueued = %v", enq.searchIDs)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "queued" || resp["search_id"] != "s1" {
		t.Errorf("resp = %v", resp)
	}
}

func TestExecuteSearch_NotFound(t *testing.T) {
	router := newTestServer(
		&stubSearches{err: domain.ErrSearchNotFound},
		&stubEnqueuer{}, &stubTester{}, &stubPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/searches/nope/execute", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestExecuteSearch_AlreadyProcessing(t *testing.T) {
	enq := &stubEnqueuer{}
	router := newTestServer(
		&stubSearches{search: &domain.Search{ID: "s1", Status: domain.StatusProcessing}},
		enq, &stubTester{}, &stubPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/searches/s1/execute", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
	if len(enq.searchIDs) != 0 {
		t.Error("non-pending search enqueued")
	}
}

func TestTestProvider_OK(t *testing.T) {
	tester := &stubTester{hits: []domain.SearchHit{{Position: 1, URL: "https://a.ru/", Title: "A"}}}
	router := newTestServer(&stubSearches{}, &stubEnqueuer{}, tester, &stubPinger{})

	body := strings.NewReader(`{"query":"test","num_results":5}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/providers/serpapi/test", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if tester.lastKind != provider.KindSerpAPI {
		t.Errorf("kind = %s", tester.lastKind)
	}

	var resp testProviderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Provider != "serpapi" || len(resp.Hits) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestTestProvider_UnknownKind(t *testing.T) {
	router := newTestServer(&stubSearches{}, &stubEnqueuer{}, &stubTester{}, &stubPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/providers/bing/test", strings.NewReader(`{"query":"q"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestTestProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"misconfigured", domain.ErrProviderMisconfigured, http.StatusBadRequest, "provider_misconfigured"},
		{"blocked", domain.ErrBlockedByTarget, http.StatusBadGateway, "blocked_by_target"},
		{"captcha", domain.ErrCaptchaUnsolved, http.StatusBadGateway, "captcha_unsolved"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"other", errors.New("boom"), http.StatusBadGateway, "provider_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestServer(&stubSearches{}, &stubEnqueuer{}, &stubTester{err: tt.err}, &stubPinger{})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/providers/duckduckgo/test", strings.NewReader(`{"query":"q"}`)))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Code, tt.code)
			}
		})
	}
}

func TestTestProvider_MissingQuery(t *testing.T) {
	router := newTestServer(&stubSearches{}, &stubEnqueuer{}, &stubTester{}, &stubPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/providers/serpapi/test", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router := newTestServer(&stubSearches{}, &stubEnqueuer{}, &stubTester{}, &stubPinger{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})
	t.Run("degraded", func(t *testing.T) {
		router := newTestServer(&stubSearches{}, &stubEnqueuer{}, &stubTester{}, &stubPinger{err: errors.New("down")})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
