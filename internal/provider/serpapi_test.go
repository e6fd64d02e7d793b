package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
)

func TestSerpAPI_MissingKey(t *testing.T) {
	p := NewSerpAPI("http://unused.invalid", zap.NewNop())

	_, err := p.Fetch(context.Background(), "query", 10, config.ProviderConfig{})
	if !errors.Is(err, domain.ErrProviderMisconfigured) {
		t.Fatalf("err = %v, want ErrProviderMisconfigured", err)
	}
}

func TestSerpAPI_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("api_key") != "secret" || q.Get("engine") != "yandex" {
			t.Errorf("query = %v", q)
		}
		payload := map[string]any{
			"organic_results": []map[string]string{
				{"title": "First", "link": "https://first.com/a", "snippet": "s1"},
				{"title": "Second", "link": "https://second.com/b", "snippet": "s2"},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	p := NewSerpAPI(srv.URL, zap.NewNop())
	hits, err := p.Fetch(context.Background(), "query", 10, config.ProviderConfig{APIKey: "secret"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Domain != "first.com" || hits[1].Position != 2 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestSerpAPI_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer srv.Close()

	p := NewSerpAPI(srv.URL, zap.NewNop())
	_, err := p.Fetch(context.Background(), "query", 10, config.ProviderConfig{APIKey: "bad"})
	var acqErr *domain.AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("err = %v, want AcquisitionError", err)
	}
}
