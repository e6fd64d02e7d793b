package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
)

func yandexXMLPage(page, docs int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?><yandexsearch version="1.0"><response>`)
	b.WriteString("<results><grouping>")
	for i := 0; i < docs; i++ {
		idx := page*10 + i + 1
		fmt.Fprintf(&b, `<group><doc>
			<url>https://site%d.com/page</url>
			<title>Site %d <hlword>title</hlword></title>
			<passages><passage>Passage %d</passage></passages>
		</doc></group>`, idx, idx, idx)
	}
	b.WriteString("</grouping></results></response></yandexsearch>")
	return b.String()
}

func yandexXMLServer(t *testing.T, pageSizes map[int]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("folderid") == "" || r.URL.Query().Get("apikey") == "" {
			t.Error("credentials missing from request")
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		docs := pageSizes[page]
		_, _ = w.Write([]byte(yandexXMLPage(page, docs)))
	}))
}

func xmlConfig() config.ProviderConfig {
	return config.ProviderConfig{FolderID: "b1gfolder", APIKey: "AQVNkey"}
}

func TestYandexXML_Misconfigured(t *testing.T) {
	p := NewYandexXML("http://unused.invalid", zap.NewNop())

	_, err := p.Fetch(context.Background(), "query", 10, config.ProviderConfig{})
	if !errors.Is(err, domain.ErrProviderMisconfigured) {
		t.Fatalf("err = %v, want ErrProviderMisconfigured", err)
	}
}

func TestYandexXML_Fetch(t *testing.T) {
	srv := yandexXMLServer(t, map[int]int{0: 10, 1: 10, 2: 4})
	defer srv.Close()

	p := NewYandexXML(srv.URL, zap.NewNop())
	hits, err := p.Fetch(context.Background(), "query", 30, xmlConfig())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(hits) != 24 {
		t.Fatalf("hits = %d, want 24 (pages of 10, 10, 4)", len(hits))
	}
	if hits[0].Title != "Site 1 title" {
		t.Errorf("title = %q, highlight markup must be flattened", hits[0].Title)
	}
	if hits[0].Snippet != "Passage 1" || hits[0].Domain != "site1.com" {
		t.Errorf("first hit = %+v", hits[0])
	}
	if hits[23].Position != 24 {
		t.Errorf("last position = %d, want 24", hits[23].Position)
	}
}

func TestYandexXML_BatchesCommitted(t *testing.T) {
	srv := yandexXMLServer(t, map[int]int{0: 10, 1: 10, 2: 10, 3: 10, 4: 10})
	defer srv.Close()

	p := NewYandexXML(srv.URL, zap.NewNop())
	var batches [][]domain.SearchHit
	err := p.FetchBatches(context.Background(), "query", 50, xmlConfig(), func(_ context.Context, hits []domain.SearchHit) error {
		batches = append(batches, hits)
		return nil
	})
	if err != nil {
		t.Fatalf("FetchBatches: %v", err)
	}
	// 5 pages in rounds of 3: first round 30 hits, second 20.
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if len(batches[0]) != 30 || len(batches[1]) != 20 {
		t.Errorf("batch sizes = %d/%d, want 30/20", len(batches[0]), len(batches[1]))
	}
}

func TestYandexXML_FailedPageSkippedInsideRound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(yandexXMLPage(page, 10)))
	}))
	defer srv.Close()

	p := NewYandexXML(srv.URL, zap.NewNop())
	hits, err := p.Fetch(context.Background(), "query", 30, xmlConfig())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// The middle page of the round failed; its neighbours still count and
	// the failure does not read as an exhausted result set.
	if len(hits) != 20 {
		t.Fatalf("hits = %d, want 20 (pages 0 and 2 of the round)", len(hits))
	}
	for _, h := range hits {
		if h.Position > 10 && h.Position <= 20 {
			t.Errorf("hit from the failed page present: %+v", h)
		}
	}
}

func TestYandexXML_EmptyFirstRoundRaises(t *testing.T) {
	srv := yandexXMLServer(t, map[int]int{})
	defer srv.Close()

	p := NewYandexXML(srv.URL, zap.NewNop())
	_, err := p.Fetch(context.Background(), "query", 10, xmlConfig())
	if !errors.Is(err, domain.ErrBlockedByTarget) {
		t.Fatalf("err = %v, want ErrBlockedByTarget", err)
	}
}

func TestYandexXML_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><yandexsearch><response>
			<error code="32">Limit exceeded</error>
		</response></yandexsearch>`))
	}))
	defer srv.Close()

	p := NewYandexXML(srv.URL, zap.NewNop())
	// Every page errors, so the first round is empty and raises.
	_, err := p.Fetch(context.Background(), "query", 10, xmlConfig())
	if err == nil {
		t.Fatal("API error on every page must surface")
	}
}
