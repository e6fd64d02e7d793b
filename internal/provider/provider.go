// Package provider contains the search surface adapters and the fallback
// orchestrator that chains them. Each adapter turns a query into paginated
// fetches over the shared transport, parses organic results, and reports
// blocks through the acquisition error taxonomy.
package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/transport"
)

// Kind identifies a search surface. The set is closed: adapters register
// at startup and dispatch goes through the registry.
type Kind string

const (
	KindGoogleHTML Kind = "google_html"
	KindYandexHTML Kind = "yandex_html"
	KindYandexXML  Kind = "yandex_xml"
	KindDuckDuckGo Kind = "duckduckgo"
	KindSerpAPI    Kind = "serpapi"
)

// Kinds lists every known surface, in registration order.
func Kinds() []Kind {
	return []Kind{KindGoogleHTML, KindYandexHTML, KindYandexXML, KindDuckDuckGo, KindSerpAPI}
}

// ParseKind validates a provider name from config or an API request.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown search provider %q", s)
}

// htmlPageSize is the organic result count per page on HTML-scraped
// surfaces; it also drives the exhaustion check (a short page ends
// pagination).
const htmlPageSize = 10

// maxResults caps a single acquisition regardless of what was asked.
const maxResults = 100

// SearchProvider is one search surface adapter.
type SearchProvider interface {
	Kind() Kind
	Fetch(ctx context.Context, query string, numResults int, cfg config.ProviderConfig) ([]domain.SearchHit, error)
}

// Fetcher is the transport surface adapters depend on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts transport.Options) (*transport.Response, error)
}

// Solver attempts a captcha bypass on a challenged response.
type Solver interface {
	Solve(ctx context.Context, blocked *transport.Response) (*transport.Response, error)
}

// blockSignatures are the substrings that mark a provider error as a
// block, making the orchestrator move down the fallback chain.
var blockSignatures = []string{"blocked", "captcha", "forbidden", "rate limit", "403", "429"}

// IsBlockSignature reports whether an error looks like the target blocked
// us, as opposed to a local failure.
func IsBlockSignature(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range blockSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// proxyOptions builds the transport options for a provider's fetches,
// honoring per-provider proxy overrides.
func proxyOptions(cfg config.ProviderConfig) transport.Options {
	opts := transport.Options{UseProxy: true}
	if cfg.UseProxy != nil {
		opts.UseProxy = *cfg.UseProxy
	}
	if cfg.ProxyURL != "" {
		opts.Proxy = &transport.ProxySettings{Enabled: true, URL: cfg.ProxyURL}
	}
	return opts
}

// hitDomain extracts the registrable host of a result URL.
func hitDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func clampResults(n int) int {
	if n <= 0 || n > maxResults {
		return maxResults
	}
	return n
}

func pagesNeeded(numResults, pageSize int) int {
	return (numResults + pageSize - 1) / pageSize
}
