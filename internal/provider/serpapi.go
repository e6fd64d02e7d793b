package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
)

const defaultSerpAPIURL = "https://serpapi.com/search"

// SerpAPI queries the SerpAPI aggregation service: a single JSON call
// returns up to 100 organic results for the configured engine.
type SerpAPI struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewSerpAPI creates the adapter.
func NewSerpAPI(baseURL string, logger *zap.Logger) *SerpAPI {
	if baseURL == "" {
		baseURL = defaultSerpAPIURL
	}
	return &SerpAPI{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		logger:  logger,
	}
}

func (p *SerpAPI) Kind() Kind { return KindSerpAPI }

type serpAPIResult struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Fetch retrieves up to numResults hits in one call.
func (p *SerpAPI) Fetch(ctx context.Context, query string, numResults int, cfg config.ProviderConfig) ([]domain.SearchHit, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewAcquisitionError(string(p.Kind()),
			fmt.Errorf("api key required: %w", domain.ErrProviderMisconfigured))
	}

	numResults = clampResults(numResults)
	engine := cfg.Engine
	if engine == "" {
		engine = "yandex"
	}

	q := url.Values{
		"api_key": {cfg.APIKey},
		"q":       {query},
		"engine":  {engine},
		"num":     {fmt.Sprintf("%d", numResults)},
	}
	if engine == "yandex" && cfg.Region != "" {
		q.Set("lr", cfg.Region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, domain.NewAcquisitionError(string(p.Kind()), err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.NewAcquisitionError(string(p.Kind()), fmt.Errorf("serpapi request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewAcquisitionError(string(p.Kind()), fmt.Errorf("serpapi read: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewAcquisitionError(string(p.Kind()),
			fmt.Errorf("serpapi status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var parsed serpAPIResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.NewAcquisitionError(string(p.Kind()), fmt.Errorf("serpapi decode: %w", err))
	}

	hits := make([]domain.SearchHit, 0, len(parsed.OrganicResults))
	for i, item := range parsed.OrganicResults {
		if i >= numResults {
			break
		}
		hits = append(hits, domain.SearchHit{
			Position: i + 1,
			Title:    item.Title,
			URL:      item.Link,
			Snippet:  item.Snippet,
			Domain:   hitDomain(item.Link),
		})
	}
	return hits, nil
}
