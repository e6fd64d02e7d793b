package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
)

const (
	defaultYandexXMLURL = "https://yandex.ru/search/xml"

	// xmlPageBatch pages are fetched concurrently per round so callers can
	// commit results while later pages are still in flight.
	xmlPageBatch = 3
)

// YandexXML queries the Yandex XML search API: 10 grouped documents per
// page, authenticated with a folder id and a service-account API key.
type YandexXML struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewYandexXML creates the adapter. baseURL overrides the public endpoint
// (some deployments use an XML proxy service).
func NewYandexXML(baseURL string, logger *zap.Logger) *YandexXML {
	if baseURL == "" {
		baseURL = defaultYandexXMLURL
	}
	return &YandexXML{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: baseURL,
		logger:  logger,
	}
}

func (p *YandexXML) Kind() Kind { return KindYandexXML }

// Fetch retrieves up to numResults hits, accumulating the batches.
func (p *YandexXML) Fetch(ctx context.Context, query string, numResults int, cfg config.ProviderConfig) ([]domain.SearchHit, error) {
	var all []domain.SearchHit
	err := p.FetchBatches(ctx, query, numResults, cfg, func(_ context.Context, hits []domain.SearchHit) error {
		all = append(all, hits...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// FetchBatches fetches pages in concurrent rounds of xmlPageBatch and
// hands each round's hits to commit before starting the next, so results
// become visible while the acquisition is still running. A failed page
// inside a round is logged and skipped; an empty first round is treated as
// a block.
func (p *YandexXML) FetchBatches(
	ctx context.Context,
	query string,
	numResults int,
	cfg config.ProviderConfig,
	commit func(ctx context.Context, hits []domain.SearchHit) error,
) error {
	if cfg.FolderID == "" || cfg.APIKey == "" {
		return domain.NewAcquisitionError(string(p.Kind()),
			fmt.Errorf("folder id and api key required: %w", domain.ErrProviderMisconfigured))
	}

	numResults = clampResults(numResults)
	pages := pagesNeeded(numResults, htmlPageSize)

	total := 0
	for pageNum := 0; pageNum < pages; {
		end := pageNum + xmlPageBatch
		if end > pages {
			end = pages
		}
		batch := make([][]domain.SearchHit, end-pageNum)
		failed := make([]bool, end-pageNum)

		g, gctx := errgroup.WithContext(ctx)
		for i := range batch {
			i, page := i, pageNum+i
			g.Go(func() error {
				hits, err := p.fetchPage(gctx, query, cfg, page)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					p.logger.Warn("yandex xml page failed",
						zap.Int("page", page),
						zap.Error(err),
					)
					failed[i] = true
					return nil
				}
				batch[i] = hits
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Only a genuinely short parsed page means the result set ran out.
		// A failed page is skipped; its neighbours still count.
		exhausted := false
		var flat []domain.SearchHit
		for i, hits := range batch {
			if failed[i] {
				continue
			}
			flat = append(flat, hits...)
			if len(hits) < htmlPageSize {
				exhausted = true
				break
			}
		}
		if remaining := numResults - total; len(flat) > remaining {
			flat = flat[:remaining]
		}

		if pageNum == 0 && len(flat) == 0 {
			return domain.NewAcquisitionError(string(p.Kind()),
				fmt.Errorf("no results on first page: %w", domain.ErrBlockedByTarget))
		}

		if len(flat) > 0 {
			if err := commit(ctx, flat); err != nil {
				return fmt.Errorf("commit batch: %w", err)
			}
			total += len(flat)
		}

		if exhausted || total >= numResults {
			break
		}
		pageNum = end
	}
	return nil
}

type yandexXMLDoc struct {
	URL      string   `xml:"url"`
	Title    string   `xml:"title"`
	Passages []string `xml:"passages>passage"`
	Headline string   `xml:"headline"`
}

type yandexXMLGroup struct {
	Doc yandexXMLDoc `xml:"doc"`
}

type yandexXMLError struct {
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

type yandexXMLEnvelope struct {
	XMLName  xml.Name `xml:"yandexsearch"`
	Response struct {
		Error  *yandexXMLError  `xml:"error"`
		Groups []yandexXMLGroup `xml:"results>grouping>group"`
	} `xml:"response"`
}

func (p *YandexXML) fetchPage(ctx context.Context, query string, cfg config.ProviderConfig, page int) ([]domain.SearchHit, error) {
	region := cfg.Region
	if region == "" {
		region = defaultYandexRegion
	}

	q := url.Values{
		"folderid": {cfg.FolderID},
		"apikey":   {cfg.APIKey},
		"query":    {query},
		"lr":       {region},
		"page":     {fmt.Sprintf("%d", page)},
		"groupby":  {"attr=d.mode=deep.groups-on-page=10.docs-in-group=1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yandex xml request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yandex xml read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yandex xml status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var envelope yandexXMLEnvelope
	if err := xml.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("yandex xml parse: %w", err)
	}
	if e := envelope.Response.Error; e != nil {
		return nil, fmt.Errorf("yandex xml api error %s: %s", e.Code, strings.TrimSpace(e.Text))
	}

	hits := make([]domain.SearchHit, 0, len(envelope.Response.Groups))
	for i, group := range envelope.Response.Groups {
		doc := group.Doc
		u := strings.TrimSpace(doc.URL)
		if u == "" {
			continue
		}
		snippet := doc.Headline
		if len(doc.Passages) > 0 {
			snippet = doc.Passages[0]
		}
		hits = append(hits, domain.SearchHit{
			Position: page*htmlPageSize + i + 1,
			Title:    strings.TrimSpace(doc.Title),
			URL:      u,
			Snippet:  strings.TrimSpace(snippet),
			Domain:   hitDomain(u),
		})
	}
	return hits, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
