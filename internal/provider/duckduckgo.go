package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
)

// DuckDuckGo scrapes the no-JS HTML endpoint. It needs no API key, which
// makes it the surface of last resort in every fallback chain, but it
// rate-limits aggressively.
type DuckDuckGo struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewDuckDuckGo creates the adapter.
func NewDuckDuckGo(fetcher Fetcher, logger *zap.Logger) *DuckDuckGo {
	return &DuckDuckGo{fetcher: fetcher, logger: logger}
}

func (p *DuckDuckGo) Kind() Kind { return KindDuckDuckGo }

// Fetch retrieves up to numResults hits. Pagination uses the s offset
// parameter; page sizes vary, so the offset advances by whatever the page
// actually returned.
func (p *DuckDuckGo) Fetch(ctx context.Context, query string, numResults int, cfg config.ProviderConfig) ([]domain.SearchHit, error) {
	numResults = clampResults(numResults)
	region := cfg.Region
	if region == "" {
		region = "ru-ru"
	}

	var all []domain.SearchHit
	offset := 0
	for len(all) < numResults {
		hits, err := p.fetchPage(ctx, query, cfg, region, offset)
		if err != nil {
			if offset == 0 {
				return nil, domain.NewAcquisitionError(string(p.Kind()), err)
			}
			break
		}
		if len(hits) == 0 {
			if offset == 0 {
				return nil, domain.NewAcquisitionError(string(p.Kind()),
					fmt.Errorf("no results on first page: %w", domain.ErrBlockedByTarget))
			}
			break
		}

		for i := range hits {
			hits[i].Position = len(all) + 1
			all = append(all, hits[i])
			if len(all) >= numResults {
				break
			}
		}
		offset += len(hits)
	}
	return all, nil
}

func (p *DuckDuckGo) fetchPage(ctx context.Context, query string, cfg config.ProviderConfig, region string, offset int) ([]domain.SearchHit, error) {
	q := url.Values{
		"q":  {query},
		"kl": {strings.ToLower(region)},
	}
	if offset > 0 {
		q.Set("s", fmt.Sprintf("%d", offset))
	}
	pageURL := "https://html.duckduckgo.com/html/?" + q.Encode()

	resp, err := p.fetcher.Fetch(ctx, pageURL, proxyOptions(cfg))
	if err != nil {
		return nil, err
	}
	if resp.Verdict.Blocked {
		return nil, fmt.Errorf("duckduckgo %s: %w", resp.Verdict.Detail, domain.ErrBlockedByTarget)
	}

	return parseDuckDuckGoPage(resp.Body)
}

func parseDuckDuckGoPage(body []byte) ([]domain.SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo page: %w", err)
	}

	var hits []domain.SearchHit
	doc.Find("div.result").Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a.result__a").First()
		href := cleanDuckDuckGoHref(link.AttrOr("href", ""))
		title := strings.TrimSpace(link.Text())
		if href == "" || title == "" {
			return
		}
		hits = append(hits, domain.SearchHit{
			Position: len(hits) + 1,
			Title:    title,
			URL:      href,
			Snippet:  strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			Domain:   hitDomain(href),
		})
	})
	return hits, nil
}

// cleanDuckDuckGoHref unwraps the /l/?uddg= redirect the HTML endpoint
// wraps outbound links in.
func cleanDuckDuckGoHref(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Host, "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			href = target
		} else {
			return ""
		}
	}
	if !strings.HasPrefix(href, "http") {
		return ""
	}
	return href
}
