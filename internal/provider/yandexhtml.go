package provider

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/transport"
)

// defaultYandexRegion is the lr parameter (213 = Moscow).
const defaultYandexRegion = "213"

// YandexHTML scrapes the Yandex results page, 10 organic hits per page via
// the p parameter. Yandex serves image captchas aggressively, so a solver
// is strongly recommended.
type YandexHTML struct {
	fetcher Fetcher
	solver  Solver
	logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	delay func(ctx context.Context) error
}

// NewYandexHTML creates the adapter. solver may be nil.
func NewYandexHTML(fetcher Fetcher, solver Solver, logger *zap.Logger) *YandexHTML {
	p := &YandexHTML{
		fetcher: fetcher,
		solver:  solver,
		logger:  logger,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	p.delay = func(ctx context.Context) error {
		p.rngMu.Lock()
		defer p.rngMu.Unlock()
		return interPageDelay(ctx, p.rng)
	}
	return p
}

func (p *YandexHTML) Kind() Kind { return KindYandexHTML }

// Fetch retrieves up to numResults organic hits.
func (p *YandexHTML) Fetch(ctx context.Context, query string, numResults int, cfg config.ProviderConfig) ([]domain.SearchHit, error) {
	return paginateHTML(ctx, p.Kind(), numResults, p.delay, func(ctx context.Context, page int) ([]domain.SearchHit, error) {
		return p.fetchPage(ctx, query, cfg, page)
	})
}

func (p *YandexHTML) fetchPage(ctx context.Context, query string, cfg config.ProviderConfig, page int) ([]domain.SearchHit, error) {
	region := cfg.Region
	if region == "" {
		region = defaultYandexRegion
	}

	q := url.Values{
		"text": {query},
		"lr":   {region},
		"p":    {fmt.Sprintf("%d", page)},
	}
	pageURL := "https://yandex.ru/search/?" + q.Encode()

	resp, err := p.fetcher.Fetch(ctx, pageURL, proxyOptions(cfg))
	if err != nil {
		return nil, err
	}

	if resp.Verdict.Kind == domain.VerdictCaptcha {
		if p.solver == nil {
			return nil, fmt.Errorf("captcha challenged and no solver available: %w", domain.ErrCaptchaUnsolved)
		}
		solved, err := p.solver.Solve(ctx, resp)
		if err != nil {
			return nil, err
		}
		p.logger.Info("yandex captcha bypassed", zap.String("url", resp.FinalURL))
		resp = solved
	}

	return parseYandexPage(resp, page)
}

// parseYandexPage extracts organic hits: serp-item containers first, the
// legacy organic class second, then raw outbound links under main.
func parseYandexPage(resp *transport.Response, page int) ([]domain.SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return nil, fmt.Errorf("parse yandex page: %w", err)
	}

	start := page * htmlPageSize
	var hits []domain.SearchHit

	doc.Find(`li[class*="serp-item"]`).Each(func(_ int, s *goquery.Selection) {
		if hit, ok := parseYandexItem(s, start+len(hits)+1); ok {
			hits = append(hits, hit)
		}
	})

	if len(hits) == 0 {
		doc.Find(`li[class*="organic"]`).Each(func(_ int, s *goquery.Selection) {
			if hit, ok := parseYandexItem(s, start+len(hits)+1); ok {
				hits = append(hits, hit)
			}
		})
	}

	if len(hits) == 0 {
		main := doc.Find("main").First()
		if main.Length() == 0 {
			main = doc.Find(`div[class*="content"], div[class*="serp"]`).First()
		}
		main.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href := s.AttrOr("href", "")
			if !strings.HasPrefix(href, "http") || strings.Contains(href, "yandex.ru") {
				return true
			}
			title := strings.TrimSpace(s.Text())
			if title == "" {
				title = strings.TrimSpace(s.Closest("h2, h3, div").Text())
			}
			if title == "" {
				return true
			}
			hits = append(hits, domain.SearchHit{
				Position: start + len(hits) + 1,
				Title:    title,
				URL:      href,
				Snippet:  findSnippetNear(s),
				Domain:   hitDomain(href),
			})
			return len(hits) < htmlPageSize
		})
	}

	return hits, nil
}

func parseYandexItem(s *goquery.Selection, position int) (domain.SearchHit, bool) {
	link := s.Find("a[href]").First()
	href := link.AttrOr("href", "")
	if !strings.HasPrefix(href, "http") || strings.Contains(href, "yandex.ru") {
		return domain.SearchHit{}, false
	}

	title := strings.TrimSpace(s.Find("h2, h3").First().Text())
	if title == "" {
		title = strings.TrimSpace(link.Text())
	}
	if title == "" {
		return domain.SearchHit{}, false
	}

	snippet := strings.TrimSpace(s.Find(`div[class*="text"], span[class*="text"], [class*="snippet"]`).First().Text())

	return domain.SearchHit{
		Position: position,
		Title:    title,
		URL:      href,
		Snippet:  snippet,
		Domain:   hitDomain(href),
	}, true
}
