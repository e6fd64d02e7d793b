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

// GoogleHTML scrapes the plain Google results page, 10 organic hits per
// page via the start parameter. On a captcha verdict it hands the page to
// the bypass before giving up.
type GoogleHTML struct {
	fetcher Fetcher
	solver  Solver
	logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	delay func(ctx context.Context) error
}

// NewGoogleHTML creates the adapter. solver may be nil (captchas then fail
// the page).
func NewGoogleHTML(fetcher Fetcher, solver Solver, logger *zap.Logger) *GoogleHTML {
	p := &GoogleHTML{
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

func (p *GoogleHTML) Kind() Kind { return KindGoogleHTML }

// Fetch retrieves up to numResults organic hits.
func (p *GoogleHTML) Fetch(ctx context.Context, query string, numResults int, cfg config.ProviderConfig) ([]domain.SearchHit, error) {
	return paginateHTML(ctx, p.Kind(), numResults, p.delay, func(ctx context.Context, page int) ([]domain.SearchHit, error) {
		return p.fetchPage(ctx, query, cfg, page)
	})
}

func (p *GoogleHTML) fetchPage(ctx context.Context, query string, cfg config.ProviderConfig, page int) ([]domain.SearchHit, error) {
	lang := cfg.Language
	if lang == "" {
		lang = "ru"
	}
	country := cfg.Region
	if country == "" {
		country = "ru"
	}
	start := page * htmlPageSize

	q := url.Values{
		"q":     {query},
		"hl":    {lang},
		"gl":    {country},
		"start": {fmt.Sprintf("%d", start)},
		"num":   {fmt.Sprintf("%d", htmlPageSize)},
	}
	pageURL := "https://www.google.com/search?" + q.Encode()

	opts := proxyOptions(cfg)
	opts.Referer = "https://www.google.com/"

	resp, err := p.fetcher.Fetch(ctx, pageURL, opts)
	if err != nil {
		return nil, err
	}

	if resp.Verdict.Kind == domain.VerdictCaptcha {
		resp, err = p.bypassCaptcha(ctx, resp)
		if err != nil {
			return nil, err
		}
	}

	return parseGooglePage(resp.Body, start)
}

func (p *GoogleHTML) bypassCaptcha(ctx context.Context, blocked *transport.Response) (*transport.Response, error) {
	if p.solver == nil {
		return nil, fmt.Errorf("captcha challenged and no solver available: %w", domain.ErrCaptchaUnsolved)
	}
	solved, err := p.solver.Solve(ctx, blocked)
	if err != nil {
		return nil, err
	}
	p.logger.Info("google captcha bypassed", zap.String("url", blocked.FinalURL))
	return solved, nil
}

// parseGooglePage extracts organic hits. The result markup shifts often,
// so three passes are tried: the current container classes, a legacy
// class pattern, then raw outbound links under the main content node.
func parseGooglePage(body []byte, start int) ([]domain.SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse google page: %w", err)
	}

	var hits []domain.SearchHit

	doc.Find("div.g, div.tF2Cxc").Each(func(i int, s *goquery.Selection) {
		if hit, ok := parseGoogleItem(s, start+len(hits)+1); ok {
			hits = append(hits, hit)
		}
	})

	if len(hits) == 0 {
		doc.Find(`div[class*="result"]`).Each(func(i int, s *goquery.Selection) {
			if hit, ok := parseGoogleItem(s, start+len(hits)+1); ok {
				hits = append(hits, hit)
			}
		})
	}

	if len(hits) == 0 {
		main := doc.Find("#main, #search").First()
		main.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
			href := s.AttrOr("href", "")
			href = cleanGoogleHref(href)
			if href == "" {
				return true
			}
			title := strings.TrimSpace(s.Text())
			if title == "" {
				title = strings.TrimSpace(s.Closest("h3, h2, div").Text())
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

func parseGoogleItem(s *goquery.Selection, position int) (domain.SearchHit, bool) {
	title := strings.TrimSpace(s.Find("h3").First().Text())
	link := s.Find("a[href]").First()
	href := cleanGoogleHref(link.AttrOr("href", ""))
	if title == "" || href == "" {
		return domain.SearchHit{}, false
	}

	snippet := strings.TrimSpace(s.Find(`div.VwiC3b, span.aCOpRe, [class*="snippet"]`).First().Text())

	return domain.SearchHit{
		Position: position,
		Title:    title,
		URL:      href,
		Snippet:  snippet,
		Domain:   hitDomain(href),
	}, true
}

// cleanGoogleHref unwraps /url?q= redirect links and drops internal ones.
func cleanGoogleHref(href string) string {
	if strings.HasPrefix(href, "/url?") {
		if u, err := url.Parse(href); err == nil {
			href = u.Query().Get("q")
		}
	}
	if !strings.HasPrefix(href, "http") || strings.Contains(href, "google.com") {
		return ""
	}
	return href
}

// findSnippetNear looks for descriptive text around a bare result link.
func findSnippetNear(link *goquery.Selection) string {
	parent := link.Closest("div, article, li")
	if parent.Length() == 0 {
		return ""
	}
	snippet := ""
	parent.Find(`div[class], span[class]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) > 20 {
			snippet = text
			return false
		}
		return true
	})
	return snippet
}
