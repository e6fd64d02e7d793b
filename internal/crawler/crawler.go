package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/metrics"
)

const crawlerUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Phone patterns are tried in order: the international form first so a page
// carrying both spellings yields the +7 number.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+7\s*\(?\d{3}\)?\s*[\s\-]?\d{3}[-\s]?\d{2}[-\s]?\d{2}`),
	regexp.MustCompile(`8\s*\(?\d{3}\)?\s*[\s\-]?\d{3}[-\s]?\d{2}[-\s]?\d{2}`),
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

var skipExtensionRe = regexp.MustCompile(`(?i)\.(pdf|doc|docx|xls|xlsx|zip|rar|jpg|png|gif)$`)

// Crawler walks a single domain breadth-first, bounded by MaxPages, and
// extracts page summaries plus the first phone and email it encounters.
type Crawler struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxPages   int
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg config.CrawlerConfig, logger *zap.Logger) *Crawler {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 3.0
	}
	return &Crawler{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxPages:   maxPages,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Crawl walks the domain of seedURL breadth-first up to the page cap.
// Individual page failures are recorded in the result's Errors list and do
// not abort the crawl; only context cancellation aborts it.
func (c *Crawler) Crawl(ctx context.Context, seedURL string) (*domain.CrawlResult, error) {
	return c.crawl(ctx, seedURL, c.maxPages, c.maxRetries)
}

// CrawlWithFallback degrades in two steps when the full crawl yields no
// pages: first a single-page single-attempt crawl of the seed, then a
// synthetic one-page result so downstream processing always has something
// to work with.
func (c *Crawler) CrawlWithFallback(ctx context.Context, seedURL string) (*domain.CrawlResult, error) {
	result, err := c.crawl(ctx, seedURL, c.maxPages, c.maxRetries)
	if err != nil {
		return nil, err
	}
	if result.TotalPages > 0 {
		return result, nil
	}

	c.logger.Info("full crawl yielded no pages, trying minimal crawl", zap.String("url", seedURL))
	minimal, err := c.crawl(ctx, seedURL, 1, 1)
	if err != nil {
		return nil, err
	}
	if minimal.TotalPages > 0 {
		return minimal, nil
	}

	c.logger.Warn("all crawl attempts failed, returning synthetic result", zap.String("url", seedURL))
	return &domain.CrawlResult{
		BaseDomain:   hostOf(seedURL),
		Pages:        []domain.PageSummary{{URL: seedURL}},
		TotalPages:   1,
		Errors:       []domain.CrawlError{{URL: seedURL, Error: "all crawl attempts failed"}},
		FallbackUsed: true,
	}, nil
}

func (c *Crawler) crawl(ctx context.Context, seedURL string, maxPages, maxRetries int) (*domain.CrawlResult, error) {
	baseDomain := hostOf(seedURL)
	if baseDomain == "" {
		return nil, fmt.Errorf("crawl: seed url %q has no host", seedURL)
	}

	result := &domain.CrawlResult{BaseDomain: baseDomain}
	visited := make(map[string]bool, maxPages)
	queue := []string{seedURL}

	for len(queue) > 0 && len(visited) < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}

		status, body, err := c.fetchPage(ctx, pageURL, maxRetries)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Errors = append(result.Errors, domain.CrawlError{URL: pageURL, Error: err.Error()})
			continue
		}
		visited[pageURL] = true
		metrics.CrawlPagesTotal.Inc()

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			result.Errors = append(result.Errors, domain.CrawlError{URL: pageURL, Error: err.Error()})
			continue
		}

		result.Pages = append(result.Pages, summarizePage(pageURL, status, doc))

		if result.Phone == "" {
			result.Phone = extractPhone(body)
		}
		if result.Email == "" {
			result.Email = extractEmail(body)
		}

		if len(visited) < maxPages {
			for _, link := range internalLinks(doc, pageURL, baseDomain) {
				if !visited[link] && !contains(queue, link) {
					queue = append(queue, link)
				}
			}
		}
	}

	result.TotalPages = len(result.Pages)
	return result, nil
}

// fetchPage applies the per-page retry policy: 403 and server errors back
// off exponentially, 429 backs off with a doubled delay, 404/410 and any
// other status give up immediately. Network errors retry like server errors.
func (c *Crawler) fetchPage(ctx context.Context, pageURL string, maxRetries int) (int, string, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, "", err
		}

		status, body, err := c.doGet(ctx, pageURL)
		if err != nil {
			lastErr = err
			c.logger.Debug("page fetch error",
				zap.String("url", pageURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if attempt < maxRetries-1 {
				if err := c.sleep(ctx, c.baseDelay<<attempt); err != nil {
					return 0, "", err
				}
			}
			continue
		}

		switch {
		case status == http.StatusOK:
			return status, body, nil
		case status == http.StatusForbidden:
			lastErr = fmt.Errorf("status 403")
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("status 429")
		case status == http.StatusNotFound || status == http.StatusGone:
			return 0, "", fmt.Errorf("status %d", status)
		case status >= 500:
			lastErr = fmt.Errorf("status %d", status)
		default:
			return 0, "", fmt.Errorf("status %d", status)
		}

		c.logger.Debug("page fetch retrying",
			zap.String("url", pageURL),
			zap.Int("status", status),
			zap.Int("attempt", attempt+1))
		if attempt < maxRetries-1 {
			delay := c.baseDelay << attempt
			if status == http.StatusTooManyRequests {
				delay *= 2
			}
			if err := c.sleep(ctx, delay); err != nil {
				return 0, "", err
			}
		}
	}
	return 0, "", fmt.Errorf("fetch failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Crawler) doGet(ctx context.Context, pageURL string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", crawlerUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(body), nil
}

func summarizePage(pageURL string, status int, doc *goquery.Document) domain.PageSummary {
	summary := domain.PageSummary{
		URL:        pageURL,
		StatusCode: status,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		summary.MetaDescription = strings.TrimSpace(desc)
	}
	h1 := doc.Find("h1")
	summary.H1Count = h1.Length()
	if summary.H1Count > 0 {
		summary.H1Text = strings.TrimSpace(h1.First().Text())
	}
	return summary
}

func extractPhone(body string) string {
	for _, pattern := range phonePatterns {
		if m := pattern.FindString(body); m != "" {
			return m
		}
	}
	return ""
}

func extractEmail(body string) string {
	return emailPattern.FindString(body)
}

// internalLinks collects same-domain links from the page, normalized to
// scheme://host/path with queries and fragments dropped.
func internalLinks(doc *goquery.Document, pageURL, baseDomain string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || skipExtensionRe.MatchString(href) {
			return
		}
		for _, prefix := range []string{"mailto:", "tel:", "javascript:", "#"} {
			if strings.HasPrefix(href, prefix) {
				return
			}
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Host != baseDomain {
			return
		}
		clean := resolved.Scheme + "://" + resolved.Host + resolved.Path
		if !seen[clean] {
			seen[clean] = true
			links = append(links, clean)
		}
	})
	return links
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
