package seo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Issue codes. The outreach template maps them to human wording, so the
// set here and there must stay in sync.
const (
	IssueNoRobots         = "no_robots_txt"
	IssueRobotsDisallow   = "robots_disallow_all"
	IssueNoSitemap        = "no_sitemap_in_robots"
	IssueEmptyTitle       = "empty_meta_title"
	IssueEmptyDescription = "empty_meta_description"
	IssueNoH1             = "no_h1"
	IssueMultipleH1       = "multiple_h1"
	IssuePageUnreachable  = "page_unreachable"
)

// Result is one audit outcome. Score starts at 100 and issue deductions
// bring it down, clamped to [0, 100].
type Result struct {
	URL     string            `json:"url"`
	Score   int               `json:"score"`
	Issues  []string          `json:"issues"`
	Details map[string]string `json:"details,omitempty"`
}

// Auditor checks robots.txt and the landing page of a site for the basic
// SEO signals the outreach template talks about.
type Auditor struct {
	client *http.Client
	logger *zap.Logger
}

func New(logger *zap.Logger) *Auditor {
	return &Auditor{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Audit runs the robots.txt and landing-page checks for pageURL.
// Unreachable pages are an issue, not an error; only an unusable URL or
// context cancellation produce an error.
func (a *Auditor) Audit(ctx context.Context, pageURL string) (*Result, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("audit: unusable url %q", pageURL)
	}

	result := &Result{
		URL:     pageURL,
		Score:   100,
		Details: make(map[string]string),
	}

	a.checkRobots(ctx, parsed.Scheme+"://"+parsed.Host+"/robots.txt", result)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.checkPage(ctx, pageURL, result)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if result.Score < 0 {
		result.Score = 0
	}
	if result.Score > 100 {
		result.Score = 100
	}
	return result, nil
}

func (a *Auditor) checkRobots(ctx context.Context, robotsURL string, result *Result) {
	body, status, err := a.get(ctx, robotsURL)
	if err != nil || status != http.StatusOK {
		result.Issues = append(result.Issues, IssueNoRobots)
		result.Score -= 10
		result.Details["robots_txt"] = "missing"
		return
	}
	result.Details["robots_txt"] = "exists"

	if strings.Contains(body, "User-agent: *") && strings.Contains(body, "Disallow: /") {
		result.Issues = append(result.Issues, IssueRobotsDisallow)
		result.Score -= 20
	}
	if !strings.Contains(body, "Sitemap:") {
		result.Issues = append(result.Issues, IssueNoSitemap)
		result.Score -= 5
	}
}

func (a *Auditor) checkPage(ctx context.Context, pageURL string, result *Result) {
	body, status, err := a.get(ctx, pageURL)
	if err != nil || status != http.StatusOK {
		a.logger.Debug("audit page unreachable",
			zap.String("url", pageURL),
			zap.Int("status", status),
			zap.Error(err))
		result.Issues = append(result.Issues, IssuePageUnreachable)
		result.Score -= 30
		if err != nil {
			result.Details["page_error"] = err.Error()
		} else {
			result.Details["page_error"] = fmt.Sprintf("status %d", status)
		}
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		result.Issues = append(result.Issues, IssuePageUnreachable)
		result.Score -= 30
		result.Details["page_error"] = err.Error()
		return
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		result.Issues = append(result.Issues, IssueEmptyTitle)
		result.Score -= 15
		result.Details["meta_title"] = "empty"
	} else {
		result.Details["meta_title"] = truncate(title, 100)
	}

	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	desc = strings.TrimSpace(desc)
	if desc == "" {
		result.Issues = append(result.Issues, IssueEmptyDescription)
		result.Score -= 10
		result.Details["meta_description"] = "empty"
	} else {
		result.Details["meta_description"] = truncate(desc, 200)
	}

	h1 := doc.Find("h1")
	switch h1.Length() {
	case 0:
		result.Issues = append(result.Issues, IssueNoH1)
		result.Score -= 10
		result.Details["h1_count"] = "0"
	case 1:
		result.Details["h1_count"] = "1"
		result.Details["h1_text"] = truncate(strings.TrimSpace(h1.First().Text()), 100)
	default:
		result.Issues = append(result.Issues, IssueMultipleH1)
		result.Score -= 5
		result.Details["h1_count"] = fmt.Sprintf("%d", h1.Length())
	}
}

func (a *Auditor) get(ctx context.Context, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, err
	}
	return string(body), resp.StatusCode, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
