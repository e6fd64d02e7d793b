package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/seo"
)

type fakeRepo struct {
	searchID     string
	resultDomain string
	enrichment   domain.Enrichment
	calls        int
	err          error
}

func (r *fakeRepo) UpdateDomainResults(_ context.Context, searchID, resultDomain string, e domain.Enrichment) error {
	r.calls++
	r.searchID = searchID
	r.resultDomain = resultDomain
	r.enrichment = e
	return r.err
}

type fakeCrawler struct {
	result *domain.CrawlResult
	err    error
	calls  int
}

func (c *fakeCrawler) CrawlWithFallback(_ context.Context, _ string) (*domain.CrawlResult, error) {
	c.calls++
	return c.result, c.err
}

type fakeCache struct {
	cached *domain.CrawlResult
	put    *domain.CrawlResult
}

func (c *fakeCache) Get(_ context.Context, _ string) *domain.CrawlResult { return c.cached }
func (c *fakeCache) Put(_ context.Context, _ string, r *domain.CrawlResult) {
	c.put = r
}

type fakeAuditor struct {
	result *seo.Result
	err    error
}

func (a *fakeAuditor) Audit(_ context.Context, _ string) (*seo.Result, error) {
	return a.result, a.err
}

func crawlWithContacts() *domain.CrawlResult {
	return &domain.CrawlResult{
		BaseDomain: "acme.ru",
		Pages:      []domain.PageSummary{{URL: "https://acme.ru/", StatusCode: 200}},
		TotalPages: 1,
		Phone:      "+7 (495) 123-45-67",
		Email:      "info@acme.ru",
	}
}

func TestEnrichDomain_ContactsFoundWithOutreach(t *testing.T) {
	repo := &fakeRepo{}
	crawler := &fakeCrawler{result: crawlWithContacts()}
	cache := &fakeCache{}
	auditor := &fakeAuditor{result: &seo.Result{Score: 45, Issues: []string{seo.IssueNoH1}}}

	svc := New(repo, crawler, cache, auditor, zap.NewNop())
	if err := svc.EnrichDomain(context.Background(), "s1", "acme.ru", "https://acme.ru/"); err != nil {
		t.Fatalf("EnrichDomain: %v", err)
	}

	e := repo.enrichment
	if e.ContactStatus != domain.ContactFound {
		t.Errorf("ContactStatus = %s", e.ContactStatus)
	}
	if e.Phone != "+7 (495) 123-45-67" || e.Email != "info@acme.ru" {
		t.Errorf("contacts = %q / %q", e.Phone, e.Email)
	}
	if e.SEOScore == nil || *e.SEOScore != 45 {
		t.Errorf("SEOScore = %v", e.SEOScore)
	}
	if !strings.Contains(e.OutreachSubject, "acme.ru") {
		t.Errorf("OutreachSubject = %q", e.OutreachSubject)
	}
	if !strings.Contains(e.OutreachText, "отсутствуют заголовки H1") {
		t.Errorf("issue description missing from outreach text")
	}
	if cache.put == nil {
		t.Error("fresh crawl not cached")
	}
	if repo.searchID != "s1" || repo.resultDomain != "acme.ru" {
		t.Errorf("applied to %s/%s", repo.searchID, repo.resultDomain)
	}
}

func TestEnrichDomain_CachedCrawlShortCircuits(t *testing.T) {
	repo := &fakeRepo{}
	crawler := &fakeCrawler{err: errors.New("must not be called")}
	cache := &fakeCache{cached: crawlWithContacts()}

	svc := New(repo, crawler, cache, nil, zap.NewNop())
	if err := svc.EnrichDomain(context.Background(), "s1", "acme.ru", "https://acme.ru/"); err != nil {
		t.Fatalf("EnrichDomain: %v", err)
	}
	if crawler.calls != 0 {
		t.Error("crawler called despite cache hit")
	}
	if repo.enrichment.ContactStatus != domain.ContactFound {
		t.Errorf("ContactStatus = %s", repo.enrichment.ContactStatus)
	}
}

func TestEnrichDomain_NoContacts(t *testing.T) {
	repo := &fakeRepo{}
	crawler := &fakeCrawler{result: &domain.CrawlResult{
		BaseDomain: "acme.ru",
		Pages:      []domain.PageSummary{{URL: "https://acme.ru/"}},
		TotalPages: 1,
	}}

	svc := New(repo, crawler, &fakeCache{}, nil, zap.NewNop())
	if err := svc.EnrichDomain(context.Background(), "s1", "acme.ru", "https://acme.ru/"); err != nil {
		t.Fatalf("EnrichDomain: %v", err)
	}

	e := repo.enrichment
	if e.ContactStatus != domain.ContactNone {
		t.Errorf("ContactStatus = %s", e.ContactStatus)
	}
	if e.OutreachSubject != "" || e.OutreachText != "" {
		t.Error("outreach generated without contacts")
	}
}

func TestEnrichDomain_CrawlFailureMarksRowsNotSearch(t *testing.T) {
	repo := &fakeRepo{}
	crawler := &fakeCrawler{err: errors.New("dns failure")}

	svc := New(repo, crawler, &fakeCache{}, nil, zap.NewNop())
	if err := svc.EnrichDomain(context.Background(), "s1", "acme.ru", "https://acme.ru/"); err != nil {
		t.Fatalf("EnrichDomain returned %v, want absorbed failure", err)
	}

	e := repo.enrichment
	if e.ContactStatus != domain.ContactFailed {
		t.Errorf("ContactStatus = %s", e.ContactStatus)
	}
	if !strings.Contains(e.ExtraData["error"], "dns failure") {
		t.Errorf("ExtraData = %v", e.ExtraData)
	}
}

func TestEnrichDomain_AuditFailureKeepsContacts(t *testing.T) {
	repo := &fakeRepo{}
	crawler := &fakeCrawler{result: crawlWithContacts()}
	auditor := &fakeAuditor{err: errors.New("audit down")}

	svc := New(repo, crawler, &fakeCache{}, auditor, zap.NewNop())
	if err := svc.EnrichDomain(context.Background(), "s1", "acme.ru", "https://acme.ru/"); err != nil {
		t.Fatalf("EnrichDomain: %v", err)
	}

	e := repo.enrichment
	if e.ContactStatus != domain.ContactFound {
		t.Errorf("ContactStatus = %s", e.ContactStatus)
	}
	if e.SEOScore != nil {
		t.Errorf("SEOScore = %v, want absent on audit failure", *e.SEOScore)
	}
	if e.OutreachSubject == "" {
		t.Error("outreach skipped because of audit failure")
	}
}

func TestEnrichDomain_RepoFailurePropagates(t *testing.T) {
	repo := &fakeRepo{err: errors.New("store down")}
	crawler := &fakeCrawler{result: crawlWithContacts()}

	svc := New(repo, crawler, &fakeCache{}, nil, zap.NewNop())
	if err := svc.EnrichDomain(context.Background(), "s1", "acme.ru", "https://acme.ru/"); err == nil {
		t.Fatal("expected error when enrichment cannot be applied")
	}
}
