package enrich

import (
	"context"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/seo"
)

// Repository applies domain-level enrichment to stored results.
type Repository interface {
	UpdateDomainResults(ctx context.Context, searchID, resultDomain string, e domain.Enrichment) error
}

// Crawler walks a domain with the degrade-to-minimal fallback.
type Crawler interface {
	CrawlWithFallback(ctx context.Context, seedURL string) (*domain.CrawlResult, error)
}

// CrawlCache short-circuits repeated crawls of the same domain.
type CrawlCache interface {
	Get(ctx context.Context, d string) *domain.CrawlResult
	Put(ctx context.Context, d string, result *domain.CrawlResult)
}

// Auditor scores the basic SEO signals of a landing page.
type Auditor interface {
	Audit(ctx context.Context, pageURL string) (*seo.Result, error)
}
