package enrich

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/outreach"
)

// Service enriches one result domain of one search: crawl, contacts,
// optional SEO audit, outreach draft. The enrichment is applied uniformly
// to every result row sharing the domain; a failure marks those rows
// failed but never touches the parent search.
type Service struct {
	repo    Repository
	crawler Crawler
	cache   CrawlCache
	auditor Auditor // nil disables the audit and outreach scoring
	logger  *zap.Logger
}

// New creates the enrichment service. auditor may be nil.
func New(repo Repository, crawler Crawler, cache CrawlCache, auditor Auditor, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		crawler: crawler,
		cache:   cache,
		auditor: auditor,
		logger:  logger,
	}
}

// EnrichDomain runs enrichment for one (search, domain) pair. firstURL is
// the first result URL seen for the domain and seeds the crawl.
func (s *Service) EnrichDomain(ctx context.Context, searchID, resultDomain, firstURL string) error {
	enrichment, err := s.buildEnrichment(ctx, resultDomain, firstURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("enrichment failed, marking domain rows",
			zap.String("search_id", searchID),
			zap.String("domain", resultDomain),
			zap.Error(err))
		enrichment = domain.Enrichment{
			ContactStatus: domain.ContactFailed,
			ExtraData:     map[string]string{"error": err.Error()},
		}
	}

	if err := s.repo.UpdateDomainResults(ctx, searchID, resultDomain, enrichment); err != nil {
		return fmt.Errorf("apply enrichment %s/%s: %w", searchID, resultDomain, err)
	}
	return nil
}

func (s *Service) buildEnrichment(ctx context.Context, resultDomain, firstURL string) (domain.Enrichment, error) {
	crawl := s.cache.Get(ctx, resultDomain)
	if crawl == nil {
		fresh, err := s.crawler.CrawlWithFallback(ctx, firstURL)
		if err != nil {
			return domain.Enrichment{}, fmt.Errorf("crawl %s: %w", resultDomain, err)
		}
		s.cache.Put(ctx, resultDomain, fresh)
		crawl = fresh
	}

	e := domain.Enrichment{
		Phone: crawl.Phone,
		Email: crawl.Email,
		ExtraData: map[string]string{
			"crawled_pages": strconv.Itoa(crawl.TotalPages),
		},
	}
	if crawl.FallbackUsed {
		e.ExtraData["crawl_fallback"] = "true"
	}
	if crawl.Phone != "" || crawl.Email != "" {
		e.ContactStatus = domain.ContactFound
	} else {
		e.ContactStatus = domain.ContactNone
	}

	var issues []string
	if s.auditor != nil {
		audit, err := s.auditor.Audit(ctx, firstURL)
		if err != nil {
			// score stays absent, contacts still count
			s.logger.Warn("seo audit failed",
				zap.String("domain", resultDomain),
				zap.Error(err))
		} else {
			score := audit.Score
			e.SEOScore = &score
			issues = audit.Issues
			e.ExtraData["seo_issues"] = strconv.Itoa(len(issues))
		}
	}

	if e.ContactStatus == domain.ContactFound {
		msg := outreach.Generate(resultDomain, issues, e.SEOScore)
		e.OutreachSubject = msg.Subject
		e.OutreachText = msg.Text
	}
	return e, nil
}
