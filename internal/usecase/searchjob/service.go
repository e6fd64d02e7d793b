package searchjob

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/provider"
	"github.com/leadharvest/leadharvest/internal/repository/denylist"
)

// Service drives the search job state machine: pending → processing →
// completed | failed. Failures are stashed into the search's config map,
// never silently dropped.
type Service struct {
	repo     Repository
	acquirer Acquirer
	deny     DenyLister
	enqueuer Enqueuer
	deadline time.Duration
	logger   *zap.Logger
}

// New creates the search execution service. deadline caps one acquisition
// including the whole fallback chain.
func New(repo Repository, acquirer Acquirer, deny DenyLister, enqueuer Enqueuer,
	deadline time.Duration, logger *zap.Logger) *Service {
	if deadline <= 0 {
		deadline = 120 * time.Second
	}
	return &Service{
		repo:     repo,
		acquirer: acquirer,
		deny:     deny,
		enqueuer: enqueuer,
		deadline: deadline,
		logger:   logger,
	}
}

// Execute runs one search job end to end. Only pending searches are
// processed; redelivered jobs for searches already picked up are dropped.
func (s *Service) Execute(ctx context.Context, searchID string) error {
	search, err := s.repo.Get(ctx, searchID)
	if err != nil {
		return fmt.Errorf("load search: %w", err)
	}
	if search.Status != domain.StatusPending {
		s.logger.Warn("skipping search not in pending state",
			zap.String("search_id", searchID),
			zap.String("status", string(search.Status)))
		return nil
	}

	kind, err := provider.ParseKind(search.Provider)
	if err != nil {
		return s.fail(ctx, search, fmt.Errorf("%w: %s", domain.ErrProviderMisconfigured, search.Provider))
	}

	now := time.Now().UTC()
	search.Status = domain.StatusProcessing
	search.StartedAt = &now
	if err := s.repo.Save(ctx, search); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	denyList, err := s.deny.ForOwner(ctx, search.OwnerID)
	if err != nil {
		return s.fail(ctx, search, fmt.Errorf("%w: load denylist: %v", domain.ErrPersistenceFailure, err))
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	sink := newResultSink(s.repo, search.ID, denyList)
	_, err = s.acquirer.Acquire(acquireCtx, kind, search.Query, search.NumResults, provider.AcquireOptions{Sink: sink})
	if err != nil {
		return s.fail(ctx, search, err)
	}

	search.Status = domain.StatusCompleted
	search.ResultCount = sink.count
	finished := time.Now().UTC()
	search.FinishedAt = &finished
	if err := s.repo.Save(ctx, search); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	s.logger.Info("search completed",
		zap.String("search_id", search.ID),
		zap.String("provider", search.Provider),
		zap.Int("result_count", search.ResultCount),
		zap.Int("domains", len(sink.domains)))

	s.fanOutEnrichment(ctx, search.ID, sink)
	return nil
}

// TestProvider runs the primary provider only, without persistence, so a
// misconfiguration surfaces instead of being masked by the fallback chain.
func (s *Service) TestProvider(ctx context.Context, kind provider.Kind, query string, numResults int) ([]domain.SearchHit, error) {
	testCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()
	return s.acquirer.Acquire(testCtx, kind, query, numResults, provider.AcquireOptions{Test: true})
}

// fail moves the search to failed and stashes the error into its config
// map. The original error is returned so the worker records the failure.
func (s *Service) fail(ctx context.Context, search *domain.Search, cause error) error {
	search.Status = domain.StatusFailed
	search.SetError(cause.Error(), domain.ErrorTag(cause))
	finished := time.Now().UTC()
	search.FinishedAt = &finished

	if err := s.repo.Save(ctx, search); err != nil {
		s.logger.Error("failed to persist failed search",
			zap.String("search_id", search.ID),
			zap.Error(err))
	}
	return cause
}

// fanOutEnrichment schedules one enrichment job per unique result domain,
// seeded with the first URL seen for that domain. Enqueue failures are
// logged; the completed search stands.
func (s *Service) fanOutEnrichment(ctx context.Context, searchID string, sink *resultSink) {
	for _, d := range sink.domainOrder {
		if err := s.enqueuer.EnqueueEnrich(ctx, searchID, d, sink.domains[d]); err != nil {
			s.logger.Warn("failed to enqueue enrichment",
				zap.String("search_id", searchID),
				zap.String("domain", d),
				zap.Error(err))
		}
	}
}

// resultSink persists hits batch by batch as the orchestrator acquires
// them. Deny-listed domains are filtered before persistence and positions
// are reassigned so the stored sequence is contiguous from 1.
type resultSink struct {
	repo     Repository
	searchID string
	deny     *denylist.List

	count       int
	domains     map[string]string // domain -> first result URL
	domainOrder []string
}

func newResultSink(repo Repository, searchID string, deny *denylist.List) *resultSink {
	return &resultSink{
		repo:     repo,
		searchID: searchID,
		deny:     deny,
		domains:  make(map[string]string),
	}
}

func (rs *resultSink) Commit(ctx context.Context, hits []domain.SearchHit) error {
	now := time.Now().UTC()
	batch := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Domain != "" && rs.deny.Contains(hit.Domain) {
			continue
		}
		rs.count++
		batch = append(batch, domain.SearchResult{
			SearchID:  rs.searchID,
			Position:  rs.count,
			Title:     hit.Title,
			URL:       hit.URL,
			Snippet:   hit.Snippet,
			Domain:    hit.Domain,
			CreatedAt: now,
		})
		if hit.Domain != "" {
			if _, seen := rs.domains[hit.Domain]; !seen {
				rs.domains[hit.Domain] = hit.URL
				rs.domainOrder = append(rs.domainOrder, hit.Domain)
			}
		}
	}
	if len(batch) == 0 {
		return nil
	}
	if err := rs.repo.AppendResults(ctx, rs.searchID, batch); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	return nil
}

func (rs *resultSink) Reset(ctx context.Context) error {
	if err := rs.repo.DeleteResults(ctx, rs.searchID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	rs.count = 0
	rs.domains = make(map[string]string)
	rs.domainOrder = nil
	return nil
}
