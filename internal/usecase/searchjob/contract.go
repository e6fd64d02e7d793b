package searchjob

import (
	"context"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/provider"
	"github.com/leadharvest/leadharvest/internal/repository/denylist"
)

// Repository defines the storage contract for searches and their results.
type Repository interface {
	Get(ctx context.Context, id string) (*domain.Search, error)
	Save(ctx context.Context, s *domain.Search) error
	AppendResults(ctx context.Context, searchID string, batch []domain.SearchResult) error
	DeleteResults(ctx context.Context, searchID string) error
}

// Acquirer runs a provider chain. Implemented by provider.Orchestrator.
type Acquirer interface {
	Acquire(ctx context.Context, primary provider.Kind, query string, numResults int,
		opts provider.AcquireOptions) ([]domain.SearchHit, error)
}

// DenyLister loads the effective deny-list for an owner.
type DenyLister interface {
	ForOwner(ctx context.Context, ownerID string) (*denylist.List, error)
}

// Enqueuer schedules per-domain enrichment jobs.
type Enqueuer interface {
	EnqueueEnrich(ctx context.Context, searchID, domain, url string) error
}
