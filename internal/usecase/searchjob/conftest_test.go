package searchjob

import (
	"context"
	"sync"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/provider"
	"github.com/leadharvest/leadharvest/internal/repository/denylist"
)

// fakeRepo keeps searches and result rows in memory.
type fakeRepo struct {
	mu       sync.Mutex
	searches map[string]*domain.Search
	results  map[string][]domain.SearchResult
	saveErr  error
}

func newFakeRepo(searches ...*domain.Search) *fakeRepo {
	r := &fakeRepo{
		searches: make(map[string]*domain.Search),
		results:  make(map[string][]domain.SearchResult),
	}
	for _, s := range searches {
		copied := *s
		r.searches[s.ID] = &copied
	}
	return r
}

func (r *fakeRepo) Get(_ context.Context, id string) (*domain.Search, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.searches[id]
	if !ok {
		return nil, domain.ErrSearchNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeRepo) Save(_ context.Context, s *domain.Search) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.searches[s.ID] = &copied
	return nil
}

func (r *fakeRepo) AppendResults(_ context.Context, searchID string, batch []domain.SearchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[searchID] = append(r.results[searchID], batch...)
	return nil
}

func (r *fakeRepo) DeleteResults(_ context.Context, searchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.results, searchID)
	return nil
}

func (r *fakeRepo) stored(id string) *domain.Search {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.searches[id]
}

func (r *fakeRepo) rows(id string) []domain.SearchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[id]
}

// fakeAcquirer commits the configured batches through the sink, then
// returns err. It records the options it ran with.
type fakeAcquirer struct {
	batches  [][]domain.SearchHit
	err      error
	lastKind provider.Kind
	lastOpts provider.AcquireOptions
	calls    int
}

func (a *fakeAcquirer) Acquire(ctx context.Context, primary provider.Kind, _ string, _ int,
	opts provider.AcquireOptions) ([]domain.SearchHit, error) {
	a.calls++
	a.lastKind = primary
	a.lastOpts = opts

	var all []domain.SearchHit
	for _, batch := range a.batches {
		all = append(all, batch...)
		if opts.Sink != nil {
			if err := opts.Sink.Commit(ctx, batch); err != nil {
				return nil, err
			}
		}
	}
	if a.err != nil {
		if opts.Sink != nil && len(all) > 0 {
			if rerr := opts.Sink.Reset(ctx); rerr != nil {
				return nil, rerr
			}
		}
		return nil, a.err
	}
	return all, nil
}

type fakeDeny struct {
	entries []string
}

func (d *fakeDeny) ForOwner(_ context.Context, _ string) (*denylist.List, error) {
	return denylist.NewList(d.entries), nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs [][3]string // search_id, domain, url
	err  error
}

func (e *fakeEnqueuer) EnqueueEnrich(_ context.Context, searchID, d, url string) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, [3]string{searchID, d, url})
	return nil
}

func pendingSearch(id, kind string) *domain.Search {
	return &domain.Search{
		ID:         id,
		OwnerID:    "o1",
		Query:      "стоматология москва",
		Provider:   kind,
		NumResults: 10,
		Status:     domain.StatusPending,
	}
}
