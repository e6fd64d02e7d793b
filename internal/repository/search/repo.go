package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/leadharvest/leadharvest/internal/db"
	"github.com/leadharvest/leadharvest/internal/domain"
)

// store is the consumer interface for search persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
}

// Repo stores Search records as JSON documents and SearchResults in one
// hash per search, one field per domain. An enrichment rewrites only its
// own domain's field, so concurrent enrichment jobs of the same search
// never overwrite each other's rows.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

func searchKey(id string) string  { return domain.KeyPrefix + "search:" + id }
func resultsKey(id string) string { return domain.KeyPrefix + "search:" + id + ":results" }

// Get loads a search by id.
func (r *Repo) Get(ctx context.Context, id string) (*domain.Search, error) {
	data, err := r.store.Get(ctx, searchKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrSearchNotFound
		}
		return nil, fmt.Errorf("get search %s: %w", id, err)
	}

	var s domain.Search
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("get search %s: decode: %w", id, err)
	}
	return &s, nil
}

// Save writes the search record, overwriting any previous state.
func (r *Repo) Save(ctx context.Context, s *domain.Search) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("save search %s: encode: %w", s.ID, err)
	}
	if err := r.store.Set(ctx, searchKey(s.ID), data); err != nil {
		return fmt.Errorf("save search %s: %w", s.ID, err)
	}
	return nil
}

// Results loads all persisted results of a search ordered by position.
// A search with no results yet yields an empty slice, not an error.
func (r *Repo) Results(ctx context.Context, searchID string) ([]domain.SearchResult, error) {
	fields, err := r.store.HGetAll(ctx, resultsKey(searchID))
	if err != nil {
		return nil, fmt.Errorf("get results %s: %w", searchID, err)
	}

	var results []domain.SearchResult
	for field, data := range fields {
		var rows []domain.SearchResult
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("get results %s: decode domain %q: %w", searchID, field, err)
		}
		results = append(results, rows...)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Position < results[j].Position })
	return results, nil
}

// AppendResults adds a batch of results to the search's result hash,
// grouping rows into their domain fields.
func (r *Repo) AppendResults(ctx context.Context, searchID string, batch []domain.SearchResult) error {
	if len(batch) == 0 {
		return nil
	}

	byDomain := make(map[string][]domain.SearchResult)
	var order []string
	for _, row := range batch {
		if _, seen := byDomain[row.Domain]; !seen {
			order = append(order, row.Domain)
		}
		byDomain[row.Domain] = append(byDomain[row.Domain], row)
	}

	for _, d := range order {
		existing, err := r.domainRows(ctx, searchID, d)
		if err != nil {
			return err
		}
		if err := r.writeDomainRows(ctx, searchID, d, append(existing, byDomain[d]...)); err != nil {
			return err
		}
	}
	return nil
}

// DeleteResults removes every persisted result of a search. Used to roll
// back partially committed batches before a fallback provider takes over.
func (r *Repo) DeleteResults(ctx context.Context, searchID string) error {
	if err := r.store.Del(ctx, resultsKey(searchID)); err != nil {
		return fmt.Errorf("delete results %s: %w", searchID, err)
	}
	return nil
}

// UpdateDomainResults applies one enrichment uniformly to every result of
// the search whose domain matches. Rows of other domains live in other
// hash fields and are never read or written here.
func (r *Repo) UpdateDomainResults(ctx context.Context, searchID, resultDomain string, e domain.Enrichment) error {
	rows, err := r.domainRows(ctx, searchID, resultDomain)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	for i := range rows {
		rows[i].Phone = e.Phone
		rows[i].Email = e.Email
		rows[i].ContactStatus = e.ContactStatus
		rows[i].SEOScore = e.SEOScore
		rows[i].OutreachSubject = e.OutreachSubject
		rows[i].OutreachText = e.OutreachText
		rows[i].ExtraData = e.ExtraData
	}
	return r.writeDomainRows(ctx, searchID, resultDomain, rows)
}

func (r *Repo) domainRows(ctx context.Context, searchID, resultDomain string) ([]domain.SearchResult, error) {
	data, err := r.store.HGet(ctx, resultsKey(searchID), resultDomain)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get results %s domain %q: %w", searchID, resultDomain, err)
	}

	var rows []domain.SearchResult
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("get results %s: decode domain %q: %w", searchID, resultDomain, err)
	}
	return rows, nil
}

func (r *Repo) writeDomainRows(ctx context.Context, searchID, resultDomain string, rows []domain.SearchResult) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("save results %s: encode: %w", searchID, err)
	}
	if err := r.store.HSet(ctx, resultsKey(searchID), resultDomain, data); err != nil {
		return fmt.Errorf("save results %s domain %q: %w", searchID, resultDomain, err)
	}
	return nil
}
