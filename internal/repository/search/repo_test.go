package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leadharvest/leadharvest/internal/domain"
)

func TestSaveAndGet(t *testing.T) {
	repo := New(newMemStore())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	s := &domain.Search{
		ID:         "s1",
		OwnerID:    "o1",
		Query:      "стоматология москва",
		Provider:   "yandex_html",
		NumResults: 30,
		Status:     domain.StatusPending,
		CreatedAt:  now,
	}
	if err := repo.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Query != s.Query || got.Status != domain.StatusPending || !got.CreatedAt.Equal(now) {
		t.Errorf("got %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newMemStore())
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSearchNotFound) {
		t.Fatalf("err = %v, want ErrSearchNotFound", err)
	}
}

func TestAppendResults_Accumulates(t *testing.T) {
	repo := New(newMemStore())
	ctx := context.Background()

	first := []domain.SearchResult{
		{SearchID: "s1", Position: 1, URL: "https://a.ru/", Domain: "a.ru"},
		{SearchID: "s1", Position: 2, URL: "https://b.ru/", Domain: "b.ru"},
	}
	second := []domain.SearchResult{
		{SearchID: "s1", Position: 3, URL: "https://c.ru/", Domain: "c.ru"},
	}
	if err := repo.AppendResults(ctx, "s1", first); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}
	if err := repo.AppendResults(ctx, "s1", second); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}

	results, err := repo.Results(ctx, "s1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, r := range results {
		if r.Position != i+1 {
			t.Errorf("results[%d].Position = %d", i, r.Position)
		}
	}
}

func TestResults_EmptyForFreshSearch(t *testing.T) {
	repo := New(newMemStore())
	results, err := repo.Results(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestDeleteResults(t *testing.T) {
	repo := New(newMemStore())
	ctx := context.Background()

	batch := []domain.SearchResult{{SearchID: "s1", Position: 1, URL: "https://a.ru/"}}
	if err := repo.AppendResults(ctx, "s1", batch); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}
	if err := repo.DeleteResults(ctx, "s1"); err != nil {
		t.Fatalf("DeleteResults: %v", err)
	}

	results, err := repo.Results(ctx, "s1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results survived delete: %+v", results)
	}
}

func TestUpdateDomainResults_OnlyMatchingRows(t *testing.T) {
	repo := New(newMemStore())
	ctx := context.Background()

	batch := []domain.SearchResult{
		{SearchID: "s1", Position: 1, URL: "https://a.ru/x", Domain: "a.ru"},
		{SearchID: "s1", Position: 2, URL: "https://b.ru/", Domain: "b.ru"},
		{SearchID: "s1", Position: 3, URL: "https://a.ru/y", Domain: "a.ru"},
	}
	if err := repo.AppendResults(ctx, "s1", batch); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}

	score := 62
	enrichment := domain.Enrichment{
		Phone:           "+7 (495) 123-45-67",
		Email:           "info@a.ru",
		ContactStatus:   domain.ContactFound,
		SEOScore:        &score,
		OutreachSubject: "subject",
		OutreachText:    "body",
	}
	if err := repo.UpdateDomainResults(ctx, "s1", "a.ru", enrichment); err != nil {
		t.Fatalf("UpdateDomainResults: %v", err)
	}

	results, err := repo.Results(ctx, "s1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	for _, r := range results {
		switch r.Domain {
		case "a.ru":
			if r.Phone != enrichment.Phone || r.ContactStatus != domain.ContactFound {
				t.Errorf("a.ru row not enriched: %+v", r)
			}
			if r.SEOScore == nil || *r.SEOScore != 62 {
				t.Errorf("a.ru row score = %v", r.SEOScore)
			}
		case "b.ru":
			if r.Phone != "" || r.ContactStatus != domain.ContactUnresolved {
				t.Errorf("b.ru row mutated: %+v", r)
			}
		}
	}
}

func TestUpdateDomainResults_NoMatchIsNoop(t *testing.T) {
	store := newMemStore()
	repo := New(store)
	ctx := context.Background()

	if err := repo.UpdateDomainResults(ctx, "s1", "none.ru", domain.Enrichment{}); err != nil {
		t.Fatalf("UpdateDomainResults: %v", err)
	}
	if len(store.data) != 0 || len(store.hashes) != 0 {
		t.Errorf("store written on no-op update: %v %v", store.data, store.hashes)
	}
}

// Two enrichment jobs for different domains of the same search run on
// concurrent workers. Each update must only touch its own domain's rows
// even when both read before either writes.
func TestUpdateDomainResults_ConcurrentDomainsBothSurvive(t *testing.T) {
	store := newMemStore()
	repo := New(store)
	ctx := context.Background()

	batch := []domain.SearchResult{
		{SearchID: "s1", Position: 1, URL: "https://a.com/", Domain: "a.com"},
		{SearchID: "s1", Position: 2, URL: "https://b.com/", Domain: "b.com"},
	}
	if err := repo.AppendResults(ctx, "s1", batch); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}

	// Hold both updates at their read until each has seen the pre-update
	// state, then let the writes land in either order.
	var barrier sync.WaitGroup
	barrier.Add(2)
	store.onHGet = func(_, _ string) {
		barrier.Done()
		barrier.Wait()
	}

	var wg sync.WaitGroup
	for _, d := range []string{"a.com", "b.com"} {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			e := domain.Enrichment{ContactStatus: domain.ContactFound, Email: "info@" + d}
			if err := repo.UpdateDomainResults(ctx, "s1", d, e); err != nil {
				t.Errorf("UpdateDomainResults(%s): %v", d, err)
			}
		}(d)
	}
	wg.Wait()
	store.onHGet = nil

	results, err := repo.Results(ctx, "s1")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.ContactStatus != domain.ContactFound || r.Email != "info@"+r.Domain {
			t.Errorf("row %s lost its enrichment: %+v", r.Domain, r)
		}
	}
}
