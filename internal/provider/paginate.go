package provider

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/leadharvest/leadharvest/internal/domain"
)

// interPageDelay spaces HTML page fetches 2-4s apart so pagination does
// not look like a burst.
func interPageDelay(ctx context.Context, rng *rand.Rand) error {
	d := 2*time.Second + time.Duration(rng.Int63n(int64(2*time.Second)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// paginateHTML drives an HTML surface page by page. An empty or failed
// first page is an acquisition error (a likely block, so the orchestrator
// can fall back); an empty or failed later page just ends pagination. A
// short page means the surface is exhausted.
func paginateHTML(
	ctx context.Context,
	kind Kind,
	numResults int,
	delay func(context.Context) error,
	fetchPage func(ctx context.Context, page int) ([]domain.SearchHit, error),
) ([]domain.SearchHit, error) {
	numResults = clampResults(numResults)
	pages := pagesNeeded(numResults, htmlPageSize)

	var all []domain.SearchHit
	for page := 0; page < pages; page++ {
		if page > 0 {
			if err := delay(ctx); err != nil {
				return nil, err
			}
		}

		hits, err := fetchPage(ctx, page)
		if err != nil {
			if page == 0 {
				return nil, domain.NewAcquisitionError(string(kind), err)
			}
			break
		}
		if len(hits) == 0 {
			if page == 0 {
				return nil, domain.NewAcquisitionError(string(kind),
					fmt.Errorf("no results on first page: %w", domain.ErrBlockedByTarget))
			}
			break
		}

		all = append(all, hits...)
		if len(hits) < htmlPageSize || len(all) >= numResults {
			break
		}
	}

	if len(all) > numResults {
		all = all[:numResults]
	}
	return all, nil
}
