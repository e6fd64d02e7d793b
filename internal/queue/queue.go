package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/db"
)

// JobType selects the handler a job is dispatched to.
type JobType string

const (
	JobSearchExecute JobType = "search.execute"
	JobDomainEnrich  JobType = "domain.enrich"
)

// Job is the queue payload. Fire-and-forget: producers get no completion
// signal, outcomes land in the Search record.
type Job struct {
	ID       string  `json:"id"`
	Type     JobType `json:"type"`
	SearchID string  `json:"search_id"`
	Domain   string  `json:"domain,omitempty"`
	URL      string  `json:"url,omitempty"`
}

// store is the consumer interface for the queue (ISP).
type store interface {
	LPush(ctx context.Context, key string, value []byte) error
	BRPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
	LLen(ctx context.Context, key string) (int64, error)
}

// Queue is a Redis-list backed job queue with one list per job type.
type Queue struct {
	store      store
	prefix     string
	popTimeout time.Duration
	logger     *zap.Logger
}

// New creates a queue over the list store.
func New(s store, cfg config.QueueConfig, logger *zap.Logger) *Queue {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "lead:"
	}
	popTimeout := time.Duration(cfg.PopTimeoutSec) * time.Second
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &Queue{store: s, prefix: prefix, popTimeout: popTimeout, logger: logger}
}

func (q *Queue) key(t JobType) string {
	switch t {
	case JobDomainEnrich:
		return q.prefix + "queue:enrich"
	default:
		return q.prefix + "queue:search"
	}
}

// EnqueueSearch schedules execution of a pending search.
func (q *Queue) EnqueueSearch(ctx context.Context, searchID string) error {
	return q.Enqueue(ctx, Job{
		ID:       uuid.NewString(),
		Type:     JobSearchExecute,
		SearchID: searchID,
	})
}

// EnqueueEnrich schedules enrichment of one domain of a search. url is the
// first result URL seen for that domain and seeds the crawl.
func (q *Queue) EnqueueEnrich(ctx context.Context, searchID, domain, url string) error {
	return q.Enqueue(ctx, Job{
		ID:       uuid.NewString(),
		Type:     JobDomainEnrich,
		SearchID: searchID,
		Domain:   domain,
		URL:      url,
	})
}

// Enqueue pushes a job onto its type's list.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("enqueue %s: encode: %w", job.Type, err)
	}
	if err := q.store.LPush(ctx, q.key(job.Type), data); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	q.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("search_id", job.SearchID))
	return nil
}

// Pop blocks up to the pop timeout for the next job of the given type.
// An empty wait returns (nil, nil) so worker loops can re-check their
// context between polls.
func (q *Queue) Pop(ctx context.Context, t JobType) (*Job, error) {
	data, err := q.store.BRPop(ctx, q.key(t), q.popTimeout)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop %s: %w", t, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		// A corrupt payload is dropped, not redelivered.
		q.logger.Error("malformed job payload dropped", zap.ByteString("payload", data), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Depth reports the number of pending jobs of the given type.
func (q *Queue) Depth(ctx context.Context, t JobType) (int64, error) {
	n, err := q.store.LLen(ctx, q.key(t))
	if err != nil {
		return 0, fmt.Errorf("depth %s: %w", t, err)
	}
	return n, nil
}
