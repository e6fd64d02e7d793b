package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/metrics"
)

// Handler processes one job. A returned error marks the job failed; the
// queue does not redeliver, failure state lives in the Search record.
type Handler func(ctx context.Context, job Job) error

// Workers runs the worker pools for both job types. Search execution and
// enrichment scale independently: enrichment jobs are many and cheap,
// search jobs are few and long.
type Workers struct {
	queue   *Queue
	search  Handler
	enrich  Handler
	nSearch int
	nEnrich int
	// popRetryDelay keeps a broken store from turning the poll loop into
	// a hot spin. Pop already blocks while the store is healthy.
	popRetryDelay time.Duration
	logger        *zap.Logger
}

// NewWorkers wires the handlers to the queue.
func NewWorkers(q *Queue, cfg config.QueueConfig, search, enrich Handler, logger *zap.Logger) *Workers {
	nSearch := cfg.SearchWorkers
	if nSearch <= 0 {
		nSearch = 2
	}
	nEnrich := cfg.EnrichWorkers
	if nEnrich <= 0 {
		nEnrich = 8
	}
	return &Workers{
		queue:         q,
		search:        search,
		enrich:        enrich,
		nSearch:       nSearch,
		nEnrich:       nEnrich,
		popRetryDelay: time.Second,
		logger:        logger,
	}
}

// Run blocks until ctx is cancelled, then drains: in-flight jobs finish,
// idle workers exit on their next poll.
func (w *Workers) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < w.nSearch; i++ {
		g.Go(func() error { return w.loop(gctx, JobSearchExecute, w.search) })
	}
	for i := 0; i < w.nEnrich; i++ {
		g.Go(func() error { return w.loop(gctx, JobDomainEnrich, w.enrich) })
	}

	w.logger.Info("queue workers started",
		zap.Int("search_workers", w.nSearch),
		zap.Int("enrich_workers", w.nEnrich))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Workers) loop(ctx context.Context, t JobType, handle Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.queue.Pop(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("queue pop failed", zap.String("type", string(t)), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.popRetryDelay):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.handle(ctx, *job, handle)
	}
}

// handle runs one job and records its duration. Handler errors are logged
// and absorbed: a failed job never takes its worker down.
func (w *Workers) handle(ctx context.Context, job Job, handle Handler) {
	start := time.Now()
	err := handle(ctx, job)
	status := "ok"
	if err != nil {
		status = "error"
		w.logger.Error("job failed",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.String("search_id", job.SearchID),
			zap.Error(err))
	}
	metrics.JobDuration.WithLabelValues(string(job.Type), status).Observe(time.Since(start).Seconds())
}
