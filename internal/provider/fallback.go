package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/config"
	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/metrics"
)

// defaultChains is the static fallback map: HTML surfaces fall back to the
// API surface and then the free one; the free one falls back to the HTML
// surfaces.
var defaultChains = map[Kind][]Kind{
	KindYandexHTML: {KindYandexXML, KindDuckDuckGo},
	KindGoogleHTML: {KindDuckDuckGo},
	KindYandexXML:  {KindYandexHTML, KindDuckDuckGo},
	KindDuckDuckGo: {KindYandexHTML, KindGoogleHTML},
}

// BatchFetcher is implemented by adapters that can hand results over in
// batches while later pages are still being fetched.
type BatchFetcher interface {
	FetchBatches(ctx context.Context, query string, numResults int, cfg config.ProviderConfig,
		commit func(ctx context.Context, hits []domain.SearchHit) error) error
}

// Sink receives hits as they are acquired. Commit is called once per batch
// for batch-capable providers and once with everything for the rest; Reset
// is called when a provider is abandoned mid-acquisition so previously
// committed hits can be discarded before the next provider runs.
type Sink interface {
	Commit(ctx context.Context, hits []domain.SearchHit) error
	Reset(ctx context.Context) error
}

// AcquireOptions controls one acquisition.
type AcquireOptions struct {
	// Test disables fallback so a misconfigured provider is visible
	// instead of masked by the chain.
	Test bool
	// Sink, when set, receives hits incrementally.
	Sink Sink
}

// Orchestrator drives a primary provider and its static fallback chain.
type Orchestrator struct {
	registry  *Registry
	providers map[string]config.ProviderConfig
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator over registered providers and
// their configuration blocks.
func NewOrchestrator(registry *Registry, providers map[string]config.ProviderConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{registry: registry, providers: providers, logger: logger}
}

// Chain returns the providers tried for a primary kind, in order. A
// configured fallback list overrides the default map; unknown names are
// dropped.
func (o *Orchestrator) Chain(primary Kind) []Kind {
	chain := []Kind{primary}

	var tail []Kind
	if cfg, ok := o.providers[string(primary)]; ok && len(cfg.Fallback) > 0 {
		for _, name := range cfg.Fallback {
			if k, err := ParseKind(name); err == nil {
				tail = append(tail, k)
			}
		}
	} else {
		tail = defaultChains[primary]
	}

	for _, k := range tail {
		if k != primary {
			chain = append(chain, k)
		}
	}
	return chain
}

// Acquire runs the chain until one provider returns results. A provider
// error moves to the next link when it matches a block signature or when a
// later link exists at all; the last link's error propagates. With
// opts.Test only the primary runs.
func (o *Orchestrator) Acquire(ctx context.Context, primary Kind, query string, numResults int, opts AcquireOptions) ([]domain.SearchHit, error) {
	chain := o.Chain(primary)
	if opts.Test {
		chain = chain[:1]
	}

	var lastErr error
	for i, kind := range chain {
		p, err := o.registry.Get(kind)
		if err != nil {
			lastErr = err
			continue
		}

		if i > 0 {
			reason := "provider_failure"
			if IsBlockSignature(lastErr) {
				reason = "blocked"
			}
			metrics.ProviderFallbacksTotal.WithLabelValues(string(chain[i-1]), string(kind)).Inc()
			o.logger.Info("falling back to next provider",
				zap.String("from", string(chain[i-1])),
				zap.String("to", string(kind)),
				zap.String("reason", reason),
				zap.Error(lastErr),
			)
		}

		hits, err := o.runProvider(ctx, p, query, numResults, opts.Sink)
		if err == nil {
			return hits, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		// Block signatures and any other failure from a non-final link
		// both move down the chain; the last link's error propagates.
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no provider in chain for %s", primary)
	}
	return nil, lastErr
}

// runProvider executes one provider, wiring the sink. Committed hits are
// rolled back through Sink.Reset if the provider fails after partial
// progress.
func (o *Orchestrator) runProvider(ctx context.Context, p SearchProvider, query string, numResults int, sink Sink) ([]domain.SearchHit, error) {
	cfg := o.providers[string(p.Kind())]

	var all []domain.SearchHit
	commit := func(ctx context.Context, hits []domain.SearchHit) error {
		all = append(all, hits...)
		if sink != nil {
			return sink.Commit(ctx, hits)
		}
		return nil
	}

	var err error
	if batcher, ok := p.(BatchFetcher); ok {
		err = batcher.FetchBatches(ctx, query, numResults, cfg, commit)
	} else {
		var hits []domain.SearchHit
		hits, err = p.Fetch(ctx, query, numResults, cfg)
		if err == nil {
			err = commit(ctx, hits)
		}
	}

	if err != nil {
		if len(all) > 0 && sink != nil {
			if rerr := sink.Reset(ctx); rerr != nil {
				return nil, fmt.Errorf("reset after %s failure: %w", p.Kind(), rerr)
			}
		}
		return nil, err
	}
	return all, nil
}
