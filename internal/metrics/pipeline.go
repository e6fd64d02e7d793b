package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	FetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadharvest",
			Name:      "fetch_attempts_total",
			Help:      "Total HTTP fetch attempts by verdict",
		},
		[]string{"verdict"},
	)

	FetchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leadharvest",
			Name:      "fetch_retries_total",
			Help:      "Total fetch retries after a failed attempt",
		},
	)

	CaptchaSolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadharvest",
			Name:      "captcha_solves_total",
			Help:      "Captcha solve outcomes",
		},
		[]string{"kind", "outcome"}, // kind: image/token, outcome: solved/unsolved
	)

	ProviderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadharvest",
			Name:      "provider_fallbacks_total",
			Help:      "Fallback transitions between providers",
		},
		[]string{"from", "to"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "leadharvest",
			Name:      "job_duration_seconds",
			Help:      "Background job duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type", "status"},
	)

	CrawlPagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leadharvest",
			Name:      "crawl_pages_total",
			Help:      "Total pages fetched by the domain crawler",
		},
	)

	CrawlCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadharvest",
			Name:      "crawl_cache_total",
			Help:      "Crawl cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		FetchAttemptsTotal,
		FetchRetriesTotal,
		CaptchaSolvesTotal,
		ProviderFallbacksTotal,
		JobDuration,
		CrawlPagesTotal,
		CrawlCacheTotal,
	)
	pipelineMetricsRegistered = true
}
