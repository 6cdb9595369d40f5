// Package metrics exposes Prometheus collectors for the queue and fill
// pipeline, grounded on lesovsky-pgscv's exporter pattern: a small set of
// package-level collectors registered once and updated from the worker and
// queue code, served over the standard promhttp handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ( //nolint:gochecknoglobals
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "partitioncache",
		Name:      "queue_depth",
		Help:      "Number of unclaimed jobs waiting in a queue.",
	}, []string{"queue"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partitioncache",
		Name:      "cache_hits_total",
		Help:      "Fragments resolved directly from the cache without a fill-worker run.",
	}, []string{"partition_key"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partitioncache",
		Name:      "cache_misses_total",
		Help:      "Fragments that required a fill-worker run before they could be used.",
	}, []string{"partition_key"})

	FragmentsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partitioncache",
		Name:      "fragments_executed_total",
		Help:      "Fragments the fill worker executed, labeled by resulting status.",
	}, []string{"status"})

	FragmentExecutionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "partitioncache",
		Name:      "fragment_execution_seconds",
		Help:      "Time spent executing one fragment query against the database.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
)

// Handler returns the standard promhttp handler serving every collector
// registered via promauto's default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
