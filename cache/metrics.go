package cache

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the cache layer. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Hits          *prometheus.CounterVec
	Misses        *prometheus.CounterVec
	Populates     *prometheus.CounterVec
	CacheErrors   *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
	PurgedKeys    *prometheus.CounterVec
	LoadDuration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Read-through requests served from the cache",
			},
			[]string{"resource"},
		),
		Misses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Read-through requests that fell through to the store",
			},
			[]string{"resource"},
		),
		Populates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_populates_total",
				Help:      "Cache populate attempts by outcome",
			},
			[]string{"resource", "outcome"},
		),
		CacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Swallowed cache failures by operation and type",
			},
			[]string{"operation", "type"},
		),
		Invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Mutations processed by the invalidation policy",
			},
			[]string{"entity_kind", "outcome"},
		),
		PurgedKeys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_purged_keys_total",
				Help:      "Keys removed by pattern purges",
			},
			[]string{"resource"},
		),
		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_load_duration_seconds",
				Help:      "Read-through latency by serving source",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource", "source"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.Hits,
			m.Misses,
			m.Populates,
			m.CacheErrors,
			m.Invalidations,
			m.PurgedKeys,
			m.LoadDuration,
		)
	}

	return m
}

func (m *Metrics) hit(resource string) {
	if m == nil {
		return
	}
	m.Hits.WithLabelValues(resource).Inc()
}

func (m *Metrics) miss(resource string) {
	if m == nil {
		return
	}
	m.Misses.WithLabelValues(resource).Inc()
}

func (m *Metrics) populate(resource string, stored bool) {
	if m == nil {
		return
	}
	outcome := "stored"
	if !stored {
		outcome = "skipped"
	}
	m.Populates.WithLabelValues(resource, outcome).Inc()
}

func (m *Metrics) cacheError(operation string, errType CacheErrorType) {
	if m == nil {
		return
	}
	m.CacheErrors.WithLabelValues(operation, errType.String()).Inc()
}

func (m *Metrics) invalidation(kind string, complete bool) {
	if m == nil {
		return
	}
	outcome := "complete"
	if !complete {
		outcome = "incomplete"
	}
	m.Invalidations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) purged(pattern string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PurgedKeys.WithLabelValues(resourceOf(pattern)).Add(float64(n))
}

func (m *Metrics) observeLoad(resource, source string, d time.Duration) {
	if m == nil {
		return
	}
	m.LoadDuration.WithLabelValues(resource, source).Observe(d.Seconds())
}

// resourceOf reduces a key or pattern to its namespace so labels stay low-cardinality.
func resourceOf(key string) string {
	if i := strings.Index(key, ":"); i >= 0 {
		key = key[:i]
	}
	return strings.TrimSuffix(key, "*")
}
