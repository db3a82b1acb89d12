// Package telemetry exposes Prometheus collectors for statement execution and
// shared cache traffic.
//
// Collectors are process-wide and always updated; they are only exported once
// registered with a prometheus.Registerer.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batis_cache_requests_total",
			Help: "Shared cache lookups, by cache and result.",
		},
		[]string{"cache", "result"},
	)
	cacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batis_cache_evictions_total",
			Help: "Entries evicted from a shared cache for size or age.",
		},
		[]string{"cache"},
	)
	statementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batis_statement_duration_seconds",
			Help:    "Duration of database calls, by statement and kind.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"statement", "kind"},
	)
	statementErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batis_statement_errors_total",
			Help: "Failed database calls, by statement and kind.",
		},
		[]string{"statement", "kind"},
	)
)

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{cacheRequests, cacheEvictions, statementDuration, statementErrors}
}

// Register registers all collectors with r. Collectors that are already
// registered are skipped.
func Register(r prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := r.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// MustRegister is Register that panics on error.
func MustRegister(r prometheus.Registerer) {
	if err := Register(r); err != nil {
		panic(err)
	}
}

// RecordCacheRequest counts one shared cache lookup.
func RecordCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordCacheEviction counts one evicted or expired entry.
func RecordCacheEviction(cache string) {
	cacheEvictions.WithLabelValues(cache).Inc()
}

// RecordStatement observes one database call.
func RecordStatement(statement, kind string, elapsed time.Duration, err error) {
	statementDuration.WithLabelValues(statement, kind).Observe(elapsed.Seconds())
	if err != nil {
		statementErrors.WithLabelValues(statement, kind).Inc()
	}
}
