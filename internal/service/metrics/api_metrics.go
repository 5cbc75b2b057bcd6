package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bazaarpull",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of serving use cases",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bazaarpull",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by serving use case",
		},
		[]string{"endpoint"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bazaarpull",
			Subsystem: "api",
			Name:      "cache_lookups_total",
			Help:      "Read-through cache lookups by namespace and result",
		},
		[]string{"cache", "result"},
	)

	ScoredProducts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bazaarpull",
			Subsystem: "api",
			Name:      "scored_products",
			Help:      "Products scored per ranking request",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

// Register adds the API collectors to reg once; nil means the default registerer.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		reg.MustRegister(APILatency, APIErrors, CacheLookups, ScoredProducts)
	})
}

// ObserveCache counts one lookup.
func ObserveCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
