package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "livepkg"

type metrics struct {
	operations *prometheus.CounterVec
	cacheHits  *prometheus.CounterVec
	fetches    *prometheus.CounterVec
	uninstalls prometheus.Counter
	lockWait   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Package manager operations by outcome",
		}, []string{"operation", "result"}),

		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_hits_total",
			Help:      "Install requests served without a network fetch",
		}, []string{"source", "level"}),

		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetches_total",
			Help:      "Archives downloaded and extracted",
		}, []string{"source"}),

		uninstalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uninstalls_total",
			Help:      "Packages removed from disk",
		}),

		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the install lock",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}
