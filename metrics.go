package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// replaysTotal counts responses served from the cache.
	replaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_replays_total",
		Help: "Total number of responses replayed from the idempotency cache",
	})

	// missesTotal counts lookups that found no usable entry.
	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_cache_misses_total",
		Help: "Total number of idempotency cache misses",
	})

	// storesTotal counts responses written to the cache.
	storesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_cache_stores_total",
		Help: "Total number of responses stored in the idempotency cache",
	})

	// cacheErrors counts recovered cache-path failures by operation.
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_cache_errors_total",
			Help: "Total number of recovered idempotency cache errors",
		},
		[]string{"operation"}, // "identity", "fingerprint", "get", "decode", "encode", "set"
	)
)
