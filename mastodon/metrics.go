package mastodon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "parrot_mastodon_requests",
	Help: "Mastodon API requests, by method and response status",
}, []string{"method", "status"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "parrot_mastodon_request_duration_sec",
	Help:    "Duration of Mastodon API requests",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
}, []string{"method"})

var accountCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "parrot_mastodon_account_cache_hits",
	Help: "Handle lookups answered from the account cache",
})
