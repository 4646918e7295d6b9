package perspective

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var analyzeAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "yserver_perspective_api_duration_seconds",
	Help:    "A histogram of comment analyze request latencies",
	Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
})

var analyzeAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yserver_perspective_api_requests_total",
	Help: "Number of analyze requests made to the perspective API",
}, []string{"status"})

var analyzeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yserver_perspective_cache_hits_total",
	Help: "Number of analyze calls served from the local score cache",
})
