package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var accountsRegisteredCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yserver_accounts_registered_total",
	Help: "Number of accounts registered",
})

var postsCreatedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yserver_posts_created_total",
	Help: "Number of posts created",
}, []string{"kind"})

var reactionsCreatedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yserver_reactions_created_total",
	Help: "Number of reactions recorded",
})

var followEventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yserver_follow_events_total",
	Help: "Number of follow graph mutations",
}, []string{"action"})

var annotationFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yserver_annotation_failures_total",
	Help: "Number of posts stored with a degraded toxicity annotation",
})

var feedReadsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yserver_feed_reads_total",
	Help: "Number of feed recommendation reads",
}, []string{"mode"})

var resetsCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yserver_resets_total",
	Help: "Number of completed experiment resets",
})
