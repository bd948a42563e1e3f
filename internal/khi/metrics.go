package khi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusKhiBucketSplits = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "khi",
		Name:      "bucket_splits_total",
		Help:      "Number of buckets rehashed by the linear hashing split step",
	},
)
