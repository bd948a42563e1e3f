package chainmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusChainmgrForkDepth = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "chainmgr",
		Name:      "fork_depth",
		Help:      "Number of blocks walked back from a side-chain candidate to its common ancestor",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	},
)
