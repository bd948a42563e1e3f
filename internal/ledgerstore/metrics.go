package ledgerstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var prometheusLedgerstoreFlushDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "ledgerstore",
		Name:      "flush_duration_seconds",
		Help:      "Duration of flushLocked, which commits pending CAL/KHI writes and the commit-log lengths",
	},
)
