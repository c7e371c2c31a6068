package snapshotter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// capture statuses used as metric labels
const (
	statusSuccess        = "success"
	statusCompilerFailed = "compiler_failed"
	statusMalformed      = "malformed"
	statusTimeout        = "timeout"
	statusError          = "error"
)

var (
	// Capture metrics
	captureDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalogsnap_capture_duration_seconds",
			Help:    "Time taken to compile and capture a catalog",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	captureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsnap_capture_total",
			Help: "Total number of catalog capture attempts",
		},
		[]string{"status"}, // success, compiler_failed, malformed, timeout or error
	)

	// Drift metrics
	catalogChanges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalogsnap_catalog_changes",
			Help: "Number of changed entries between the last two snapshots of a host",
		},
		[]string{"host"},
	)

	promotionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsnap_promotion_total",
			Help: "Total number of snapshot promotions",
		},
		[]string{"status"}, // success or error
	)
)
