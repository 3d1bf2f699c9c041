package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal counts completed sync runs by mode and final status
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of synchronization runs",
		},
		[]string{"mode", "status"},
	)

	// SyncRunDuration tracks end-to-end run duration
	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Synchronization run duration in seconds",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"mode"},
	)

	// RecordsProcessed counts processed records by outcome
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_processed_total",
			Help: "Total number of records processed by outcome",
		},
		[]string{"outcome"},
	)

	// CheckpointSaves counts checkpoint writes by tier and status
	CheckpointSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_checkpoint_saves_total",
			Help: "Total number of checkpoint writes",
		},
		[]string{"tier", "status"},
	)

	// APICalls counts storefront API calls by operation and status
	APICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_api_calls_total",
			Help: "Total number of storefront API calls",
		},
		[]string{"operation", "status"},
	)

	// APIRetries counts storefront call retries by reason
	APIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_api_retries_total",
			Help: "Total number of storefront API call retries",
		},
		[]string{"reason"},
	)

	// RateLimitWait tracks time spent waiting on the call pacer
	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_rate_limit_wait_seconds",
			Help:    "Time spent waiting to respect the minimum call interval",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// DetectorCycles counts change-detector poll cycles by status
	DetectorCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_cycles_total",
			Help: "Total number of change detector poll cycles",
		},
		[]string{"status"},
	)

	// DetectorChanges counts changed records picked up by the detector
	DetectorChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detector_changes_detected_total",
			Help: "Total number of changed records detected",
		},
	)

	// StockSyncRuns counts reverse stock reconciliation runs by status
	StockSyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_sync_runs_total",
			Help: "Total number of reverse stock sync runs",
		},
		[]string{"status"},
	)

	// ActiveSyncs tracks the number of in-flight sync runs
	ActiveSyncs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_active_runs",
			Help: "Number of synchronization runs currently in flight",
		},
	)
)
