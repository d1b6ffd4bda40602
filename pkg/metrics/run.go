package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunMetrics records pipeline outcomes. A nil *RunMetrics is valid and
// records nothing.
type RunMetrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	lastSuccess     *prometheus.GaugeVec
	archiveSize     *prometheus.GaugeVec
	nodeDowntime    *prometheus.GaugeVec
	targetTransfers *prometheus.CounterVec
	targetDuration  *prometheus.HistogramVec
}

// NewRunMetrics registers run metrics on the active registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRunMetrics() *RunMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &RunMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainsnap_runs_total",
				Help: "Total number of pipeline runs by action and result",
			},
			[]string{"action", "result"},
		),
		runDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "chainsnap_run_duration_seconds",
				Help: "Wall-clock duration of pipeline runs in seconds",
				Buckets: []float64{
					10,    // reload only
					60,    // 1m
					300,   // 5m - pruned archive
					900,   // 15m
					1800,  // 30m - full archive
					3600,  // 1h
					7200,  // 2h - slow remote transfers
					14400, // 4h
				},
			},
			[]string{"action"},
		),
		stageDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainsnap_stage_duration_seconds",
				Help:    "Duration of individual pipeline stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 4, 8),
			},
			[]string{"stage"},
		),
		lastSuccess: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chainsnap_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run by action and network",
			},
			[]string{"action", "network"},
		),
		archiveSize: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chainsnap_archive_size_bytes",
				Help: "Size of the most recently published archive",
			},
			[]string{"network", "retention"},
		),
		nodeDowntime: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chainsnap_node_downtime_seconds",
				Help: "Time the node spent stopped during the last run",
			},
			[]string{"network"},
		),
		targetTransfers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainsnap_target_transfers_total",
				Help: "Distribution attempts by target and result",
			},
			[]string{"target", "kind", "result"},
		),
		targetDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainsnap_target_duration_seconds",
				Help:    "Duration of distribution to a single target in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"target"},
		),
	}
}

// ObserveRun records the result and duration of a run. Successful runs
// also stamp the last-success gauge for network.
func (m *RunMetrics) ObserveRun(action, network, result string, duration time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(action, result).Inc()
	m.runDuration.WithLabelValues(action).Observe(duration.Seconds())
	if result == "success" && network != "" {
		m.lastSuccess.WithLabelValues(action, network).Set(float64(at.Unix()))
	}
}

// ObserveStage records how long one stage took.
func (m *RunMetrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetArchiveSize records the published archive size.
func (m *RunMetrics) SetArchiveSize(network, retention string, size int64) {
	if m == nil {
		return
	}
	m.archiveSize.WithLabelValues(network, retention).Set(float64(size))
}

// SetDowntime records how long the node was stopped.
func (m *RunMetrics) SetDowntime(network string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeDowntime.WithLabelValues(network).Set(d.Seconds())
}

// ObserveTarget records one distribution target outcome.
func (m *RunMetrics) ObserveTarget(target, kind string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.targetTransfers.WithLabelValues(target, kind, result).Inc()
	m.targetDuration.WithLabelValues(target).Observe(duration.Seconds())
}
