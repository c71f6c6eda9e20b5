package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements Collector using the default process-global
// Prometheus registry.
type PrometheusCollector struct {
	workerState    *prometheus.GaugeVec
	backupFiles    *prometheus.CounterVec
	backupBytes    *prometheus.CounterVec
	backupDuration *prometheus.HistogramVec
	ipcRequests    *prometheus.CounterVec
	ipcDuration    *prometheus.HistogramVec
	workerRestarts *prometheus.CounterVec
}

// NewPrometheusCollector registers and returns a PrometheusCollector.
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		workerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "maxbackup_worker_state",
				Help: "Current worker state per user (0=Starting,1=Running,2=Stopping,3=Stopped)",
			},
			[]string{"sid"},
		),
		backupFiles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxbackup_backup_files_total",
				Help: "Total files processed by run_job, by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		backupBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxbackup_backup_bytes_total",
				Help: "Total bytes copied by run_job",
			},
			[]string{"job"},
		),
		backupDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maxbackup_backup_run_duration_seconds",
				Help:    "Duration of one run_job call",
				Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 900},
			},
			[]string{"job"},
		),
		ipcRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxbackup_ipc_requests_total",
				Help: "Total IPC requests dispatched, by action and final status",
			},
			[]string{"action", "status"},
		),
		ipcDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "maxbackup_ipc_request_duration_seconds",
				Help:    "Duration of one IPC connection's handling",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		workerRestarts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxbackup_worker_restarts_total",
				Help: "Total worker loop error-backoff retries, by sid",
			},
			[]string{"sid"},
		),
	}
}

// RecordWorkerState implements Collector.
func (m *PrometheusCollector) RecordWorkerState(sid string, state int) {
	m.workerState.WithLabelValues(sid).Set(float64(state))
}

// RecordBackupRun implements Collector.
func (m *PrometheusCollector) RecordBackupRun(job string, backupCount, upToDateCount, errorCount, missingCount, bytes uint64, duration time.Duration) {
	m.backupFiles.WithLabelValues(job, "copied").Add(float64(backupCount))
	m.backupFiles.WithLabelValues(job, "upToDate").Add(float64(upToDateCount))
	m.backupFiles.WithLabelValues(job, "error").Add(float64(errorCount))
	m.backupFiles.WithLabelValues(job, "missing").Add(float64(missingCount))
	m.backupBytes.WithLabelValues(job).Add(float64(bytes))
	m.backupDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordIPCRequest implements Collector.
func (m *PrometheusCollector) RecordIPCRequest(action string, status string, duration time.Duration) {
	m.ipcRequests.WithLabelValues(action, status).Inc()
	m.ipcDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordWorkerRestart implements Collector.
func (m *PrometheusCollector) RecordWorkerRestart(sid string) {
	m.workerRestarts.WithLabelValues(sid).Inc()
}
