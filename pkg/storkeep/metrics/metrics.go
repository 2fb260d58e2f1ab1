// Package metrics exposes Prometheus collectors for monitor and backup
// activity, plus an optional HTTP endpoint to scrape them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/health"
)

var (
	// DiskUsageRatio is the used fraction of each monitored filesystem.
	DiskUsageRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storkeep_disk_usage_ratio",
			Help: "Used fraction of the filesystem backing each monitored path",
		},
		[]string{"path"},
	)

	// InodeUsageRatio is the used inode fraction of each monitored filesystem.
	InodeUsageRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storkeep_inode_usage_ratio",
			Help: "Used inode fraction of the filesystem backing each monitored path",
		},
		[]string{"path"},
	)

	// SmartHealthy reports the SMART verdict per device: 1 healthy, 0 failed,
	// -1 when the probe could not produce a verdict.
	SmartHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storkeep_smart_healthy",
			Help: "SMART verdict per device (1 healthy, 0 failed, -1 unknown)",
		},
		[]string{"device"},
	)

	// LinksBroken counts managed symlinks that are not in a healthy state.
	LinksBroken = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storkeep_links_broken",
			Help: "Number of managed symlinks in a degraded state",
		},
	)

	// MonitorIterations counts completed monitor passes.
	MonitorIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storkeep_monitor_iterations_total",
			Help: "Completed health check iterations",
		},
	)

	// MonitorErrors counts error conditions surfaced by monitor passes.
	MonitorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storkeep_monitor_errors_total",
			Help: "Error conditions reported by health check iterations",
		},
	)

	// BackupLastTimestamp is the completion time of the most recent backup.
	BackupLastTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storkeep_backup_last_timestamp_seconds",
			Help: "Unix time the most recent backup job finished",
		},
	)

	// BackupLastBytesCopied is the copied byte count of the most recent backup.
	BackupLastBytesCopied = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storkeep_backup_last_bytes_copied",
			Help: "Bytes physically copied by the most recent backup job",
		},
	)

	// BackupLastFilesLinked is the hard-link count of the most recent backup.
	BackupLastFilesLinked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storkeep_backup_last_files_linked",
			Help: "Files hard-linked from the previous generation by the most recent backup job",
		},
	)

	// BackupRuns counts backup jobs by terminal status.
	BackupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storkeep_backup_runs_total",
			Help: "Backup jobs by terminal status",
		},
		[]string{"status"},
	)
)

// Observe records one health report. Safe to call from a report sink.
func Observe(report *health.Report) {
	if report == nil {
		return
	}
	MonitorIterations.Inc()
	MonitorErrors.Add(float64(len(report.Errors)))

	for _, sample := range report.Disks {
		DiskUsageRatio.WithLabelValues(sample.Path).Set(sample.UsedFraction)
		InodeUsageRatio.WithLabelValues(sample.Path).Set(sample.InodeFraction)
	}
	for _, sample := range report.Smart {
		SmartHealthy.WithLabelValues(sample.Device).Set(smartValue(sample))
	}

	broken := 0
	for _, entry := range report.Links {
		if !entry.State.Healthy() {
			broken++
		}
	}
	LinksBroken.Set(float64(broken))

	if report.LastBackup != nil {
		setBackupGauges(report.LastBackup)
	}
}

// ObserveBackup records a finished backup job. Call once per run; observing
// the same job again through Observe only refreshes gauges, not the run
// counter.
func ObserveBackup(job *backup.Job) {
	if job == nil {
		return
	}
	BackupRuns.WithLabelValues(string(job.Status)).Inc()
	setBackupGauges(job)
}

func setBackupGauges(job *backup.Job) {
	if !job.CompletedAt.IsZero() {
		BackupLastTimestamp.Set(float64(job.CompletedAt.Unix()))
	}
	BackupLastBytesCopied.Set(float64(job.BytesCopied))
	BackupLastFilesLinked.Set(float64(job.FilesLinked))
}

func smartValue(sample health.SmartSample) float64 {
	switch sample.Level {
	case health.LevelOK:
		return 1
	case health.LevelCritical:
		return 0
	default:
		return -1
	}
}

// Serve exposes /metrics on the given port until ctx is cancelled. A port of
// zero or less disables the endpoint.
func Serve(ctx context.Context, port int) error {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
