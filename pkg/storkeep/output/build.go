package output

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/health"
	"github.com/storkeep/storkeep/pkg/storkeep/links"
)

// LinkStatuses converts verify entries into display rows.
func LinkStatuses(entries []links.Entry) []LinkStatus {
	statuses := make([]LinkStatus, len(entries))
	for i, entry := range entries {
		statuses[i] = LinkStatus{
			Path:   entry.Link,
			Target: entry.Target,
			State:  string(entry.State),
			Detail: entry.Detail,
		}
	}
	return statuses
}

// DiskStatuses converts usage samples into display rows.
func DiskStatuses(samples []health.UsageSample) []DiskStatus {
	statuses := make([]DiskStatus, len(samples))
	for i, sample := range samples {
		statuses[i] = DiskStatus{
			Path:         sample.Path,
			Mountpoint:   sample.Mountpoint,
			Filesystem:   sample.Filesystem,
			TotalHuman:   humanize.IBytes(sample.TotalBytes),
			UsedHuman:    humanize.IBytes(sample.UsedBytes),
			UsedPercent:  sample.UsedFraction * 100,
			InodePercent: sample.InodeFraction * 100,
			Level:        string(sample.Level),
			InodeLevel:   string(sample.InodeLevel),
			Detail:       sample.Detail,
		}
	}
	return statuses
}

// SmartStatuses converts SMART samples into display rows.
func SmartStatuses(samples []health.SmartSample) []SmartStatus {
	statuses := make([]SmartStatus, len(samples))
	for i, sample := range samples {
		statuses[i] = SmartStatus{
			Device:  sample.Device,
			Healthy: sample.Healthy,
			Level:   string(sample.Level),
			Detail:  sample.Detail,
		}
	}
	return statuses
}

// BackupStatusFrom converts a job into a display row. Returns nil for nil
// jobs so callers can pass through store lookups directly.
func BackupStatusFrom(job *backup.Job) *BackupStatus {
	if job == nil {
		return nil
	}
	return &BackupStatus{
		Generation:  job.Generation,
		Status:      string(job.Status),
		StartedAt:   job.StartedAt,
		Duration:    formatDuration(job.Duration()),
		FilesCopied: job.FilesCopied,
		FilesLinked: job.FilesLinked,
		BytesCopied: job.BytesCopied,
		CopiedHuman: humanize.IBytes(uint64(job.BytesCopied)),
		Error:       job.Error,
	}
}

// GenerationStatuses converts a job listing into display rows. The latest
// generation name marks its row.
func GenerationStatuses(jobs []*backup.Job, latest string) []GenerationStatus {
	statuses := make([]GenerationStatus, len(jobs))
	for i, job := range jobs {
		statuses[i] = GenerationStatus{
			Generation:  job.Generation,
			Status:      string(job.Status),
			StartedAt:   job.StartedAt,
			FilesCopied: job.FilesCopied,
			FilesLinked: job.FilesLinked,
			CopiedHuman: humanize.IBytes(uint64(job.BytesCopied)),
			Latest:      latest != "" && job.Generation == latest,
		}
	}
	return statuses
}

// PerfStatusFrom converts a benchmark sample into a display row.
func PerfStatusFrom(sample *health.PerfSample) *PerfStatus {
	if sample == nil {
		return nil
	}
	return &PerfStatus{
		Path:        sample.Path,
		WriteMBps:   sample.WriteMBps,
		ReadMBps:    sample.ReadMBps,
		LatencyMs:   sample.LatencyMs,
		TestedHuman: humanize.IBytes(uint64(sample.BytesTested)),
	}
}

// FromHealthReport assembles a display report from a full health report.
func FromHealthReport(command string, r *health.Report) *Report {
	return &Report{
		Command:     command,
		GeneratedAt: r.GeneratedAt,
		Healthy:     r.Healthy,
		Links:       LinkStatuses(r.Links),
		Disks:       DiskStatuses(r.Disks),
		Smart:       SmartStatuses(r.Smart),
		Backup:      BackupStatusFrom(r.LastBackup),
		Warnings:    r.Warnings,
		Errors:      r.Errors,
	}
}

// formatDuration renders a duration rounded to sub-second precision.
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
