package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/health"
	"github.com/storkeep/storkeep/pkg/storkeep/links"
)

// sampleReport builds a report exercising every section.
func sampleReport() *Report {
	return &Report{
		Command:     "status",
		GeneratedAt: time.Date(2026, 8, 23, 14, 30, 45, 0, time.UTC),
		Healthy:     false,
		Stages: []StageStatus{
			{Name: "prerequisites", Status: "ok"},
			{Name: "links", Status: "partial", Detail: "1 of 3 failed"},
			{Name: "smart", Status: "skipped"},
		},
		Links: []LinkStatus{
			{Path: "/srv/app/models", Target: "/srv/storage/models", State: "OK"},
			{Path: "/srv/app/cache", Target: "/srv/storage/cache", State: "BROKEN", Detail: "target missing"},
		},
		Disks: []DiskStatus{
			{
				Path: "/srv/storage", Mountpoint: "/srv", Filesystem: "ext4",
				TotalHuman: "100 GiB", UsedHuman: "87 GiB",
				UsedPercent: 87.3, InodePercent: 4.2,
				Level: "WARNING", InodeLevel: "OK",
			},
		},
		Smart: []SmartStatus{
			{Device: "/dev/sda", Healthy: true, Level: "OK"},
			{Device: "/dev/sdb", Level: "UNKNOWN", Detail: "smartctl not installed"},
		},
		Backup: &BackupStatus{
			Generation:  "data-20260823-020000",
			Status:      "completed",
			StartedAt:   time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC),
			Duration:    "42.5s",
			FilesCopied: 12,
			FilesLinked: 340,
			BytesCopied: 1 << 20,
			CopiedHuman: "1.0 MiB",
		},
		Generations: []GenerationStatus{
			{Generation: "data-20260822-020000", Status: "completed", CopiedHuman: "2.1 GiB"},
			{Generation: "data-20260823-020000", Status: "completed", CopiedHuman: "1.0 MiB", Latest: true},
		},
		Perf: &PerfStatus{
			Path: "/srv/storage", WriteMBps: 412.3, ReadMBps: 1024.8,
			LatencyMs: 0.84, TestedHuman: "64 MiB",
		},
		Warnings: []string{"disk usage warning on /srv/storage: 87.3%"},
		Errors:   []string{"link /srv/app/cache is BROKEN"},
	}
}

func TestRegistryKnowsAllFormats(t *testing.T) {
	available := Available()
	assert.Contains(t, available, "plain")
	assert.Contains(t, available, "json")
	assert.Contains(t, available, "yaml")
	assert.Contains(t, available, "pretty")
}

func TestRegistryRejectsUnknownFormat(t *testing.T) {
	_, err := Get("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown formatter")
}

func TestRegistryIsolatedInstance(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.Available())

	registry.Register("plain", func() Formatter { return &PlainFormatter{} })
	formatter, err := registry.Get("plain")
	require.NoError(t, err)
	assert.IsType(t, &PlainFormatter{}, formatter)
}

func TestPlainFormatterSections(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, sampleReport()))
	text := buf.String()

	assert.Contains(t, text, "status: degraded")
	assert.Contains(t, text, "STAGE")
	assert.Contains(t, text, "prerequisites")
	assert.Contains(t, text, "LINK")
	assert.Contains(t, text, "/srv/app/cache")
	assert.Contains(t, text, "BROKEN")
	assert.Contains(t, text, "87 GiB/100 GiB (87.3%)")
	assert.Contains(t, text, "/dev/sdb")
	assert.Contains(t, text, "smartctl not installed")
	assert.Contains(t, text, "last backup: data-20260823-020000 (completed)")
	assert.Contains(t, text, "GENERATION")
	assert.Contains(t, text, "data-20260823-020000 *")
	assert.Contains(t, text, "write 412.3 MB/s")
	assert.Contains(t, text, "warning: disk usage warning")
	assert.Contains(t, text, "error: link /srv/app/cache is BROKEN")
}

func TestPlainFormatterHealthyMinimal(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	report := &Report{Command: "links verify", Healthy: true, Links: []LinkStatus{
		{Path: "/srv/app/models", Target: "/srv/storage/models", State: "OK"},
	}}
	require.NoError(t, formatter.Format(&buf, report))

	text := buf.String()
	assert.Contains(t, text, "links verify: healthy")
	assert.NotContains(t, text, "STAGE")
	assert.NotContains(t, text, "GENERATION")
}

func TestJSONFormatterRoundTrip(t *testing.T) {
	formatter := &JSONFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, sampleReport()))

	var parsed Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))

	assert.Equal(t, "status", parsed.Command)
	assert.False(t, parsed.Healthy)
	assert.Len(t, parsed.Links, 2)
	assert.Equal(t, "BROKEN", parsed.Links[1].State)
	assert.Equal(t, 340, parsed.Backup.FilesLinked)
	assert.True(t, parsed.Generations[1].Latest)
}

func TestJSONFormatterOmitsEmptySections(t *testing.T) {
	formatter := &JSONFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, &Report{Command: "version", Healthy: true}))

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.NotContains(t, parsed, "stages")
	assert.NotContains(t, parsed, "generations")
	assert.NotContains(t, parsed, "backup")
}

func TestYAMLFormatterRoundTrip(t *testing.T) {
	formatter := &YAMLFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, sampleReport()))

	var parsed Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &parsed))

	assert.Equal(t, "status", parsed.Command)
	assert.Len(t, parsed.Disks, 1)
	assert.InDelta(t, 87.3, parsed.Disks[0].UsedPercent, 1e-9)
	assert.Equal(t, "UNKNOWN", parsed.Smart[1].Level)
}

func TestPrettyFormatterRendersAllSections(t *testing.T) {
	formatter := &PrettyFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, sampleReport()))
	text := buf.String()

	assert.Contains(t, text, "storkeep status")
	assert.Contains(t, text, "DEGRADED")
	assert.Contains(t, text, "Stages")
	assert.Contains(t, text, "Disk usage")
	assert.Contains(t, text, "SMART")
	assert.Contains(t, text, "Last backup")
	assert.Contains(t, text, "Generations")
	assert.Contains(t, text, "Throughput")
	assert.Contains(t, text, "/srv/app/models")
}

func TestPrettyFormatterHealthyBadge(t *testing.T) {
	formatter := &PrettyFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, &Report{Command: "status", Healthy: true}))
	assert.Contains(t, buf.String(), "HEALTHY")
}

func TestLinkStatusesConversion(t *testing.T) {
	statuses := LinkStatuses([]links.Entry{
		{Link: "/srv/app/models", Target: "/srv/storage/models", State: links.StateOK},
		{Link: "/srv/app/cache", Target: "/srv/storage/cache", State: links.StateWrongTarget, Detail: "/tmp/elsewhere"},
	})

	require.Len(t, statuses, 2)
	assert.Equal(t, "/srv/app/models", statuses[0].Path)
	assert.Equal(t, "OK", statuses[0].State)
	assert.Equal(t, "WRONG_TARGET", statuses[1].State)
	assert.Equal(t, "/tmp/elsewhere", statuses[1].Detail)
}

func TestDiskStatusesConversion(t *testing.T) {
	statuses := DiskStatuses([]health.UsageSample{
		{
			Path: "/srv/storage", TotalBytes: 100 << 30, UsedBytes: 50 << 30,
			UsedFraction: 0.5, InodeFraction: 0.03,
			Level: health.LevelOK, InodeLevel: health.LevelOK,
		},
	})

	require.Len(t, statuses, 1)
	assert.InDelta(t, 50.0, statuses[0].UsedPercent, 1e-9)
	assert.InDelta(t, 3.0, statuses[0].InodePercent, 1e-9)
	assert.Equal(t, "100 GiB", statuses[0].TotalHuman)
	assert.Equal(t, "50 GiB", statuses[0].UsedHuman)
}

func TestBackupStatusFromJob(t *testing.T) {
	assert.Nil(t, BackupStatusFrom(nil))

	started := time.Date(2026, 8, 23, 2, 0, 0, 0, time.UTC)
	job := &backup.Job{
		Generation:  "data-20260823-020000",
		Status:      backup.StatusCompleted,
		StartedAt:   started,
		CompletedAt: started.Add(30 * time.Second),
		FilesCopied: 3,
		FilesLinked: 97,
		BytesCopied: 4096,
	}

	status := BackupStatusFrom(job)
	require.NotNil(t, status)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, "30s", status.Duration)
	assert.Equal(t, "4.0 KiB", status.CopiedHuman)
}

func TestGenerationStatusesMarksLatest(t *testing.T) {
	jobs := []*backup.Job{
		{Generation: "data-20260823-020000", Status: backup.StatusCompleted},
		{Generation: "data-20260822-020000", Status: backup.StatusCompleted},
	}

	statuses := GenerationStatuses(jobs, "data-20260823-020000")
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Latest)
	assert.False(t, statuses[1].Latest)
}

func TestFromHealthReport(t *testing.T) {
	healthReport := &health.Report{
		GeneratedAt: time.Now(),
		Healthy:     false,
		Disks: []health.UsageSample{
			{Path: "/srv/storage", Level: health.LevelCritical, UsedFraction: 0.96},
		},
		Links: []links.Entry{
			{Link: "/srv/app/models", Target: "/srv/storage/models", State: links.StateOK},
		},
		Errors: []string{"disk usage critical on /srv/storage: 96.0%"},
	}

	report := FromHealthReport("monitor status", healthReport)
	assert.Equal(t, "monitor status", report.Command)
	assert.False(t, report.Healthy)
	require.Len(t, report.Disks, 1)
	assert.Equal(t, "CRITICAL", report.Disks[0].Level)
	require.Len(t, report.Links, 1)
	assert.Equal(t, report.Errors, healthReport.Errors)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "", formatDuration(0))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1m30s", formatDuration(90*time.Second))
}

func TestPlainOutputIsPipeSafe(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	require.NoError(t, formatter.Format(&buf, sampleReport()))
	assert.False(t, strings.Contains(buf.String(), "\x1b["), "plain output must not contain ANSI escapes")
}
