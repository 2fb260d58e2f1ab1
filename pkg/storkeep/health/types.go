package health

import (
	"time"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/links"
)

// Level classifies a sample against the configured thresholds.
type Level string

// Severity levels. Unknown means the check could not run, which is
// deliberately distinct from a failing check.
const (
	LevelOK       Level = "OK"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
	LevelUnknown  Level = "UNKNOWN"
)

// UsageSample is one filesystem's capacity reading.
type UsageSample struct {
	Path       string `json:"path"`
	Mountpoint string `json:"mountpoint,omitempty"`
	Filesystem string `json:"filesystem,omitempty"`

	TotalBytes   uint64  `json:"total_bytes"`
	UsedBytes    uint64  `json:"used_bytes"`
	UsedFraction float64 `json:"used_fraction"`

	InodesTotal   uint64  `json:"inodes_total"`
	InodesUsed    uint64  `json:"inodes_used"`
	InodeFraction float64 `json:"inode_fraction"`

	Level      Level     `json:"level"`
	InodeLevel Level     `json:"inode_level"`
	CheckedAt  time.Time `json:"checked_at"`

	// Detail carries the error message when the path could not be sampled.
	Detail string `json:"detail,omitempty"`
}

// SmartSample is one block device's SMART health reading.
type SmartSample struct {
	Device    string    `json:"device"`
	Healthy   bool      `json:"healthy"`
	Level     Level     `json:"level"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// PerfSample is one throughput benchmark result.
type PerfSample struct {
	Path        string  `json:"path"`
	WriteMBps   float64 `json:"write_mbps"`
	ReadMBps    float64 `json:"read_mbps"`
	LatencyMs   float64 `json:"latency_ms"`
	BytesTested int64   `json:"bytes_tested"`
}

// Report is one full health snapshot. Reports are produced fresh per
// invocation and never mutated afterwards; GeneratedAt is taken at iteration
// start so every section shares one "as of" time.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Disks       []UsageSample `json:"disks"`
	Smart       []SmartSample `json:"smart,omitempty"`
	Links       []links.Entry `json:"links"`
	LastBackup  *backup.Job   `json:"last_backup,omitempty"`

	// Healthy is false when anything is CRITICAL or a link is degraded.
	Healthy  bool     `json:"healthy"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// classifyUsage maps a used fraction onto the disk thresholds.
func classifyUsage(fraction, warning, critical float64) Level {
	switch {
	case fraction >= critical:
		return LevelCritical
	case fraction >= warning:
		return LevelWarning
	default:
		return LevelOK
	}
}

// classifyInodes maps an inode fraction onto the single inode threshold.
// Inode pressure only ever warns.
func classifyInodes(fraction, threshold float64) Level {
	if fraction >= threshold {
		return LevelWarning
	}
	return LevelOK
}
