// Package output provides formatters for displaying storkeep results
// in various output formats (pretty, plain, json, yaml).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"
)

// StageStatus describes one orchestrator stage for display.
type StageStatus struct {
	// Name identifies the stage (e.g. "prerequisites", "links").
	Name string `json:"name" yaml:"name"`

	// Status is ok, partial, failed, or skipped.
	Status string `json:"status" yaml:"status"`

	// Detail carries a human-readable summary of what the stage did.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// LinkStatus describes one managed symlink for display.
type LinkStatus struct {
	// Path is the symlink location.
	Path string `json:"path" yaml:"path"`

	// Target is the configured destination.
	Target string `json:"target" yaml:"target"`

	// State is the verification state (OK, ABSENT, BROKEN, ...).
	State string `json:"state" yaml:"state"`

	// Detail explains degraded states.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DiskStatus describes filesystem usage for one monitored path.
type DiskStatus struct {
	// Path is the monitored path.
	Path string `json:"path" yaml:"path"`

	// Mountpoint is the filesystem the path lives on.
	Mountpoint string `json:"mountpoint,omitempty" yaml:"mountpoint,omitempty"`

	// Filesystem is the filesystem type (ext4, xfs, ...).
	Filesystem string `json:"filesystem,omitempty" yaml:"filesystem,omitempty"`

	// TotalHuman is the human-readable filesystem capacity.
	TotalHuman string `json:"total" yaml:"total"`

	// UsedHuman is the human-readable used space.
	UsedHuman string `json:"used" yaml:"used"`

	// UsedPercent is the used fraction expressed as a percentage.
	UsedPercent float64 `json:"used_percent" yaml:"used_percent"`

	// InodePercent is the used inode fraction expressed as a percentage.
	InodePercent float64 `json:"inode_percent" yaml:"inode_percent"`

	// Level is the space severity (OK, WARNING, CRITICAL, UNKNOWN).
	Level string `json:"level" yaml:"level"`

	// InodeLevel is the inode severity.
	InodeLevel string `json:"inode_level" yaml:"inode_level"`

	// Detail explains sampling failures.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// SmartStatus describes the SMART verdict for one device.
type SmartStatus struct {
	// Device is the block device path.
	Device string `json:"device" yaml:"device"`

	// Healthy reports whether the device passed its self-assessment.
	Healthy bool `json:"healthy" yaml:"healthy"`

	// Level is the severity derived from the verdict.
	Level string `json:"level" yaml:"level"`

	// Detail carries the raw verdict line or probe failure.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// BackupStatus describes one backup job for display.
type BackupStatus struct {
	// Generation is the snapshot directory name.
	Generation string `json:"generation" yaml:"generation"`

	// Status is running, completed, or failed.
	Status string `json:"status" yaml:"status"`

	// StartedAt is when the job began.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// Duration is the elapsed run time, human formatted.
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// FilesCopied is the count of files physically copied.
	FilesCopied int `json:"files_copied" yaml:"files_copied"`

	// FilesLinked is the count of files hard-linked from the previous
	// generation.
	FilesLinked int `json:"files_linked" yaml:"files_linked"`

	// BytesCopied is the raw copied byte count.
	BytesCopied int64 `json:"bytes_copied" yaml:"bytes_copied"`

	// CopiedHuman is the human-readable copied size.
	CopiedHuman string `json:"copied" yaml:"copied"`

	// Error carries the failure cause for failed jobs.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// GenerationStatus describes one stored generation in a listing.
type GenerationStatus struct {
	// Generation is the snapshot directory name.
	Generation string `json:"generation" yaml:"generation"`

	// Status is the recorded job status.
	Status string `json:"status" yaml:"status"`

	// StartedAt is when the job began.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// FilesCopied is the count of files physically copied.
	FilesCopied int `json:"files_copied" yaml:"files_copied"`

	// FilesLinked is the count of hard-linked files.
	FilesLinked int `json:"files_linked" yaml:"files_linked"`

	// CopiedHuman is the human-readable copied size.
	CopiedHuman string `json:"copied" yaml:"copied"`

	// Latest marks the generation the latest pointer names.
	Latest bool `json:"latest" yaml:"latest"`
}

// PerfStatus describes a throughput benchmark result.
type PerfStatus struct {
	// Path is the directory that was benchmarked.
	Path string `json:"path" yaml:"path"`

	// WriteMBps is the sequential write throughput.
	WriteMBps float64 `json:"write_mbps" yaml:"write_mbps"`

	// ReadMBps is the sequential read throughput.
	ReadMBps float64 `json:"read_mbps" yaml:"read_mbps"`

	// LatencyMs is the small synchronous write latency.
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms"`

	// TestedHuman is the human-readable test file size.
	TestedHuman string `json:"tested" yaml:"tested"`
}

// Report contains the complete output data for formatting. Commands
// populate only the sections relevant to them; formatters skip empty
// sections.
type Report struct {
	// Command names the operation that produced the report.
	Command string `json:"command" yaml:"command"`

	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	// Healthy is the overall verdict.
	Healthy bool `json:"healthy" yaml:"healthy"`

	// Stages lists orchestrator stage results.
	Stages []StageStatus `json:"stages,omitempty" yaml:"stages,omitempty"`

	// Links lists managed symlink states.
	Links []LinkStatus `json:"links,omitempty" yaml:"links,omitempty"`

	// Disks lists filesystem usage samples.
	Disks []DiskStatus `json:"disks,omitempty" yaml:"disks,omitempty"`

	// Smart lists device SMART verdicts.
	Smart []SmartStatus `json:"smart,omitempty" yaml:"smart,omitempty"`

	// Backup is the most recent backup job, when known.
	Backup *BackupStatus `json:"backup,omitempty" yaml:"backup,omitempty"`

	// Perf is a throughput benchmark result.
	Perf *PerfStatus `json:"perf,omitempty" yaml:"perf,omitempty"`

	// Generations lists stored backup generations.
	Generations []GenerationStatus `json:"generations,omitempty" yaml:"generations,omitempty"`

	// Warnings contains non-fatal findings.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	// Errors contains findings that made the report unhealthy.
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
// It returns an error if the formatter is not found.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
