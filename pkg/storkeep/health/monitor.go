// Package health samples disk capacity, inode pressure, SMART status, and
// symlink integrity into point-in-time reports, one-shot or as a continuous
// loop.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/config"
	"github.com/storkeep/storkeep/pkg/storkeep/links"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
)

// LinkVerifier is the narrow slice of links.Manager the monitor needs.
type LinkVerifier interface {
	Verify(ctx context.Context) []links.Entry
}

// JobSource supplies the most recent backup job for reports.
type JobSource interface {
	LastJob() (*backup.Job, error)
}

// ReportSink receives each report produced by the continuous loop. The
// history store implements it; sink failures are logged, never fatal.
type ReportSink interface {
	Append(r *Report) error
}

// SinkFunc adapts a function to ReportSink.
type SinkFunc func(r *Report) error

// Append implements ReportSink.
func (f SinkFunc) Append(r *Report) error { return f(r) }

// debounceWindow coalesces bursts of link-directory events into one early
// monitor iteration.
const debounceWindow = 500 * time.Millisecond

// Monitor produces health reports for the configured storage layout.
type Monitor struct {
	cfg      *config.Config
	verifier LinkVerifier
	prober   Prober
	jobs     JobSource
	sinks    []ReportSink
	log      *logging.Logger

	mu         sync.Mutex
	smartCache []SmartSample
	smartTaken time.Time
}

// New creates a Monitor. The last-backup record is read from the backup
// root's metadata store; override with WithJobSource when injecting a fake.
func New(cfg *config.Config, verifier LinkVerifier, prober Prober, logger *logging.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		verifier: verifier,
		prober:   prober,
		jobs:     backup.NewStore(cfg.BackupRoot),
		log:      logger,
	}
}

// WithJobSource replaces where the report's last-backup record comes from.
func (m *Monitor) WithJobSource(src JobSource) *Monitor {
	m.jobs = src
	return m
}

// WithSink registers a sink run after every continuous-loop iteration.
func (m *Monitor) WithSink(sink ReportSink) *Monitor {
	m.sinks = append(m.sinks, sink)
	return m
}

// CheckDiskUsage samples capacity and inode usage for each path. An
// unstatable path yields an UNKNOWN sample; the loop never aborts.
func (m *Monitor) CheckDiskUsage(ctx context.Context, paths []string) []UsageSample {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		m.log.Debug("partition enumeration failed", "error", err)
	}

	samples := make([]UsageSample, 0, len(paths))
	for _, path := range paths {
		sample := UsageSample{Path: path, CheckedAt: time.Now().UTC()}

		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			sample.Level = LevelUnknown
			sample.InodeLevel = LevelUnknown
			sample.Detail = err.Error()
			m.log.Warn("disk usage unavailable", "path", path, "error", err)
			samples = append(samples, sample)
			continue
		}

		sample.Filesystem = usage.Fstype
		sample.Mountpoint = mountpointFor(parts, path)
		sample.TotalBytes = usage.Total
		sample.UsedBytes = usage.Used
		sample.UsedFraction = usage.UsedPercent / 100
		sample.InodesTotal = usage.InodesTotal
		sample.InodesUsed = usage.InodesUsed
		sample.InodeFraction = usage.InodesUsedPercent / 100

		sample.Level = classifyUsage(sample.UsedFraction, m.cfg.Monitor.WarningThreshold, m.cfg.Monitor.CriticalThreshold)
		sample.InodeLevel = classifyInodes(sample.InodeFraction, m.cfg.Monitor.InodeThreshold)

		m.log.Debug("disk usage sampled",
			"path", path,
			"used_fraction", fmt.Sprintf("%.3f", sample.UsedFraction),
			"level", sample.Level)
		samples = append(samples, sample)
	}

	return samples
}

// mountpointFor finds the longest partition mountpoint containing path.
func mountpointFor(parts []disk.PartitionStat, path string) string {
	best := ""
	for _, p := range parts {
		mp := p.Mountpoint
		if path == mp || strings.HasPrefix(path, strings.TrimSuffix(mp, "/")+"/") {
			if len(mp) > len(best) {
				best = mp
			}
		}
	}
	return best
}

// CheckSmart probes SMART health on the configured or enumerated devices.
// Disabled SMART returns no samples.
func (m *Monitor) CheckSmart(ctx context.Context) []SmartSample {
	if !m.cfg.Monitor.EnableSmart {
		return nil
	}

	devices := m.cfg.Monitor.Devices
	if len(devices) == 0 {
		enumerated, err := m.prober.Devices(ctx)
		if err != nil {
			m.log.Warn("device enumeration failed", "error", err)
			return nil
		}
		devices = enumerated
	}

	samples := make([]SmartSample, 0, len(devices))
	for _, device := range devices {
		sample, err := m.prober.Probe(ctx, device)
		if err != nil {
			m.log.Warn("smart probe degraded", "device", device, "error", err)
		} else {
			m.log.Debug("smart probed", "device", device, "level", sample.Level)
		}
		samples = append(samples, sample)
	}

	return samples
}

// cachedSmart reuses the previous SMART samples while they are younger than
// monitor.smart_interval. Probes hit the hardware, so they run far less often
// than the capacity checks.
func (m *Monitor) cachedSmart(ctx context.Context) []SmartSample {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.smartCache != nil && time.Since(m.smartTaken) < m.cfg.Monitor.SmartInterval {
		return m.smartCache
	}

	samples := m.CheckSmart(ctx)
	m.smartCache = samples
	m.smartTaken = time.Now()
	return samples
}

// BuildReport assembles one full snapshot: usage, then SMART, then link
// verification, then the last backup record. The report's GeneratedAt is
// taken before any check runs.
func (m *Monitor) BuildReport(ctx context.Context) *Report {
	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Healthy:     true,
	}

	report.Disks = m.CheckDiskUsage(ctx, m.cfg.MonitorPaths())
	report.Smart = m.cachedSmart(ctx)
	report.Links = m.verifier.Verify(ctx)

	if m.jobs != nil {
		job, err := m.jobs.LastJob()
		if err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("last backup unavailable: %v", err))
		} else {
			report.LastBackup = job
		}
	}

	m.aggregate(report)
	return report
}

// aggregate derives Healthy, Warnings, and Errors from the samples.
func (m *Monitor) aggregate(r *Report) {
	for _, d := range r.Disks {
		switch d.Level {
		case LevelCritical:
			r.Healthy = false
			r.Errors = append(r.Errors, fmt.Sprintf("disk usage critical on %s: %.1f%%", d.Path, d.UsedFraction*100))
		case LevelWarning:
			r.Warnings = append(r.Warnings, fmt.Sprintf("disk usage high on %s: %.1f%%", d.Path, d.UsedFraction*100))
		case LevelUnknown:
			r.Warnings = append(r.Warnings, fmt.Sprintf("disk usage unknown on %s: %s", d.Path, d.Detail))
		}
		if d.InodeLevel == LevelWarning {
			r.Warnings = append(r.Warnings, fmt.Sprintf("inode usage high on %s: %.1f%%", d.Path, d.InodeFraction*100))
		}
	}

	for _, s := range r.Smart {
		switch s.Level {
		case LevelCritical:
			r.Healthy = false
			r.Errors = append(r.Errors, fmt.Sprintf("SMART failure on %s: %s", s.Device, s.Detail))
		case LevelUnknown:
			r.Warnings = append(r.Warnings, fmt.Sprintf("SMART unknown on %s: %s", s.Device, s.Detail))
		}
	}

	for _, e := range r.Links {
		if !e.State.Healthy() {
			r.Healthy = false
			r.Errors = append(r.Errors, fmt.Sprintf("link %s is %s", e.Link, e.State))
		}
	}

	if r.LastBackup != nil && r.LastBackup.Status == backup.StatusFailed {
		r.Warnings = append(r.Warnings, fmt.Sprintf("last backup %s failed: %s", r.LastBackup.Generation, r.LastBackup.Error))
	}
}

// Benchmark measures streaming write and read throughput plus small-write
// latency with a temporary file under path. The file is removed afterwards.
func (m *Monitor) Benchmark(ctx context.Context, path string, size int64) (*PerfSample, error) {
	if size <= 0 {
		return nil, fmt.Errorf("benchmark size must be positive, got %d", size)
	}

	f, err := os.CreateTemp(path, ".storkeep-bench-*")
	if err != nil {
		return nil, fmt.Errorf("creating benchmark file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	chunk := make([]byte, 1<<20)
	for i := range chunk {
		chunk[i] = byte(i * 31)
	}

	writeStart := time.Now()
	var written int64
	for written < size {
		if err := ctx.Err(); err != nil {
			f.Close()
			return nil, err
		}
		n := size - written
		if n > int64(len(chunk)) {
			n = int64(len(chunk))
		}
		if _, err := f.Write(chunk[:n]); err != nil {
			f.Close()
			return nil, fmt.Errorf("benchmark write: %w", err)
		}
		written += n
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("benchmark sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	writeSecs := time.Since(writeStart).Seconds()

	readStart := time.Now()
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			r.Close()
			return nil, err
		}
		if _, err := r.Read(chunk); err != nil {
			break
		}
	}
	r.Close()
	readSecs := time.Since(readStart).Seconds()

	latency, err := m.latencyProbe(path)
	if err != nil {
		return nil, err
	}

	mb := float64(size) / (1 << 20)
	sample := &PerfSample{
		Path:        path,
		WriteMBps:   mb / writeSecs,
		ReadMBps:    mb / readSecs,
		LatencyMs:   latency,
		BytesTested: size,
	}
	m.log.Info("benchmark finished",
		"path", path,
		"write_mbps", fmt.Sprintf("%.1f", sample.WriteMBps),
		"read_mbps", fmt.Sprintf("%.1f", sample.ReadMBps),
		"latency_ms", fmt.Sprintf("%.2f", sample.LatencyMs))
	return sample, nil
}

// latencyProbe times one small synced write.
func (m *Monitor) latencyProbe(path string) (float64, error) {
	f, err := os.CreateTemp(path, ".storkeep-lat-*")
	if err != nil {
		return 0, err
	}
	name := f.Name()
	defer os.Remove(name)

	start := time.Now()
	if _, err := f.Write(make([]byte, 4096)); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, err
	}
	elapsed := time.Since(start)
	return float64(elapsed.Microseconds()) / 1000, f.Close()
}

// RunContinuous loops until the context is cancelled: one iteration builds a
// report, feeds the sinks, and calls onReport. A link change between ticks
// triggers one early iteration; every failure is logged and the loop keeps
// going.
func (m *Monitor) RunContinuous(ctx context.Context, onReport func(*Report)) error {
	ticker := time.NewTicker(m.cfg.Monitor.Interval)
	defer ticker.Stop()

	wake := make(chan struct{}, 1)
	watcher := m.watchLinks(ctx, wake)
	if watcher != nil {
		defer watcher.Close()
	}

	m.log.Info("monitor started",
		"interval", m.cfg.Monitor.Interval,
		"smart_interval", m.cfg.Monitor.SmartInterval,
		"paths", len(m.cfg.MonitorPaths()))

	for {
		m.iterate(ctx, onReport)

		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
			m.log.Debug("link change detected, rechecking early")
		}
	}
}

// iterate runs one report cycle.
func (m *Monitor) iterate(ctx context.Context, onReport func(*Report)) {
	report := m.BuildReport(ctx)

	for _, sink := range m.sinks {
		if err := sink.Append(report); err != nil {
			m.log.Warn("report sink failed", "error", err)
		}
	}
	if onReport != nil {
		onReport(report)
	}

	m.log.Info("health report",
		"healthy", report.Healthy,
		"warnings", len(report.Warnings),
		"errors", len(report.Errors))
}

// watchLinks registers fsnotify watches on the parent directories of every
// configured link and debounces change events into the wake channel. Setup
// failure degrades to pure ticker polling.
func (m *Monitor) watchLinks(ctx context.Context, wake chan<- struct{}) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Warn("fsnotify unavailable, relying on interval polling", "error", err)
		return nil
	}

	linkPaths := make(map[string]bool)
	added := 0
	for _, dir := range linkParentDirs(m.cfg) {
		if err := watcher.Add(dir); err != nil {
			m.log.Debug("watch add failed", "dir", dir, "error", err)
			continue
		}
		added++
	}
	for _, pair := range m.cfg.LinkPairs() {
		linkPaths[pair.Link] = true
	}
	if added == 0 {
		watcher.Close()
		return nil
	}

	go func() {
		var timer *time.Timer
		var pending <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !linkPaths[event.Name] {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounceWindow)
					pending = timer.C
				} else {
					timer.Reset(debounceWindow)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.log.Debug("watch error", "error", err)

			case <-pending:
				timer = nil
				pending = nil
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()

	return watcher
}

// linkParentDirs returns the deduplicated parent directories of the
// configured links.
func linkParentDirs(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, pair := range cfg.LinkPairs() {
		dir := filepath.Dir(pair.Link)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)
	return dirs
}
