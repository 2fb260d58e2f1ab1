package health

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/storkeep/storkeep/pkg/storkeep/execx"
)

// Prober reads SMART health from block devices.
type Prober interface {
	// Probe checks one device. The returned sample is always usable; the
	// error reports why a probe could not run (sample degraded to UNKNOWN).
	Probe(ctx context.Context, device string) (SmartSample, error)

	// Devices enumerates the block devices worth probing.
	Devices(ctx context.Context) ([]string, error)
}

// SmartctlProbe shells out to smartctl. A missing binary or a failed
// invocation degrades the sample to LevelUnknown, never LevelCritical: only
// an actual health verdict from the device may raise CRITICAL.
type SmartctlProbe struct {
	Exec execx.Executor

	// Timeout bounds one smartctl invocation; zero means no bound.
	Timeout time.Duration
}

// Probe implements Prober. The verdict comes from the output text, not the
// exit code: smartctl exits nonzero for a failing disk while still printing
// the assessment.
func (p *SmartctlProbe) Probe(ctx context.Context, device string) (SmartSample, error) {
	sample := SmartSample{Device: device, CheckedAt: time.Now().UTC()}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	out, err := p.Exec.Run(ctx, "smartctl", "-H", device)
	text := string(out)

	switch {
	case strings.Contains(text, "PASSED"):
		sample.Healthy = true
		sample.Level = LevelOK
		return sample, nil

	case strings.Contains(text, "FAILED"):
		sample.Level = LevelCritical
		sample.Detail = assessmentLine(text)
		return sample, nil

	case err != nil:
		sample.Level = LevelUnknown
		if execx.IsNotFound(err) {
			sample.Detail = "smartctl not installed"
		} else {
			sample.Detail = err.Error()
		}
		return sample, err

	default:
		sample.Level = LevelUnknown
		sample.Detail = "unrecognized smartctl output"
		return sample, nil
	}
}

// assessmentLine extracts the overall-health line from smartctl output.
func assessmentLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "overall-health") || strings.Contains(line, "Health Status") {
			return strings.TrimSpace(line)
		}
	}
	return "SMART health check failed"
}

// Devices implements Prober: NVMe namespaces and SATA disks under /dev.
func (p *SmartctlProbe) Devices(_ context.Context) ([]string, error) {
	var devices []string
	for _, pattern := range []string{"/dev/nvme*n1", "/dev/sd?"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		devices = append(devices, matches...)
	}
	sort.Strings(devices)
	return devices, nil
}

// FakeProber is a func-field test double.
type FakeProber struct {
	ProbeFunc   func(ctx context.Context, device string) (SmartSample, error)
	DevicesFunc func(ctx context.Context) ([]string, error)

	// Probed records every device passed to Probe.
	Probed []string
}

// Probe implements Prober.
func (f *FakeProber) Probe(ctx context.Context, device string) (SmartSample, error) {
	f.Probed = append(f.Probed, device)
	if f.ProbeFunc != nil {
		return f.ProbeFunc(ctx, device)
	}
	return SmartSample{Device: device, Healthy: true, Level: LevelOK, CheckedAt: time.Now().UTC()}, nil
}

// Devices implements Prober.
func (f *FakeProber) Devices(ctx context.Context) ([]string, error) {
	if f.DevicesFunc != nil {
		return f.DevicesFunc(ctx)
	}
	return nil, nil
}
