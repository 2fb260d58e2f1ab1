// Package runner orchestrates the setup and status workflows across the
// link manager, health monitor, backup store, and report history.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/config"
	"github.com/storkeep/storkeep/pkg/storkeep/health"
	"github.com/storkeep/storkeep/pkg/storkeep/links"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
)

// Status classifies a stage outcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Stage names in execution order.
const (
	StagePrereqs = "prerequisites"
	StageDirs    = "directories"
	StageLinks   = "links"
	StageVerify  = "verify"
	StageDisk    = "disk"
	StageSmart   = "smart"
	StageEnv     = "environment"
)

// StageResult records the outcome of one setup stage.
type StageResult struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
	Err    error  `json:"-"`
}

// SetupReport aggregates the stage results of one Setup invocation.
type SetupReport struct {
	StartedAt time.Time     `json:"started_at"`
	Stages    []StageResult `json:"stages"`

	// Links is the final observed state after creation and repair.
	Links []links.Entry `json:"links,omitempty"`

	// Fatal is set when a stage aborted the sequence.
	Fatal bool `json:"fatal"`
}

// Partial reports whether setup completed with degraded stages.
func (r *SetupReport) Partial() bool {
	if r.Fatal {
		return false
	}
	for _, stage := range r.Stages {
		if stage.Status == StatusPartial || stage.Status == StatusFailed {
			return true
		}
	}
	return false
}

// OK reports full success.
func (r *SetupReport) OK() bool {
	return !r.Fatal && !r.Partial()
}

func (r *SetupReport) add(stage StageResult) {
	r.Stages = append(r.Stages, stage)
}

func (r *SetupReport) skipRemaining(names ...string) {
	for _, name := range names {
		r.add(StageResult{Name: name, Status: StatusSkipped})
	}
}

// StatusReport is the read-only system overview.
type StatusReport struct {
	// Health is the full monitor report.
	Health *health.Report `json:"health"`

	// Generations lists stored backup metadata, newest first.
	Generations []*backup.Metadata `json:"generations,omitempty"`

	// LatestGeneration is the name the latest pointer holds.
	LatestGeneration string `json:"latest_generation,omitempty"`

	// PreviousReport is the timestamp of the last stored health report,
	// zero when history is disabled or empty.
	PreviousReport time.Time `json:"previous_report,omitzero"`
}

// LinkService is the slice of the link manager the runner drives.
type LinkService interface {
	VerifyPrereqs(ctx context.Context) *links.PrereqReport
	CreateDirs(ctx context.Context) (*links.DirReport, error)
	Create(ctx context.Context) (*links.CreateResult, error)
	Verify(ctx context.Context) []links.Entry
	Repair(ctx context.Context) (*links.RepairResult, error)
}

// HealthService is the slice of the monitor the runner drives.
type HealthService interface {
	CheckDiskUsage(ctx context.Context, paths []string) []health.UsageSample
	CheckSmart(ctx context.Context) []health.SmartSample
	BuildReport(ctx context.Context) *health.Report
}

// BackupService provides read access to stored generations.
type BackupService interface {
	List() ([]*backup.Metadata, error)
	Latest() (string, error)
}

// HistoryService provides read access to stored health reports.
type HistoryService interface {
	Latest() (*health.Report, error)
}

// Runner coordinates the component services for the setup and status
// commands. Backups and history may be nil; the corresponding report
// sections stay empty.
type Runner struct {
	cfg     *config.Config
	links   LinkService
	monitor HealthService
	backups BackupService
	history HistoryService
	log     *logging.Logger

	envFile   string
	skipSmart bool
}

// New creates a Runner over the given services.
func New(cfg *config.Config, linkSvc LinkService, monitor HealthService,
	backups BackupService, history HistoryService, logger *logging.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		links:   linkSvc,
		monitor: monitor,
		backups: backups,
		history: history,
		log:     logger,
	}
}

// WithEnvFile configures the environment script stage.
func (r *Runner) WithEnvFile(path string) *Runner {
	r.envFile = path
	return r
}

// WithSkipSmart disables the SMART stage for this run.
func (r *Runner) WithSkipSmart() *Runner {
	r.skipSmart = true
	return r
}

// Setup runs the full provisioning sequence: prerequisite checks, directory
// creation, symlink creation, verification with a single repair attempt,
// disk and SMART checks, and the optional environment script. A prerequisite
// failure or an operational error aborts the sequence and marks the report
// fatal; per-entry failures degrade the stage and continue.
func (r *Runner) Setup(ctx context.Context) *SetupReport {
	report := &SetupReport{StartedAt: time.Now()}
	r.log.Info("starting setup",
		"app_root", r.cfg.AppRoot,
		"storage_root", r.cfg.StorageRoot,
		"backup_root", r.cfg.BackupRoot)

	if !r.runPrereqs(ctx, report) {
		report.skipRemaining(StageDirs, StageLinks, StageVerify, StageDisk, StageSmart, StageEnv)
		return report
	}
	if !r.runDirs(ctx, report) {
		report.skipRemaining(StageLinks, StageVerify, StageDisk, StageSmart, StageEnv)
		return report
	}
	if !r.runLinks(ctx, report) {
		report.skipRemaining(StageVerify, StageDisk, StageSmart, StageEnv)
		return report
	}
	if !r.runVerify(ctx, report) {
		report.skipRemaining(StageDisk, StageSmart, StageEnv)
		return report
	}
	r.runDisk(ctx, report)
	r.runSmart(ctx, report)
	r.runEnv(report)

	r.log.Info("setup finished", "fatal", report.Fatal, "partial", report.Partial())
	return report
}

func (r *Runner) runPrereqs(ctx context.Context, report *SetupReport) bool {
	prereq := r.links.VerifyPrereqs(ctx)
	if !prereq.OK {
		report.add(StageResult{
			Name:   StagePrereqs,
			Status: StatusFailed,
			Detail: strings.Join(prereq.Problems(), "; "),
		})
		report.Fatal = true
		r.log.Error("prerequisite check failed", "problems", prereq.Problems())
		return false
	}
	report.add(StageResult{
		Name:   StagePrereqs,
		Status: StatusOK,
		Detail: fmt.Sprintf("%d paths writable", len(prereq.Checks)),
	})
	return true
}

func (r *Runner) runDirs(ctx context.Context, report *SetupReport) bool {
	dirs, err := r.links.CreateDirs(ctx)
	if err != nil {
		report.add(StageResult{Name: StageDirs, Status: StatusFailed, Detail: err.Error(), Err: err})
		report.Fatal = true
		r.log.Error("directory creation aborted", "error", err)
		return false
	}

	detail := fmt.Sprintf("%d created, %d existing", len(dirs.Created), len(dirs.Existing))
	status := StatusOK
	if dirs.Partial() {
		status = StatusPartial
		detail += fmt.Sprintf(", %d failed", len(dirs.Failed))
	}
	report.add(StageResult{Name: StageDirs, Status: status, Detail: detail})
	return true
}

func (r *Runner) runLinks(ctx context.Context, report *SetupReport) bool {
	created, err := r.links.Create(ctx)
	if err != nil {
		report.add(StageResult{Name: StageLinks, Status: StatusFailed, Detail: err.Error(), Err: err})
		report.Fatal = true
		r.log.Error("link creation aborted", "error", err)
		return false
	}

	detail := fmt.Sprintf("%d created, %d already correct", len(created.Created), len(created.Skipped))
	status := StatusOK
	if created.Partial() {
		status = StatusPartial
		detail += fmt.Sprintf(", %d failed", len(created.Failed))
	}
	report.add(StageResult{Name: StageLinks, Status: status, Detail: detail})
	return true
}

func (r *Runner) runVerify(ctx context.Context, report *SetupReport) bool {
	entries := r.links.Verify(ctx)
	if countDegraded(entries) == 0 {
		report.add(StageResult{
			Name:   StageVerify,
			Status: StatusOK,
			Detail: fmt.Sprintf("%d links healthy", len(entries)),
		})
		report.Links = entries
		return true
	}

	// One repair attempt, then re-verify. Whatever is still degraded gets
	// reported, not retried.
	repaired, err := r.links.Repair(ctx)
	if err != nil {
		report.add(StageResult{Name: StageVerify, Status: StatusFailed, Detail: err.Error(), Err: err})
		report.Fatal = true
		r.log.Error("link repair aborted", "error", err)
		return false
	}

	entries = r.links.Verify(ctx)
	report.Links = entries
	remaining := countDegraded(entries)

	detail := fmt.Sprintf("repaired %d links", len(repaired.Repaired))
	status := StatusOK
	if remaining > 0 {
		status = StatusPartial
		detail += fmt.Sprintf(", %d still degraded", remaining)
	}
	report.add(StageResult{Name: StageVerify, Status: status, Detail: detail})
	return true
}

func (r *Runner) runDisk(ctx context.Context, report *SetupReport) {
	samples := r.monitor.CheckDiskUsage(ctx, r.cfg.MonitorPaths())

	status := StatusOK
	var findings []string
	for _, sample := range samples {
		switch sample.Level {
		case health.LevelCritical:
			status = StatusFailed
			findings = append(findings, fmt.Sprintf("%s at %.1f%%", sample.Path, sample.UsedFraction*100))
		case health.LevelWarning, health.LevelUnknown:
			if status == StatusOK {
				status = StatusPartial
			}
			findings = append(findings, fmt.Sprintf("%s %s", sample.Path, strings.ToLower(string(sample.Level))))
		}
	}

	detail := fmt.Sprintf("%d filesystems sampled", len(samples))
	if len(findings) > 0 {
		detail = strings.Join(findings, "; ")
	}
	report.add(StageResult{Name: StageDisk, Status: status, Detail: detail})
}

func (r *Runner) runSmart(ctx context.Context, report *SetupReport) {
	if r.skipSmart || !r.cfg.Monitor.EnableSmart {
		report.add(StageResult{Name: StageSmart, Status: StatusSkipped, Detail: "SMART probing disabled"})
		return
	}

	samples := r.monitor.CheckSmart(ctx)

	status := StatusOK
	var findings []string
	for _, sample := range samples {
		switch sample.Level {
		case health.LevelCritical:
			status = StatusFailed
			findings = append(findings, fmt.Sprintf("%s reports failure", sample.Device))
		case health.LevelUnknown:
			if status == StatusOK {
				status = StatusPartial
			}
			findings = append(findings, fmt.Sprintf("%s unknown: %s", sample.Device, sample.Detail))
		}
	}

	detail := fmt.Sprintf("%d devices healthy", len(samples))
	if len(findings) > 0 {
		detail = strings.Join(findings, "; ")
	}
	report.add(StageResult{Name: StageSmart, Status: status, Detail: detail})
}

func (r *Runner) runEnv(report *SetupReport) {
	if r.envFile == "" {
		report.add(StageResult{Name: StageEnv, Status: StatusSkipped})
		return
	}
	if err := r.WriteEnvScript(r.envFile); err != nil {
		report.add(StageResult{Name: StageEnv, Status: StatusFailed, Detail: err.Error(), Err: err})
		r.log.Error("environment script failed", "path", r.envFile, "error", err)
		return
	}
	report.add(StageResult{Name: StageEnv, Status: StatusOK, Detail: r.envFile})
}

// Status assembles the read-only system overview. Nothing on this path
// mutates the filesystem.
func (r *Runner) Status(ctx context.Context) *StatusReport {
	status := &StatusReport{Health: r.monitor.BuildReport(ctx)}

	if r.backups != nil {
		metas, err := r.backups.List()
		if err != nil {
			r.log.Warn("listing backup generations failed", "error", err)
		} else {
			status.Generations = metas
		}
		latest, err := r.backups.Latest()
		if err != nil {
			r.log.Warn("reading latest pointer failed", "error", err)
		} else {
			status.LatestGeneration = latest
		}
	}

	if r.history != nil {
		previous, err := r.history.Latest()
		if err != nil {
			r.log.Warn("reading report history failed", "error", err)
		} else if previous != nil {
			status.PreviousReport = previous.GeneratedAt
		}
	}

	return status
}

func countDegraded(entries []links.Entry) int {
	degraded := 0
	for _, entry := range entries {
		if !entry.State.Healthy() {
			degraded++
		}
	}
	return degraded
}
