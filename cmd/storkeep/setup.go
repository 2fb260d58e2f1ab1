package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/storkeep/storkeep/pkg/storkeep/links"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
	"github.com/storkeep/storkeep/pkg/storkeep/output"
	"github.com/storkeep/storkeep/pkg/storkeep/runner"
)

var (
	setupEnvFile   string
	setupSkipSmart bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision the full storage layout",
	Long: `Run the complete provisioning sequence: verify prerequisites, create
the directory layout, create and verify symlinks (repairing degraded
ones once), check disk usage and SMART health, and optionally write a
shell environment file.

A prerequisite failure aborts the run. Per-entry failures are reported
and the remaining stages still run.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().StringVar(&setupEnvFile, "env-file", "", "write a shell file exporting the storage paths")
	setupCmd.Flags().BoolVar(&setupSkipSmart, "skip-smart", false, "skip the SMART device check")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	linkMgr := links.New(cfg, logging.Get("links"))
	monitor := buildMonitor(cfg)

	orch := runner.New(cfg, linkMgr, monitor, nil, nil, logging.Get("runner"))
	if setupEnvFile != "" {
		orch.WithEnvFile(setupEnvFile)
	}
	if setupSkipSmart {
		orch.WithSkipSmart()
	}

	setupReport := orch.Setup(cmd.Context())

	report := &output.Report{
		Command:     "setup",
		GeneratedAt: setupReport.StartedAt,
		Healthy:     setupReport.OK(),
		Stages:      stageStatuses(setupReport.Stages),
		Links:       output.LinkStatuses(setupReport.Links),
	}
	for _, stage := range setupReport.Stages {
		switch stage.Status {
		case runner.StatusFailed:
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", stage.Name, stage.Detail))
		case runner.StatusPartial:
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", stage.Name, stage.Detail))
		}
	}

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}

	if setupReport.Fatal {
		for _, stage := range setupReport.Stages {
			if stage.Err != nil {
				return fmt.Errorf("setup aborted at %s: %w", stage.Name, stage.Err)
			}
			if stage.Status == runner.StatusFailed {
				return fmt.Errorf("setup aborted at %s: %s", stage.Name, stage.Detail)
			}
		}
		return fmt.Errorf("setup aborted")
	}
	if setupReport.Partial() {
		return errPartial
	}
	printInfo("setup complete")
	return nil
}

// stageStatuses converts runner stage results into display rows.
func stageStatuses(stages []runner.StageResult) []output.StageStatus {
	statuses := make([]output.StageStatus, len(stages))
	for i, stage := range stages {
		statuses[i] = output.StageStatus{
			Name:   stage.Name,
			Status: string(stage.Status),
			Detail: stage.Detail,
		}
	}
	return statuses
}
