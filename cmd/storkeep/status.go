package main

import (
	"github.com/spf13/cobra"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/history"
	"github.com/storkeep/storkeep/pkg/storkeep/links"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
	"github.com/storkeep/storkeep/pkg/storkeep/output"
	"github.com/storkeep/storkeep/pkg/storkeep/runner"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read-only overview of the whole system",
	Long: `Show link states, filesystem usage, SMART verdicts, the most recent
backup job, and the stored generations. Nothing is modified.

Exits 2 when anything is degraded, so the command works as a health
probe in scripts.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	log := logging.Get("runner")
	linkMgr := links.New(cfg, logging.Get("links"))
	monitor := buildMonitor(cfg)

	backupMgr, err := backup.NewDefault(cfg, logging.Get("backup"))
	if err != nil {
		return err
	}

	var archive runner.HistoryService
	if cfg.History.Enabled {
		store, err := history.Open(cfg.HistoryPath(), cfg.HistoryRetention())
		if err != nil {
			log.Warn("history store unavailable", "error", err)
		} else {
			defer store.Close()
			archive = store
		}
	}

	orch := runner.New(cfg, linkMgr, monitor, backupMgr, archive, log)
	status := orch.Status(cmd.Context())

	report := output.FromHealthReport("status", status.Health)
	if len(status.Generations) > 0 {
		jobs := make([]*backup.Job, len(status.Generations))
		for i := range status.Generations {
			jobs[i] = &status.Generations[i].Job
		}
		report.Generations = output.GenerationStatuses(jobs, status.LatestGeneration)
	}

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}
	if !status.PreviousReport.IsZero() {
		printInfo("previous stored report: %s", status.PreviousReport.Local().Format("2006-01-02 15:04:05"))
	}
	if !status.Health.Healthy {
		return errPartial
	}
	return nil
}
