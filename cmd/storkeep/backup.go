package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/storkeep/storkeep/pkg/storkeep/backup"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
	"github.com/storkeep/storkeep/pkg/storkeep/metrics"
	"github.com/storkeep/storkeep/pkg/storkeep/output"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create and manage backup generations",
	Long: `Create and manage backup generations under backup_root.

Each run makes a timestamped snapshot directory. Files unchanged since
the previous generation are hard-linked instead of copied, so a
generation costs only the space of what changed. The latest pointer
always names the last generation that completed successfully.`,
}

var backupReplicator string

var backupCreateCmd = &cobra.Command{
	Use:   "create <source>",
	Short: "Snapshot a source directory into a new generation",
	Long: `Copy the source directory into a new timestamped generation.

With a previous generation present, unchanged files are hard-linked
from it. A failed run keeps its partial generation directory for
inspection and never moves the latest pointer.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupCreate,
}

var backupSampleRate float64

var backupVerifyCmd = &cobra.Command{
	Use:   "verify [generation]",
	Short: "Verify stored files against recorded checksums",
	Long: `Re-hash a random sample of a generation's files and compare against
the checksums recorded at backup time. Defaults to the latest
generation when none is named.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBackupVerify,
}

var backupPruneDryRun bool

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete generations past the retention window",
	Long: `Delete generations older than backup.retention_days. The generation
the latest pointer names is never deleted, however old it is. Use
--dry-run to see what would be removed.`,
	RunE: runBackupPrune,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored generations",
	Long:  `List stored backup generations, newest first.`,
	RunE:  runBackupList,
}

var backupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent backup job",
	Long:  `Show the job the latest pointer names, including its counters.`,
	RunE:  runBackupStatus,
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupReplicator, "replicator", "", "copy engine: auto, rsync, or native")
	backupVerifyCmd.Flags().Float64Var(&backupSampleRate, "sample-rate", 0, "fraction of files to verify (0 uses config)")
	backupPruneCmd.Flags().BoolVar(&backupPruneDryRun, "dry-run", false, "report what would be deleted without deleting")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupPruneCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupStatusCmd)
	rootCmd.AddCommand(backupCmd)
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if backupReplicator != "" {
		cfg.Backup.Replicator = backupReplicator
	}

	mgr, err := backup.NewDefault(cfg, logging.Get("backup"))
	if err != nil {
		return err
	}

	job, createErr := mgr.Create(cmd.Context(), args[0])
	if job != nil {
		metrics.ObserveBackup(job)
	}

	report := &output.Report{
		Command:     "backup create",
		GeneratedAt: time.Now(),
		Healthy:     createErr == nil,
		Backup:      output.BackupStatusFrom(job),
	}
	if createErr != nil {
		report.Errors = append(report.Errors, createErr.Error())
	}

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}
	if createErr != nil {
		return createErr
	}

	printInfo("generation %s: %d files copied, %d hard-linked", job.Generation, job.FilesCopied, job.FilesLinked)
	return nil
}

func runBackupVerify(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	generation := ""
	if len(args) > 0 {
		generation = args[0]
	}

	mgr, err := backup.NewDefault(cfg, logging.Get("backup"))
	if err != nil {
		return err
	}

	result, err := mgr.Verify(cmd.Context(), generation, backupSampleRate)
	if err != nil {
		return err
	}

	report := &output.Report{
		Command:     "backup verify",
		GeneratedAt: time.Now(),
		Healthy:     result.OK(),
	}
	for _, failure := range result.Failures {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", failure.Path, failure.Reason))
	}

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}

	printInfo("generation %s: %d sampled, %d verified, %d mismatched, %d missing",
		result.Generation, result.Sampled, result.Verified, result.Mismatched, result.Missing)
	if !result.OK() {
		return errPartial
	}
	return nil
}

func runBackupPrune(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	mgr, err := backup.NewDefault(cfg, logging.Get("backup"))
	if err != nil {
		return err
	}

	result, err := mgr.ApplyRetention(cmd.Context(), backupPruneDryRun)
	if err != nil {
		return err
	}

	verb := "deleted"
	if result.DryRun {
		verb = "would delete"
	}

	report := &output.Report{
		Command:     "backup prune",
		GeneratedAt: time.Now(),
		Healthy:     true,
	}
	for _, name := range result.Deleted {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s %s", verb, name))
	}
	if result.SkippedLatest != "" {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("kept %s past retention: the latest pointer names it", result.SkippedLatest))
	}

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}
	printInfo("%s %d generations, kept %d", verb, len(result.Deleted), len(result.Kept))
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	mgr, err := backup.NewDefault(cfg, logging.Get("backup"))
	if err != nil {
		return err
	}

	metas, err := mgr.List()
	if err != nil {
		return err
	}
	latest, err := mgr.Latest()
	if err != nil {
		return err
	}

	if len(metas) == 0 {
		printInfo("no backup generations")
		return nil
	}

	jobs := make([]*backup.Job, len(metas))
	for i := range metas {
		jobs[i] = &metas[i].Job
	}

	report := &output.Report{
		Command:     "backup list",
		GeneratedAt: time.Now(),
		Healthy:     true,
		Generations: output.GenerationStatuses(jobs, latest),
	}
	return printReport(cfg.Output, report)
}

func runBackupStatus(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	mgr, err := backup.NewDefault(cfg, logging.Get("backup"))
	if err != nil {
		return err
	}

	job, err := mgr.LastJob()
	if err != nil {
		return err
	}
	if job == nil {
		printInfo("no completed backups")
		return nil
	}

	report := &output.Report{
		Command:     "backup status",
		GeneratedAt: time.Now(),
		Healthy:     job.Status == backup.StatusCompleted,
		Backup:      output.BackupStatusFrom(job),
	}
	if job.Error != "" {
		report.Errors = append(report.Errors, job.Error)
	}
	return printReport(cfg.Output, report)
}
