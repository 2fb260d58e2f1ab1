package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/storkeep/storkeep/pkg/storkeep/links"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
	"github.com/storkeep/storkeep/pkg/storkeep/output"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "Check and create the storage directory layout",
	Long: `Work with the storage roots and link target directories.

Check verifies the roots exist and are writable without changing
anything. Create makes the roots and every link target directory with
the configured mode.`,
}

var dirsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify storage prerequisites",
	Long: `Check that each storage root (or its parent, for roots that do not
exist yet) is a writable directory. Mountpoints that are configured but
not mounted fail this check rather than being silently created.`,
	RunE: runDirsCheck,
}

var dirsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the storage directory layout",
	Long: `Create the three storage roots and every link target directory with
the configured directory mode. Existing directories are left as they
are; paths occupied by files are reported and never replaced.`,
	RunE: runDirsCreate,
}

func init() {
	dirsCmd.AddCommand(dirsCheckCmd)
	dirsCmd.AddCommand(dirsCreateCmd)
	rootCmd.AddCommand(dirsCmd)
}

func runDirsCheck(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	mgr := links.New(cfg, logging.Get("links"))
	prereq := mgr.VerifyPrereqs(cmd.Context())

	report := &output.Report{
		Command:     "dirs check",
		GeneratedAt: time.Now(),
		Healthy:     prereq.OK,
		Errors:      prereq.Problems(),
	}

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}
	if !prereq.OK {
		return errPartial
	}
	printInfo("%d paths checked, all writable", len(prereq.Checks))
	return nil
}

func runDirsCreate(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	mgr := links.New(cfg, logging.Get("links"))
	result, err := mgr.CreateDirs(cmd.Context())
	if err != nil {
		return err
	}

	report := &output.Report{
		Command:     "dirs create",
		GeneratedAt: time.Now(),
		Healthy:     !result.Partial(),
	}
	for _, failure := range result.Failed {
		report.Errors = append(report.Errors, failure.Reason)
	}

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}
	if result.Partial() {
		return errPartial
	}
	printInfo("%d directories created, %d already existed", len(result.Created), len(result.Existing))
	return nil
}
