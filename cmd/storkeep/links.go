package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/storkeep/storkeep/pkg/storkeep/links"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
	"github.com/storkeep/storkeep/pkg/storkeep/output"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage storage symlinks",
	Long: `Manage the symlinks between the application tree and versioned storage.

Each configured pair maps a stable path under app_root to a directory
under storage_root. Create makes the links, verify classifies them
without touching anything, and repair recreates degraded ones.`,
}

var linksForce bool

var linksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create configured symlinks",
	Long: `Create every configured symlink.

Links that already point at the right target are skipped. Paths occupied
by something else fail unless --force is given, in which case the
obstruction is replaced. Directories are never removed recursively.`,
	RunE: runLinksCreate,
}

var linksVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Classify every managed symlink",
	Long: `Check each configured symlink and report its state: OK, ABSENT,
BROKEN, WRONG_TARGET, or MISSING_TARGET. Nothing is modified.`,
	RunE: runLinksVerify,
}

var linksRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Recreate degraded symlinks",
	Long: `Verify all links, then recreate the degraded ones. Healthy links are
never touched. Links whose target no longer exists are refused while
links.verify_targets is set.`,
	RunE: runLinksRepair,
}

func init() {
	linksCreateCmd.Flags().BoolVar(&linksForce, "force", false, "replace paths occupied by wrong links or files")

	linksCmd.AddCommand(linksCreateCmd)
	linksCmd.AddCommand(linksVerifyCmd)
	linksCmd.AddCommand(linksRepairCmd)
	rootCmd.AddCommand(linksCmd)
}

func runLinksCreate(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	if linksForce {
		cfg.Links.ForceRecreate = true
	}

	mgr := links.New(cfg, logging.Get("links"))
	result, err := mgr.Create(cmd.Context())
	if err != nil {
		return err
	}

	entries := make([]links.Entry, 0, len(result.Created)+len(result.Skipped)+len(result.Failed))
	entries = append(entries, result.Created...)
	entries = append(entries, result.Skipped...)
	for _, failure := range result.Failed {
		entries = append(entries, failure.Entry)
	}

	report := &output.Report{
		Command:     "links create",
		GeneratedAt: time.Now(),
		Healthy:     !result.Partial(),
		Links:       output.LinkStatuses(entries),
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
	printInfo("%d links created, %d already correct", len(result.Created), len(result.Skipped))
	return nil
}

func runLinksVerify(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	mgr := links.New(cfg, logging.Get("links"))
	entries := mgr.Verify(cmd.Context())

	healthy := true
	report := &output.Report{
		Command:     "links verify",
		GeneratedAt: time.Now(),
		Links:       output.LinkStatuses(entries),
	}
	for _, entry := range entries {
		if !entry.State.Healthy() {
			healthy = false
			report.Errors = append(report.Errors, "link "+entry.Link+" is "+string(entry.State))
		}
	}
	report.Healthy = healthy

	if err := printReport(cfg.Output, report); err != nil {
		return err
	}
	if !healthy {
		return errPartial
	}
	return nil
}

func runLinksRepair(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}

	mgr := links.New(cfg, logging.Get("links"))
	result, err := mgr.Repair(cmd.Context())
	if err != nil {
		return err
	}

	entries := make([]links.Entry, 0, len(result.Repaired)+len(result.Healthy)+len(result.Failed))
	entries = append(entries, result.Repaired...)
	entries = append(entries, result.Healthy...)
	for _, failure := range result.Failed {
		entries = append(entries, failure.Entry)
	}

	report := &output.Report{
		Command:     "links repair",
		GeneratedAt: time.Now(),
		Healthy:     !result.Partial(),
		Links:       output.LinkStatuses(entries),
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
	printInfo("%d links repaired, %d already healthy", len(result.Repaired), len(result.Healthy))
	return nil
}
