package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/storkeep/storkeep/pkg/storkeep/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage storkeep configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/storkeep/config.yaml (if set)
  2. ~/.config/storkeep/config.yaml

Environment variables can override config file settings using the
STORKEEP_ prefix:
  STORKEEP_STORAGE_ROOT=/mnt/fast/storage
  STORKEEP_MONITOR_WARNING_THRESHOLD=0.85
  STORKEEP_BACKUP_RETENTION_DAYS=14`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path, err := configFilePath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			fmt.Printf("Config file: %s\n\n", path)
		} else {
			fmt.Println("Config file: (using defaults, no file found)")
			fmt.Println()
		}
	}

	fmt.Println("Roots:")
	fmt.Printf("  app_root:       %s\n", cfg.AppRoot)
	fmt.Printf("  storage_root:   %s\n", cfg.StorageRoot)
	fmt.Printf("  backup_root:    %s\n", cfg.BackupRoot)

	fmt.Println("\nLinks:")
	fmt.Printf("  subdirs:                %v\n", cfg.Links.Subdirs)
	fmt.Printf("  explicit pairs:         %d\n", len(cfg.Links.Pairs))
	fmt.Printf("  force_recreate:         %t\n", cfg.Links.ForceRecreate)
	fmt.Printf("  verify_targets:         %t\n", cfg.Links.VerifyTargets)
	fmt.Printf("  create_missing_targets: %t\n", cfg.Links.CreateMissingTargets)
	fmt.Printf("  directory_mode:         %s\n", cfg.Links.DirectoryMode)

	fmt.Println("\nMonitor:")
	fmt.Printf("  warning_threshold:  %.2f\n", cfg.Monitor.WarningThreshold)
	fmt.Printf("  critical_threshold: %.2f\n", cfg.Monitor.CriticalThreshold)
	fmt.Printf("  inode_threshold:    %.2f\n", cfg.Monitor.InodeThreshold)
	fmt.Printf("  interval:           %s\n", cfg.Monitor.Interval)
	fmt.Printf("  enable_smart:       %t\n", cfg.Monitor.EnableSmart)
	fmt.Printf("  smart_interval:     %s\n", cfg.Monitor.SmartInterval)
	fmt.Printf("  metrics_port:       %d\n", cfg.Monitor.MetricsPort)

	fmt.Println("\nBackup:")
	fmt.Printf("  retention_days:  %d\n", cfg.Backup.RetentionDays)
	fmt.Printf("  sample_rate:     %.2f\n", cfg.Backup.SampleRate)
	fmt.Printf("  checksum:        %s\n", cfg.Backup.Checksum)
	fmt.Printf("  parallel_jobs:   %d\n", cfg.Backup.ParallelJobs)
	fmt.Printf("  replicator:      %s\n", cfg.Backup.Replicator)
	fmt.Printf("  command_timeout: %s\n", cfg.Backup.CommandTimeout)

	fmt.Println("\nHistory:")
	fmt.Printf("  enabled:        %t\n", cfg.History.Enabled)
	fmt.Printf("  path:           %s\n", cfg.HistoryPath())
	fmt.Printf("  retention_days: %d\n", cfg.History.RetentionDays)

	fmt.Println("\nLogging:")
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	fmt.Printf("  path:  %s\n", cfg.Logging.Path)

	fmt.Printf("\noutput: %s\n", cfg.Output)
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'storkeep config edit' to modify it.")
		return nil
	}

	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", path)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	fmt.Println(path)
	return nil
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	path, err := configFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}
