package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/storkeep/storkeep/pkg/storkeep/config"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
	"github.com/storkeep/storkeep/pkg/storkeep/output"
)

// errPartial marks operations that completed but left some entries failed
// or degraded. main maps it to exit code 2.
var errPartial = errors.New("completed with failures")

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "storkeep",
		Short: "Manage external storage: symlinks, health monitoring, backups",
		Long: `Storkeep keeps a stable application tree linked into versioned external
storage, watches the backing filesystems and devices, and maintains
hard-link deduplicated backup generations.

Examples:
  storkeep setup                   # Provision roots, directories, and links
  storkeep status                  # Read-only overview of the whole system
  storkeep links verify            # Classify every managed symlink
  storkeep monitor start           # Continuous health checking
  storkeep backup create ~/data    # Snapshot a source into a new generation

Exit codes:
  0  full success
  1  fatal error (configuration, prerequisites, aborted operation)
  2  partial: the operation completed but some entries failed or a
     degraded state was found`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/storkeep/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format (plain|json|yaml|pretty)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path")

	// Bind flags to viper
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig wires environment variables for the global flags.
func initConfig() {
	viper.SetEnvPrefix("STORKEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the configuration file and applies global flag
// overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadPath(cfgFile)
	if err != nil {
		return nil, err
	}

	if out := viper.GetString("output"); out != "" {
		cfg.Output = out
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.Logging.Level = level
	}
	if path := viper.GetString("log_file"); path != "" {
		cfg.Logging.Path = path
	}
	if getVerbose() {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// parseRotation converts the string-based rotation settings from the config
// file into the byte-count form the logging package wants. An empty or
// unparseable max_size falls back to the 10MB default rather than failing
// the whole command.
func parseRotation(rc config.RotationConfig) logging.RotationConfig {
	out := logging.RotationConfig{
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
	if rc.MaxSize != "" {
		if size, err := humanize.ParseBytes(rc.MaxSize); err == nil {
			out.MaxSize = int64(size)
		}
	}
	if out.MaxSize == 0 {
		out.MaxSize = logging.DefaultRotationConfig().MaxSize
	}
	return out
}

// initLogging initializes the logging system from the loaded configuration.
func initLogging(cfg *config.Config) error {
	logCfg := logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Components: cfg.Logging.Components,
		Rotation:   parseRotation(cfg.Logging.Rotation),
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	return logging.Init(logCfg)
}

// bootstrap loads configuration and initializes logging. Every runE handler
// that touches the domain goes through here.
func bootstrap() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// printReport renders a report in the selected format unless quiet.
func printReport(format string, report *output.Report) error {
	if getQuiet() {
		return nil
	}
	if format == "" {
		format = "pretty"
	}
	formatter, err := output.Get(format)
	if err != nil {
		return fmt.Errorf("unknown output format %q (available: %s)",
			format, strings.Join(output.Available(), ", "))
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("formatting report: %w", err)
	}
	fmt.Print(buf.String())
	return nil
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// configFilePath returns the canonical config file location.
func configFilePath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
