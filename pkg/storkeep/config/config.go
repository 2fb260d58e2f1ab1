package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// ConfigurationError reports missing or invalid settings. It is fatal and is
// always raised before any filesystem mutation happens.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// LinkPair is one configured symlink: Link is the stable path, Target the
// storage location it points to.
type LinkPair struct {
	Link   string `mapstructure:"link"`
	Target string `mapstructure:"target"`
}

// LinksConfig configures symlink management policy.
type LinksConfig struct {
	// ForceRecreate allows create to replace links that point elsewhere.
	ForceRecreate bool `mapstructure:"force_recreate"`

	// VerifyTargets makes repair refuse links whose target does not exist.
	VerifyTargets bool `mapstructure:"verify_targets"`

	// CreateMissingTargets creates absent target directories during create.
	CreateMissingTargets bool `mapstructure:"create_missing_targets"`

	// DirectoryMode is the octal mode for created directories, e.g. "0755".
	DirectoryMode string `mapstructure:"directory_mode"`

	// Subdirs are created under the storage root and linked from the
	// application root when Pairs is empty.
	Subdirs []string `mapstructure:"subdirs"`

	// Pairs are explicit link/target pairs overriding the derived layout.
	Pairs []LinkPair `mapstructure:"pairs"`
}

// MonitorConfig configures the storage monitor.
type MonitorConfig struct {
	WarningThreshold  float64       `mapstructure:"warning_threshold"`
	CriticalThreshold float64       `mapstructure:"critical_threshold"`
	InodeThreshold    float64       `mapstructure:"inode_threshold"`
	Interval          time.Duration `mapstructure:"interval"`
	SmartInterval     time.Duration `mapstructure:"smart_interval"`
	EnableSmart       bool          `mapstructure:"enable_smart"`

	// Devices lists block devices for SMART probes. Empty enumerates
	// /dev/nvme*n1 and /dev/sd? automatically.
	Devices []string `mapstructure:"devices"`

	// Paths lists filesystems to sample. Empty means the three roots.
	Paths []string `mapstructure:"paths"`

	// MetricsPort is the Prometheus listener port; 0 disables the listener.
	MetricsPort int `mapstructure:"metrics_port"`

	// CommandTimeout bounds each external probe invocation.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// BackupConfig configures the backup manager.
type BackupConfig struct {
	RetentionDays int     `mapstructure:"retention_days"`
	SampleRate    float64 `mapstructure:"sample_rate"`
	Checksum      string  `mapstructure:"checksum"`
	ParallelJobs  int     `mapstructure:"parallel_jobs"`

	// Replicator selects the copy engine: auto, rsync, or native.
	Replicator string `mapstructure:"replicator"`

	// CommandTimeout bounds one replication run.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// Schedule is advisory; execution belongs to an external timer.
	Schedule string `mapstructure:"schedule"`
}

// HistoryConfig configures the health report history store.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Config is the immutable application configuration. It is constructed once
// by Load at process start and passed explicitly to component constructors.
type Config struct {
	// AppRoot is the stable application path symlinks live under.
	AppRoot string `mapstructure:"app_root"`

	// StorageRoot is the versioned storage location links point into.
	StorageRoot string `mapstructure:"storage_root"`

	// BackupRoot holds backup generations and their metadata.
	BackupRoot string `mapstructure:"backup_root"`

	Links   LinksConfig   `mapstructure:"links"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Backup  BackupConfig  `mapstructure:"backup"`
	History HistoryConfig `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Output is the default output format for reports.
	Output string `mapstructure:"output"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/storkeep/config.yaml
//   - $HOME/.config/storkeep/config.yaml
//
// Environment variables are prefixed with STORKEEP_
// (e.g. STORKEEP_BACKUP_RETENTION_DAYS).
func Load() (*Config, error) {
	return LoadPath("")
}

// LoadPath loads configuration like Load but reads the given file when path
// is non-empty.
func LoadPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "storkeep"))
		}

		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		v.AddConfigPath(filepath.Join(homeDir, ".config", "storkeep"))
	}

	v.SetEnvPrefix("STORKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every recognized key with its default value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app_root", DefaultAppRoot)
	v.SetDefault("storage_root", DefaultStorageRoot)
	v.SetDefault("backup_root", DefaultBackupRoot)
	v.SetDefault("output", DefaultOutput)

	v.SetDefault("links.force_recreate", false)
	v.SetDefault("links.verify_targets", true)
	v.SetDefault("links.create_missing_targets", true)
	v.SetDefault("links.directory_mode", DefaultDirectoryMode)
	v.SetDefault("links.subdirs", DefaultSubdirs)

	v.SetDefault("monitor.warning_threshold", DefaultWarningThreshold)
	v.SetDefault("monitor.critical_threshold", DefaultCriticalThreshold)
	v.SetDefault("monitor.inode_threshold", DefaultInodeThreshold)
	v.SetDefault("monitor.interval", DefaultInterval)
	v.SetDefault("monitor.smart_interval", DefaultSmartInterval)
	v.SetDefault("monitor.enable_smart", true)
	v.SetDefault("monitor.metrics_port", DefaultMetricsPort)
	v.SetDefault("monitor.command_timeout", DefaultCommandTimeout)

	v.SetDefault("backup.retention_days", DefaultRetentionDays)
	v.SetDefault("backup.sample_rate", DefaultSampleRate)
	v.SetDefault("backup.checksum", DefaultChecksum)
	v.SetDefault("backup.parallel_jobs", DefaultParallelJobs)
	v.SetDefault("backup.replicator", DefaultReplicator)
	v.SetDefault("backup.command_timeout", DefaultBackupTimeout)
	v.SetDefault("backup.schedule", DefaultSchedule)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.retention_days", DefaultHistoryRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"links":   "info",
		"health":  "info",
		"backup":  "info",
		"runner":  "info",
		"history": "warn",
	})
}

// expandPaths expands ~ in the configured roots and history path.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.AppRoot, &c.StorageRoot, &c.BackupRoot, &c.History.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	for i := range c.Links.Pairs {
		link, err := ExpandPath(c.Links.Pairs[i].Link)
		if err != nil {
			return err
		}
		target, err := ExpandPath(c.Links.Pairs[i].Target)
		if err != nil {
			return err
		}
		c.Links.Pairs[i].Link = link
		c.Links.Pairs[i].Target = target
	}
	return nil
}

// Validate checks the invariants every component relies on. Violations are
// reported as ConfigurationError and abort before any mutation.
func (c *Config) Validate() error {
	roots := map[string]string{
		"app_root":     c.AppRoot,
		"storage_root": c.StorageRoot,
		"backup_root":  c.BackupRoot,
	}
	for field, p := range roots {
		if p == "" {
			return &ConfigurationError{Field: field, Reason: "must be set"}
		}
		if !filepath.IsAbs(p) {
			return &ConfigurationError{Field: field, Reason: fmt.Sprintf("path %q must be absolute", p)}
		}
	}

	for _, pair := range c.Links.Pairs {
		if !filepath.IsAbs(pair.Link) || !filepath.IsAbs(pair.Target) {
			return &ConfigurationError{
				Field:  "links.pairs",
				Reason: fmt.Sprintf("pair %q -> %q: both paths must be absolute", pair.Link, pair.Target),
			}
		}
	}

	if _, err := parseMode(c.Links.DirectoryMode); err != nil {
		return &ConfigurationError{
			Field:  "links.directory_mode",
			Reason: fmt.Sprintf("%q is not an octal mode", c.Links.DirectoryMode),
		}
	}

	w, crit := c.Monitor.WarningThreshold, c.Monitor.CriticalThreshold
	if !(w > 0 && w < crit && crit <= 1.0) {
		return &ConfigurationError{
			Field:  "monitor",
			Reason: fmt.Sprintf("thresholds must satisfy 0 < warning < critical <= 1.0, got %.2f/%.2f", w, crit),
		}
	}
	if inode := c.Monitor.InodeThreshold; !(inode > 0 && inode <= 1.0) {
		return &ConfigurationError{
			Field:  "monitor.inode_threshold",
			Reason: fmt.Sprintf("must be in (0, 1.0], got %.2f", inode),
		}
	}
	if c.Monitor.Interval <= 0 {
		return &ConfigurationError{Field: "monitor.interval", Reason: "must be positive"}
	}
	if c.Monitor.SmartInterval <= 0 {
		return &ConfigurationError{Field: "monitor.smart_interval", Reason: "must be positive"}
	}
	if port := c.Monitor.MetricsPort; port < 0 || port > 65535 {
		return &ConfigurationError{Field: "monitor.metrics_port", Reason: fmt.Sprintf("invalid port %d", port)}
	}
	if c.Monitor.CommandTimeout <= 0 {
		return &ConfigurationError{Field: "monitor.command_timeout", Reason: "must be positive"}
	}

	if c.Backup.RetentionDays < 1 {
		return &ConfigurationError{Field: "backup.retention_days", Reason: "must be at least 1"}
	}
	if rate := c.Backup.SampleRate; !(rate > 0 && rate <= 1.0) {
		return &ConfigurationError{
			Field:  "backup.sample_rate",
			Reason: fmt.Sprintf("must be in (0, 1.0], got %.2f", rate),
		}
	}
	switch c.Backup.Checksum {
	case "sha256", "sha512":
	default:
		return &ConfigurationError{
			Field:  "backup.checksum",
			Reason: fmt.Sprintf("unsupported algorithm %q (sha256, sha512)", c.Backup.Checksum),
		}
	}
	if c.Backup.ParallelJobs < 1 {
		return &ConfigurationError{Field: "backup.parallel_jobs", Reason: "must be at least 1"}
	}
	switch c.Backup.Replicator {
	case "auto", "rsync", "native":
	default:
		return &ConfigurationError{
			Field:  "backup.replicator",
			Reason: fmt.Sprintf("unknown replicator %q (auto, rsync, native)", c.Backup.Replicator),
		}
	}
	if c.Backup.CommandTimeout <= 0 {
		return &ConfigurationError{Field: "backup.command_timeout", Reason: "must be positive"}
	}

	if c.History.RetentionDays < 1 {
		return &ConfigurationError{Field: "history.retention_days", Reason: "must be at least 1"}
	}

	return nil
}

// LinkPairs returns the configured link/target pairs, deriving the standard
// layout from the roots and subdirs when no explicit pairs are set.
func (c *Config) LinkPairs() []LinkPair {
	if len(c.Links.Pairs) > 0 {
		return c.Links.Pairs
	}

	pairs := make([]LinkPair, 0, len(c.Links.Subdirs))
	for _, sub := range c.Links.Subdirs {
		pairs = append(pairs, LinkPair{
			Link:   filepath.Join(c.AppRoot, sub),
			Target: filepath.Join(c.StorageRoot, sub),
		})
	}
	return pairs
}

// MonitorPaths returns the filesystems the monitor samples: the configured
// list, or the three roots deduplicated.
func (c *Config) MonitorPaths() []string {
	if len(c.Monitor.Paths) > 0 {
		return c.Monitor.Paths
	}

	seen := make(map[string]bool, 3)
	var paths []string
	for _, p := range []string{c.AppRoot, c.StorageRoot, c.BackupRoot} {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths
}

// DirMode returns the parsed directory creation mode.
func (c *Config) DirMode() os.FileMode {
	mode, err := parseMode(c.Links.DirectoryMode)
	if err != nil {
		return 0o755
	}
	return mode
}

// HistoryPath returns the history store location, defaulting under the
// state directory.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(StateDir(), "history")
}

// HistoryRetention returns the history TTL as a duration.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// parseMode parses an octal mode string such as "0755".
func parseMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0, fmt.Errorf("empty mode")
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(n), nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "storkeep"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "storkeep"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// StateDir returns $XDG_STATE_HOME/storkeep/ for logs and the history store.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "storkeep")
}

// CacheDir returns $XDG_CACHE_HOME/storkeep/.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "storkeep")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "storkeep.log")
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# storkeep configuration

# Stable application path; symlinks live here.
app_root: %s

# Active storage root; symlink targets live here.
storage_root: %s

# Backup generations and their metadata.
backup_root: %s

# Default output format: plain, json, yaml, pretty
output: %s

links:
  # Replace links that point elsewhere during create.
  force_recreate: false
  # Refuse to repair links whose target does not exist.
  verify_targets: true
  # Create absent target directories during create.
  create_missing_targets: true
  # Octal mode for created directories.
  directory_mode: "%s"
  # Storage subdirectories linked from the application root.
  subdirs:
    - models
    - cache
    - datasets
  # Explicit pairs override the derived layout:
  # pairs:
  #   - link: /opt/app/models
  #     target: /mnt/fast/models

monitor:
  warning_threshold: %.2f
  critical_threshold: %.2f
  inode_threshold: %.2f
  interval: %s
  smart_interval: %s
  enable_smart: true
  # Explicit devices for SMART probes; empty auto-enumerates /dev.
  devices: []
  # Filesystems to sample; empty means the three roots.
  paths: []
  # Prometheus listener for 'monitor start'; 0 disables.
  metrics_port: %d
  command_timeout: %s

backup:
  retention_days: %d
  sample_rate: %.2f
  checksum: %s
  parallel_jobs: %d
  # Copy engine: auto, rsync, native
  replicator: %s
  command_timeout: %s
  # Advisory; run 'storkeep backup create' from a timer.
  schedule: "%s"

history:
  enabled: true
  # Empty means $XDG_STATE_HOME/storkeep/history
  path: ""
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Empty means $XDG_STATE_HOME/storkeep/storkeep.log
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    links: info
    health: info
    backup: info
    runner: info
    history: warn
`,
		DefaultAppRoot, DefaultStorageRoot, DefaultBackupRoot, DefaultOutput,
		DefaultDirectoryMode,
		DefaultWarningThreshold, DefaultCriticalThreshold, DefaultInodeThreshold,
		DefaultInterval, DefaultSmartInterval, DefaultMetricsPort, DefaultCommandTimeout,
		DefaultRetentionDays, DefaultSampleRate, DefaultChecksum, DefaultParallelJobs,
		DefaultReplicator, DefaultBackupTimeout, DefaultSchedule,
		DefaultHistoryRetentionDays)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}
