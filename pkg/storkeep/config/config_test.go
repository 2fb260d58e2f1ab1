package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AppRoot != DefaultAppRoot {
		t.Errorf("AppRoot = %q, want %q", cfg.AppRoot, DefaultAppRoot)
	}

	if cfg.StorageRoot != DefaultStorageRoot {
		t.Errorf("StorageRoot = %q, want %q", cfg.StorageRoot, DefaultStorageRoot)
	}

	if cfg.BackupRoot != DefaultBackupRoot {
		t.Errorf("BackupRoot = %q, want %q", cfg.BackupRoot, DefaultBackupRoot)
	}

	if cfg.Links.ForceRecreate {
		t.Error("Links.ForceRecreate = true, want false")
	}

	if !cfg.Links.VerifyTargets {
		t.Error("Links.VerifyTargets = false, want true")
	}

	if !cfg.Links.CreateMissingTargets {
		t.Error("Links.CreateMissingTargets = false, want true")
	}

	if cfg.Monitor.WarningThreshold != DefaultWarningThreshold {
		t.Errorf("Monitor.WarningThreshold = %v, want %v", cfg.Monitor.WarningThreshold, DefaultWarningThreshold)
	}

	if cfg.Monitor.CriticalThreshold != DefaultCriticalThreshold {
		t.Errorf("Monitor.CriticalThreshold = %v, want %v", cfg.Monitor.CriticalThreshold, DefaultCriticalThreshold)
	}

	if cfg.Monitor.Interval != DefaultInterval {
		t.Errorf("Monitor.Interval = %v, want %v", cfg.Monitor.Interval, DefaultInterval)
	}

	if cfg.Backup.RetentionDays != DefaultRetentionDays {
		t.Errorf("Backup.RetentionDays = %d, want %d", cfg.Backup.RetentionDays, DefaultRetentionDays)
	}

	if cfg.Backup.SampleRate != DefaultSampleRate {
		t.Errorf("Backup.SampleRate = %v, want %v", cfg.Backup.SampleRate, DefaultSampleRate)
	}

	if cfg.Backup.Checksum != DefaultChecksum {
		t.Errorf("Backup.Checksum = %q, want %q", cfg.Backup.Checksum, DefaultChecksum)
	}

	if cfg.Backup.Replicator != DefaultReplicator {
		t.Errorf("Backup.Replicator = %q, want %q", cfg.Backup.Replicator, DefaultReplicator)
	}

	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}

	if cfg.Output != DefaultOutput {
		t.Errorf("Output = %q, want %q", cfg.Output, DefaultOutput)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, ".config", "storkeep")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `
app_root: /opt/app
storage_root: /mnt/fast
backup_root: /mnt/slow/backups
links:
  force_recreate: true
  subdirs:
    - models
monitor:
  warning_threshold: 0.7
  critical_threshold: 0.85
  interval: 30s
backup:
  retention_days: 7
  sample_rate: 0.25
  replicator: native
`
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AppRoot != "/opt/app" {
		t.Errorf("AppRoot = %q, want %q", cfg.AppRoot, "/opt/app")
	}

	if cfg.StorageRoot != "/mnt/fast" {
		t.Errorf("StorageRoot = %q, want %q", cfg.StorageRoot, "/mnt/fast")
	}

	if !cfg.Links.ForceRecreate {
		t.Error("Links.ForceRecreate = false, want true")
	}

	if cfg.Monitor.WarningThreshold != 0.7 {
		t.Errorf("Monitor.WarningThreshold = %v, want 0.7", cfg.Monitor.WarningThreshold)
	}

	if cfg.Monitor.Interval != 30*time.Second {
		t.Errorf("Monitor.Interval = %v, want 30s", cfg.Monitor.Interval)
	}

	if cfg.Backup.RetentionDays != 7 {
		t.Errorf("Backup.RetentionDays = %d, want 7", cfg.Backup.RetentionDays)
	}

	if cfg.Backup.Replicator != "native" {
		t.Errorf("Backup.Replicator = %q, want %q", cfg.Backup.Replicator, "native")
	}

	pairs := cfg.LinkPairs()
	if len(pairs) != 1 {
		t.Fatalf("len(LinkPairs()) = %d, want 1", len(pairs))
	}
	if pairs[0].Link != "/opt/app/models" || pairs[0].Target != "/mnt/fast/models" {
		t.Errorf("LinkPairs()[0] = %+v, want /opt/app/models -> /mnt/fast/models", pairs[0])
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("STORKEEP_APP_ROOT", "/opt/override")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AppRoot != "/opt/override" {
		t.Errorf("AppRoot = %q, want %q", cfg.AppRoot, "/opt/override")
	}
}

func TestLoadPath_ExplicitFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "custom.yaml")
	if err := os.WriteFile(configPath, []byte("app_root: /opt/custom\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadPath(configPath)
	if err != nil {
		t.Fatalf("LoadPath() error = %v", err)
	}

	if cfg.AppRoot != "/opt/custom" {
		t.Errorf("AppRoot = %q, want %q", cfg.AppRoot, "/opt/custom")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppRoot:     "/opt/app",
			StorageRoot: "/mnt/storage",
			BackupRoot:  "/mnt/backups",
			Links: LinksConfig{
				DirectoryMode: "0755",
				Subdirs:       []string{"models"},
			},
			Monitor: MonitorConfig{
				WarningThreshold:  0.8,
				CriticalThreshold: 0.9,
				InodeThreshold:    0.8,
				Interval:          time.Minute,
				SmartInterval:     time.Hour,
				CommandTimeout:    30 * time.Second,
			},
			Backup: BackupConfig{
				RetentionDays:  30,
				SampleRate:     0.1,
				Checksum:       "sha256",
				ParallelJobs:   4,
				Replicator:     "auto",
				CommandTimeout: time.Minute,
			},
			History: HistoryConfig{RetentionDays: 30},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config: Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative app root", func(c *Config) { c.AppRoot = "opt/app" }},
		{"empty storage root", func(c *Config) { c.StorageRoot = "" }},
		{"relative pair", func(c *Config) {
			c.Links.Pairs = []LinkPair{{Link: "rel/link", Target: "/abs"}}
		}},
		{"bad directory mode", func(c *Config) { c.Links.DirectoryMode = "rwxr-xr-x" }},
		{"warning above critical", func(c *Config) {
			c.Monitor.WarningThreshold = 0.95
			c.Monitor.CriticalThreshold = 0.9
		}},
		{"warning equals critical", func(c *Config) {
			c.Monitor.WarningThreshold = 0.9
			c.Monitor.CriticalThreshold = 0.9
		}},
		{"critical above one", func(c *Config) { c.Monitor.CriticalThreshold = 1.1 }},
		{"zero warning", func(c *Config) { c.Monitor.WarningThreshold = 0 }},
		{"inode threshold zero", func(c *Config) { c.Monitor.InodeThreshold = 0 }},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }},
		{"negative metrics port", func(c *Config) { c.Monitor.MetricsPort = -1 }},
		{"zero retention", func(c *Config) { c.Backup.RetentionDays = 0 }},
		{"sample rate above one", func(c *Config) { c.Backup.SampleRate = 1.5 }},
		{"sample rate zero", func(c *Config) { c.Backup.SampleRate = 0 }},
		{"unknown checksum", func(c *Config) { c.Backup.Checksum = "crc32" }},
		{"zero parallel jobs", func(c *Config) { c.Backup.ParallelJobs = 0 }},
		{"unknown replicator", func(c *Config) { c.Backup.Replicator = "cp" }},
		{"zero history retention", func(c *Config) { c.History.RetentionDays = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want ConfigurationError")
			}

			var confErr *ConfigurationError
			if !errors.As(err, &confErr) {
				t.Errorf("Validate() error type = %T, want *ConfigurationError", err)
			}
		})
	}
}

func TestLinkPairs_ExplicitOverride(t *testing.T) {
	cfg := &Config{
		AppRoot:     "/opt/app",
		StorageRoot: "/mnt/storage",
		Links: LinksConfig{
			Subdirs: []string{"models", "cache"},
			Pairs: []LinkPair{
				{Link: "/custom/link", Target: "/custom/target"},
			},
		},
	}

	pairs := cfg.LinkPairs()
	if len(pairs) != 1 {
		t.Fatalf("len(LinkPairs()) = %d, want 1 (explicit pairs win)", len(pairs))
	}
	if pairs[0].Link != "/custom/link" {
		t.Errorf("Link = %q, want %q", pairs[0].Link, "/custom/link")
	}
}

func TestLinkPairs_Derived(t *testing.T) {
	cfg := &Config{
		AppRoot:     "/opt/app",
		StorageRoot: "/mnt/storage",
		Links:       LinksConfig{Subdirs: []string{"models", "cache", "datasets"}},
	}

	pairs := cfg.LinkPairs()
	if len(pairs) != 3 {
		t.Fatalf("len(LinkPairs()) = %d, want 3", len(pairs))
	}
	if pairs[1].Link != "/opt/app/cache" || pairs[1].Target != "/mnt/storage/cache" {
		t.Errorf("pairs[1] = %+v, want /opt/app/cache -> /mnt/storage/cache", pairs[1])
	}
}

func TestMonitorPaths(t *testing.T) {
	cfg := &Config{
		AppRoot:     "/opt/app",
		StorageRoot: "/mnt/storage",
		BackupRoot:  "/mnt/storage",
	}

	paths := cfg.MonitorPaths()
	if len(paths) != 2 {
		t.Errorf("MonitorPaths() = %v, want deduplicated 2 entries", paths)
	}

	cfg.Monitor.Paths = []string{"/explicit"}
	paths = cfg.MonitorPaths()
	if len(paths) != 1 || paths[0] != "/explicit" {
		t.Errorf("MonitorPaths() = %v, want [/explicit]", paths)
	}
}

func TestDirMode(t *testing.T) {
	cfg := &Config{Links: LinksConfig{DirectoryMode: "0750"}}
	if mode := cfg.DirMode(); mode != os.FileMode(0o750) {
		t.Errorf("DirMode() = %o, want 0750", mode)
	}

	cfg.Links.DirectoryMode = "bogus"
	if mode := cfg.DirMode(); mode != os.FileMode(0o755) {
		t.Errorf("DirMode() fallback = %o, want 0755", mode)
	}
}

func TestHistoryRetention(t *testing.T) {
	cfg := &Config{History: HistoryConfig{RetentionDays: 7}}
	if got := cfg.HistoryRetention(); got != 7*24*time.Hour {
		t.Errorf("HistoryRetention() = %v, want 168h", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}

		expected := "/custom/config/storkeep"
		if dir != expected {
			t.Errorf("ConfigDir() = %q, want %q", dir, expected)
		}
	})

	t.Run("uses HOME/.config when XDG_CONFIG_HOME not set", func(t *testing.T) {
		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)
		t.Setenv("XDG_CONFIG_HOME", "")

		dir, err := ConfigDir()
		if err != nil {
			t.Fatalf("ConfigDir() error = %v", err)
		}

		expected := filepath.Join(tempDir, ".config", "storkeep")
		if dir != expected {
			t.Errorf("ConfigDir() = %q, want %q", dir, expected)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	t.Run("creates default config file", func(t *testing.T) {
		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)
		t.Setenv("XDG_CONFIG_HOME", "")

		if err := WriteDefault(); err != nil {
			t.Fatalf("WriteDefault() error = %v", err)
		}

		configPath := filepath.Join(tempDir, ".config", "storkeep", "config.yaml")
		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("failed to read config file: %v", err)
		}
		if len(content) == 0 {
			t.Error("config file is empty")
		}
	})

	t.Run("does not overwrite existing config", func(t *testing.T) {
		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)
		t.Setenv("XDG_CONFIG_HOME", "")

		configDir := filepath.Join(tempDir, ".config", "storkeep")
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			t.Fatalf("failed to create config dir: %v", err)
		}

		configPath := filepath.Join(configDir, "config.yaml")
		existingContent := "# existing config\napp_root: /opt/app"
		if err := os.WriteFile(configPath, []byte(existingContent), 0o644); err != nil {
			t.Fatalf("failed to write existing config: %v", err)
		}

		if err := WriteDefault(); err != nil {
			t.Fatalf("WriteDefault() error = %v", err)
		}

		content, err := os.ReadFile(configPath)
		if err != nil {
			t.Fatalf("failed to read config file: %v", err)
		}

		if string(content) != existingContent {
			t.Errorf("config file was overwritten: got %q", string(content))
		}
	})

	t.Run("default config round-trips through Load", func(t *testing.T) {
		tempDir := t.TempDir()
		t.Setenv("HOME", tempDir)
		t.Setenv("XDG_CONFIG_HOME", "")

		if err := WriteDefault(); err != nil {
			t.Fatalf("WriteDefault() error = %v", err)
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() after WriteDefault() error = %v", err)
		}
		if cfg.Backup.Checksum != DefaultChecksum {
			t.Errorf("Backup.Checksum = %q, want %q", cfg.Backup.Checksum, DefaultChecksum)
		}
	})
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("failed to get home dir: %v", err)
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"expands tilde", "~/data/storkeep", filepath.Join(homeDir, "data/storkeep")},
		{"leaves absolute path unchanged", "/srv/storkeep", "/srv/storkeep"},
		{"leaves relative path unchanged", "data/storkeep", "data/storkeep"},
		{"handles tilde only", "~", homeDir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			if err != nil {
				t.Fatalf("ExpandPath(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStateDir(t *testing.T) {
	dir := StateDir()
	if !filepath.IsAbs(dir) {
		t.Errorf("StateDir() = %q, want absolute path", dir)
	}
	if filepath.Base(dir) != "storkeep" {
		t.Errorf("StateDir() = %q, want path ending in 'storkeep'", dir)
	}
}

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "storkeep.log" {
		t.Errorf("DefaultLogPath() = %q, want path ending in 'storkeep.log'", path)
	}
	if filepath.Dir(path) != StateDir() {
		t.Errorf("DefaultLogPath() dir = %q, want %q", filepath.Dir(path), StateDir())
	}
}
