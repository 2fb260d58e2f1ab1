// Package config provides configuration management for storkeep.
package config

import "time"

// Default configuration values for storkeep.
const (
	// DefaultAppRoot is the stable application path that symlinks live under.
	DefaultAppRoot = "/srv/storkeep/app"

	// DefaultStorageRoot is the active storage root that symlinks point into.
	DefaultStorageRoot = "/srv/storkeep/storage"

	// DefaultBackupRoot is the root directory for backup generations.
	DefaultBackupRoot = "/srv/storkeep/backups"

	// DefaultDirectoryMode is the octal mode applied to created directories.
	DefaultDirectoryMode = "0755"

	// DefaultWarningThreshold is the disk usage fraction that triggers WARNING.
	DefaultWarningThreshold = 0.80

	// DefaultCriticalThreshold is the disk usage fraction that triggers CRITICAL.
	DefaultCriticalThreshold = 0.90

	// DefaultInodeThreshold is the inode usage fraction that triggers WARNING.
	DefaultInodeThreshold = 0.80

	// DefaultInterval is the monitor polling interval.
	DefaultInterval = 60 * time.Second

	// DefaultSmartInterval is how often SMART probes rerun inside the loop.
	DefaultSmartInterval = time.Hour

	// DefaultMetricsPort is the Prometheus listener port for monitor start.
	DefaultMetricsPort = 8000

	// DefaultCommandTimeout bounds short external commands such as smartctl.
	DefaultCommandTimeout = 30 * time.Second

	// DefaultBackupTimeout bounds a full replication run.
	DefaultBackupTimeout = 10 * time.Minute

	// DefaultRetentionDays is how long backup generations are kept.
	DefaultRetentionDays = 30

	// DefaultHistoryRetentionDays is how long health reports are kept.
	DefaultHistoryRetentionDays = 30

	// DefaultSampleRate is the fraction of files checked by backup verify.
	DefaultSampleRate = 0.1

	// DefaultChecksum is the checksum algorithm recorded in backup metadata.
	DefaultChecksum = "sha256"

	// DefaultParallelJobs is the number of concurrent checksum workers.
	DefaultParallelJobs = 4

	// DefaultReplicator selects the copy engine: auto, rsync, or native.
	DefaultReplicator = "auto"

	// DefaultSchedule is the advisory backup schedule (executed externally).
	DefaultSchedule = "0 2 * * *"

	// DefaultOutput is the default output format.
	DefaultOutput = "pretty"
)

// DefaultSubdirs are the storage subdirectories created under the storage
// root and linked from the application root when no explicit pairs are set.
var DefaultSubdirs = []string{"models", "cache", "datasets"}
