package backup

import (
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Status is a backup job lifecycle state.
type Status string

// Job states.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job records one backup run. A failed job keeps its generation directory on
// disk for inspection; only completed jobs move the latest pointer.
type Job struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Generation  string    `json:"generation"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	Status      Status    `json:"status"`
	Replicator  string    `json:"replicator"`

	// Checksum is the algorithm name used for the file records.
	Checksum string `json:"checksum"`

	FilesCopied int   `json:"files_copied"`
	FilesLinked int   `json:"files_linked"`
	BytesCopied int64 `json:"bytes_copied"`

	// Copied and Linked list the relative paths copied into this generation
	// and hard-linked from the previous one.
	Copied []string `json:"copied,omitempty"`
	Linked []string `json:"linked,omitempty"`

	// Error holds the failure cause for failed jobs.
	Error string `json:"error,omitempty"`
}

// Duration returns the job runtime, zero while still running.
func (j *Job) Duration() time.Duration {
	if j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

// FileRecord describes one regular file inside a generation.
type FileRecord struct {
	// Path is relative to the generation directory.
	Path     string      `json:"path"`
	Size     int64       `json:"size"`
	Mode     fs.FileMode `json:"mode"`
	ModTime  time.Time   `json:"mod_time"`
	Checksum string      `json:"checksum"`

	// Linked marks files hard-linked from the previous generation rather
	// than copied.
	Linked bool `json:"linked"`
}

// Metadata is the persisted record of one generation: the job that produced
// it plus every regular file it contains. It lives beside the generations in
// BackupRoot/.meta/ so generation directories mirror their source exactly.
type Metadata struct {
	Job   Job          `json:"job"`
	Files []FileRecord `json:"files"`
}

// VerifyFailure is one file that failed verification.
type VerifyFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// VerifyResult summarizes a sampled integrity check. Mismatches are reported,
// never repaired.
type VerifyResult struct {
	Generation string          `json:"generation"`
	Sampled    int             `json:"sampled"`
	Verified   int             `json:"verified"`
	Mismatched int             `json:"mismatched"`
	Missing    int             `json:"missing"`
	Failures   []VerifyFailure `json:"failures,omitempty"`
}

// OK reports whether every sampled file verified clean.
func (r *VerifyResult) OK() bool {
	return r.Mismatched == 0 && r.Missing == 0 && len(r.Failures) == 0
}

// RetentionResult summarizes one retention pass.
type RetentionResult struct {
	Deleted []string `json:"deleted"`
	Kept    []string `json:"kept"`

	// SkippedLatest names the generation protected by the latest pointer
	// when it was old enough to delete.
	SkippedLatest string `json:"skipped_latest,omitempty"`

	// DryRun marks a pass that only reported what would be deleted.
	DryRun bool `json:"dry_run,omitempty"`
}

// IntegrityError reports a checksum mismatch found during verification. It is
// carried in VerifyResult failures, never returned as a hard error.
type IntegrityError struct {
	Path     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: recorded %s, computed %s", e.Path, e.Expected, e.Actual)
}

// generationTimeLayout is the UTC timestamp suffix of generation directory
// names.
const generationTimeLayout = "20060102-150405"

// GenerationName builds a generation directory name from the source base name
// and a start time.
func GenerationName(sourceBase string, t time.Time) string {
	return fmt.Sprintf("%s-%s", sourceBase, t.UTC().Format(generationTimeLayout))
}

// ParseGenerationTime extracts the timestamp from a generation directory
// name. The source base may itself contain hyphens, so the timestamp is the
// last two hyphen-separated fields.
func ParseGenerationTime(name string) (time.Time, bool) {
	parts := strings.Split(name, "-")
	if len(parts) < 3 {
		return time.Time{}, false
	}
	stamp := parts[len(parts)-2] + "-" + parts[len(parts)-1]
	t, err := time.ParseInLocation(generationTimeLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
