// Package backup creates hard-link-deduplicated generation directories of a
// source tree, verifies them by sampled checksum, and expires them by age.
//
// Each run produces a generation directory named after the source and the
// UTC start time. Unchanged files are hard-linked against the previous
// generation (rsync --link-dest semantics), so every generation reads as a
// full copy while costing only the changed bytes. The `latest` pointer file
// in the backup root names the newest completed generation and only ever
// moves after metadata has been persisted.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/storkeep/storkeep/pkg/storkeep/config"
	"github.com/storkeep/storkeep/pkg/storkeep/execx"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
)

// Manager runs backup jobs against the configured backup root.
type Manager struct {
	cfg    *config.Config
	repl   Replicator
	hasher Hasher
	store  *Store
	log    *logging.Logger
}

// New creates a Manager with explicit seams. Most callers want NewDefault.
func New(cfg *config.Config, repl Replicator, hasher Hasher, logger *logging.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		repl:   repl,
		hasher: hasher,
		store:  NewStore(cfg.BackupRoot),
		log:    logger,
	}
}

// NewDefault wires the replicator and hasher from configuration.
func NewDefault(cfg *config.Config, logger *logging.Logger) (*Manager, error) {
	hasher, err := NewHasher(cfg.Backup.Checksum)
	if err != nil {
		return nil, err
	}
	repl := selectReplicator(cfg.Backup.Replicator, execx.Default{}, cfg.Backup.CommandTimeout)
	return New(cfg, repl, hasher, logger), nil
}

// Create backs up source into a new generation, hard-linking unchanged files
// against the previous generation when one exists. On failure the generation
// directory is left in place for inspection and the latest pointer does not
// move.
func (m *Manager) Create(ctx context.Context, source string) (*Job, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("backup source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("backup source %s is not a directory", source)
	}

	started := time.Now().UTC()
	job := &Job{
		ID:         uuid.NewString(),
		Source:     source,
		Generation: GenerationName(filepath.Base(source), started),
		StartedAt:  started,
		Status:     StatusRunning,
		Replicator: m.repl.Name(),
		Checksum:   m.hasher.Name(),
	}

	if err := os.MkdirAll(m.cfg.BackupRoot, m.cfg.DirMode()); err != nil {
		return nil, fmt.Errorf("creating backup root: %w", err)
	}

	prev, err := m.store.ReadLatest()
	if err != nil {
		return nil, err
	}

	var linkDest string
	var prevSums map[string]string
	if prev != "" {
		prevDir := filepath.Join(m.cfg.BackupRoot, prev)
		if st, err := os.Stat(prevDir); err == nil && st.IsDir() {
			linkDest = prevDir
			if prevMeta, err := m.store.Read(prev); err == nil {
				prevSums = make(map[string]string, len(prevMeta.Files))
				for _, f := range prevMeta.Files {
					prevSums[f.Path] = f.Checksum
				}
			}
		} else {
			m.log.Warn("latest pointer names a missing generation, falling back to full copy", "generation", prev)
		}
	}

	dest := filepath.Join(m.cfg.BackupRoot, job.Generation)
	if err := os.Mkdir(dest, m.cfg.DirMode()); err != nil {
		return nil, fmt.Errorf("creating generation directory: %w", err)
	}

	m.log.Info("backup started",
		"source", source,
		"generation", job.Generation,
		"replicator", job.Replicator,
		"incremental", linkDest != "")

	if err := m.repl.Replicate(ctx, source, dest, linkDest); err != nil {
		return m.fail(job, err), err
	}

	files, err := m.enumerate(ctx, dest, linkDest, prevSums)
	if err != nil {
		return m.fail(job, err), err
	}

	job.Status = StatusCompleted
	job.CompletedAt = time.Now().UTC()
	for _, f := range files {
		if f.Linked {
			job.FilesLinked++
			job.Linked = append(job.Linked, f.Path)
		} else {
			job.FilesCopied++
			job.BytesCopied += f.Size
			job.Copied = append(job.Copied, f.Path)
		}
	}

	if err := m.store.Write(&Metadata{Job: *job, Files: files}); err != nil {
		return m.fail(job, err), err
	}
	if err := m.store.WriteLatest(job.Generation); err != nil {
		return m.fail(job, err), err
	}

	m.log.Info("backup completed",
		"generation", job.Generation,
		"copied", job.FilesCopied,
		"linked", job.FilesLinked,
		"bytes", job.BytesCopied,
		"duration", job.Duration())
	return job, nil
}

// fail marks the job failed and records it when the store is writable. The
// generation directory is deliberately not removed.
func (m *Manager) fail(job *Job, cause error) *Job {
	job.Status = StatusFailed
	job.CompletedAt = time.Now().UTC()
	job.Error = cause.Error()

	if err := m.store.Write(&Metadata{Job: *job}); err != nil {
		m.log.Error("recording failed job", "generation", job.Generation, "error", err)
	}
	m.log.Error("backup failed", "generation", job.Generation, "error", cause)
	return job
}

// enumerate walks a finished generation and builds its file records. Files
// hard-linked from the previous generation inherit its checksum; everything
// else is hashed with up to backup.parallel_jobs workers.
func (m *Manager) enumerate(ctx context.Context, dest, linkDest string, prevSums map[string]string) ([]FileRecord, error) {
	conf := fastwalk.Config{
		Follow: false,
	}

	var mu sync.Mutex
	var records []FileRecord

	err := fastwalk.Walk(&conf, dest, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("walking %s: %w", path, err)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(dest, path)
		if err != nil {
			return err
		}

		record := FileRecord{
			Path:    rel,
			Size:    info.Size(),
			Mode:    info.Mode(),
			ModTime: info.ModTime(),
		}
		if linkDest != "" {
			record.Linked = sameInode(path, filepath.Join(linkDest, rel))
		}

		mu.Lock()
		records = append(records, record)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating generation: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Backup.ParallelJobs)
	for i := range records {
		rec := &records[i]
		if rec.Linked {
			if sum, ok := prevSums[rec.Path]; ok && sum != "" {
				rec.Checksum = sum
				continue
			}
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := m.hasher.Sum(filepath.Join(dest, rec.Path))
			if err != nil {
				return fmt.Errorf("checksum %s: %w", rec.Path, err)
			}
			rec.Checksum = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return records, nil
}

// sameInode reports whether two paths are the same file on the same device.
func sameInode(a, b string) bool {
	var sa, sb unix.Stat_t
	if unix.Stat(a, &sa) != nil || unix.Stat(b, &sb) != nil {
		return false
	}
	return sa.Ino == sb.Ino && sa.Dev == sb.Dev
}

// Verify samples files from a generation's metadata and recomputes their
// checksums. Empty generation means the one the latest pointer names.
// Mismatches and missing files are reported in the result, never repaired.
func (m *Manager) Verify(ctx context.Context, generation string, rate float64) (*VerifyResult, error) {
	if generation == "" {
		latest, err := m.store.ReadLatest()
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, errors.New("no backup generations exist")
		}
		generation = latest
	}

	meta, err := m.store.Read(generation)
	if err != nil {
		return nil, err
	}

	if rate <= 0 {
		rate = m.cfg.Backup.SampleRate
	}
	if rate > 1 {
		rate = 1
	}

	result := &VerifyResult{Generation: generation}
	if len(meta.Files) == 0 {
		return result, nil
	}

	n := int(float64(len(meta.Files)) * rate)
	if n < 1 {
		n = 1
	}

	dir := filepath.Join(m.cfg.BackupRoot, generation)
	for _, idx := range rand.Perm(len(meta.Files))[:n] {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rec := meta.Files[idx]
		result.Sampled++

		sum, err := m.hasher.Sum(filepath.Join(dir, rec.Path))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			result.Missing++
			result.Failures = append(result.Failures, VerifyFailure{Path: rec.Path, Reason: "file missing from generation"})
		case err != nil:
			result.Failures = append(result.Failures, VerifyFailure{Path: rec.Path, Reason: err.Error()})
		case sum != rec.Checksum:
			result.Mismatched++
			mismatch := &IntegrityError{Path: rec.Path, Expected: rec.Checksum, Actual: sum}
			result.Failures = append(result.Failures, VerifyFailure{Path: rec.Path, Reason: mismatch.Error()})
		default:
			result.Verified++
		}
	}

	m.log.Info("backup verified",
		"generation", generation,
		"sampled", result.Sampled,
		"verified", result.Verified,
		"mismatched", result.Mismatched,
		"missing", result.Missing)
	return result, nil
}

// ApplyRetention deletes generations older than backup.retention_days. The
// generation named by the latest pointer is never deleted regardless of age.
// With dryRun the result reports what would be deleted without touching
// anything.
func (m *Manager) ApplyRetention(ctx context.Context, dryRun bool) (*RetentionResult, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.Backup.RetentionDays)

	latest, err := m.store.ReadLatest()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(m.cfg.BackupRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return &RetentionResult{DryRun: dryRun}, nil
		}
		return nil, fmt.Errorf("reading backup root: %w", err)
	}

	result := &RetentionResult{DryRun: dryRun}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := entry.Name()
		if !entry.IsDir() || name == metaDirName {
			continue
		}

		ts, ok := ParseGenerationTime(name)
		if !ok {
			// Renamed by hand, perhaps. Fall back to recorded metadata.
			if meta, err := m.store.Read(name); err == nil {
				ts, ok = meta.Job.StartedAt, true
			}
		}
		if !ok {
			m.log.Warn("keeping undatable directory in backup root", "name", name)
			continue
		}

		switch {
		case !ts.Before(cutoff):
			result.Kept = append(result.Kept, name)

		case name == latest:
			result.SkippedLatest = name
			result.Kept = append(result.Kept, name)
			m.log.Info("retention skipping latest generation", "generation", name)

		case dryRun:
			result.Deleted = append(result.Deleted, name)

		default:
			if err := os.RemoveAll(filepath.Join(m.cfg.BackupRoot, name)); err != nil {
				return result, fmt.Errorf("deleting generation %s: %w", name, err)
			}
			if err := m.store.Remove(name); err != nil {
				m.log.Warn("removing generation metadata", "generation", name, "error", err)
			}
			m.log.Info("deleted expired generation", "generation", name)
			result.Deleted = append(result.Deleted, name)
		}
	}

	return result, nil
}

// List returns all recorded generations newest-first.
func (m *Manager) List() ([]*Metadata, error) {
	return m.store.List()
}

// Latest returns the generation the latest pointer names, "" when none.
func (m *Manager) Latest() (string, error) {
	return m.store.ReadLatest()
}

// LastJob returns the most recent completed job record, nil when no backup
// has run.
func (m *Manager) LastJob() (*Job, error) {
	return m.store.LastJob()
}
