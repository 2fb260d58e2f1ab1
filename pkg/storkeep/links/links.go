// Package links manages the symlinks between the stable application tree
// and the versioned storage roots: batch creation with rollback support,
// read-only verification, and repair of degraded links.
//
// All batch operations collect per-entry failures and keep going; only an
// invalid configuration or a cancelled context aborts a run. The filesystem
// is re-read on every call rather than cached, so concurrent external
// changes are tolerated.
package links

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/storkeep/storkeep/pkg/storkeep/config"
	"github.com/storkeep/storkeep/pkg/storkeep/logging"
)

// Manager performs symlink operations for the configured pairs.
type Manager struct {
	cfg *config.Config
	log *logging.Logger
}

// New creates a Manager for the given configuration.
func New(cfg *config.Config, logger *logging.Logger) *Manager {
	return &Manager{cfg: cfg, log: logger}
}

// Create makes every configured symlink. Existing correct links are skipped,
// conflicting links are replaced only when links.force_recreate is set, and
// missing target directories are created when links.create_missing_targets
// is set. Per-entry failures never abort the batch; the returned result
// lists exactly the links created by this call so Rollback can undo them.
func (m *Manager) Create(ctx context.Context) (*CreateResult, error) {
	result := &CreateResult{}

	for _, pair := range m.cfg.LinkPairs() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry, created, err := m.createOne(pair)
		switch {
		case err != nil:
			m.log.Warn("symlink creation failed", "link", pair.Link, "error", err)
			result.Failed = append(result.Failed, Failure{Entry: entry, Err: err, Reason: err.Error()})
		case created:
			m.log.Info("created symlink", "link", pair.Link, "target", pair.Target)
			result.Created = append(result.Created, entry)
		default:
			m.log.Debug("symlink already correct", "link", pair.Link)
			result.Skipped = append(result.Skipped, entry)
		}
	}

	return result, nil
}

// createOne creates a single symlink, reporting whether it was made by this
// call. The returned entry reflects the state after the attempt.
func (m *Manager) createOne(pair config.LinkPair) (Entry, bool, error) {
	entry := Entry{Link: pair.Link, Target: pair.Target}

	if !pathExists(pair.Target) {
		if !m.cfg.Links.CreateMissingTargets {
			entry.State = StateMissingTarget
			return entry, false, &MissingTargetError{Target: pair.Target}
		}
		if err := os.MkdirAll(pair.Target, m.cfg.DirMode()); err != nil {
			entry.State = StateMissingTarget
			return entry, false, classifyOSError("mkdir", pair.Target, err)
		}
		// MkdirAll applies the umask; restore the configured mode.
		if err := os.Chmod(pair.Target, m.cfg.DirMode()); err != nil {
			entry.State = StateMissingTarget
			return entry, false, classifyOSError("chmod", pair.Target, err)
		}
		m.log.Info("created missing target", "target", pair.Target)
	}

	info, err := os.Lstat(pair.Link)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		actual, readErr := os.Readlink(pair.Link)
		if readErr == nil && filepath.Clean(actual) == filepath.Clean(pair.Target) {
			entry.State = StateOK
			return entry, false, nil
		}
		if !m.cfg.Links.ForceRecreate {
			entry.State = StateWrongTarget
			entry.Detail = actual
			return entry, false, &ConflictError{Path: pair.Link, Existing: actual}
		}
		if err := os.Remove(pair.Link); err != nil {
			entry.State = StateWrongTarget
			return entry, false, classifyOSError("remove", pair.Link, err)
		}

	case err == nil:
		// A real file or directory occupies the link path. Remove only
		// under force_recreate, and never recursively.
		kind := "file"
		if info.IsDir() {
			kind = "directory"
		}
		if !m.cfg.Links.ForceRecreate {
			entry.State = StateWrongTarget
			entry.Detail = kind
			return entry, false, &ConflictError{Path: pair.Link, Existing: kind}
		}
		if err := os.Remove(pair.Link); err != nil {
			entry.State = StateWrongTarget
			entry.Detail = kind
			return entry, false, classifyOSError("remove", pair.Link, err)
		}

	case !os.IsNotExist(err):
		entry.State = StateBroken
		return entry, false, classifyOSError("lstat", pair.Link, err)
	}

	if err := os.MkdirAll(filepath.Dir(pair.Link), m.cfg.DirMode()); err != nil {
		entry.State = StateAbsent
		return entry, false, classifyOSError("mkdir", filepath.Dir(pair.Link), err)
	}

	if err := os.Symlink(pair.Target, pair.Link); err != nil {
		entry.State = StateAbsent
		return entry, false, classifyOSError("symlink", pair.Link, err)
	}

	entry.State = StateOK
	return entry, true, nil
}

// Verify classifies every configured pair without touching the filesystem
// beyond reads. It always returns one entry per pair, stopping early only
// when the context is cancelled.
func (m *Manager) Verify(ctx context.Context) []Entry {
	pairs := m.cfg.LinkPairs()
	entries := make([]Entry, 0, len(pairs))

	for _, pair := range pairs {
		if ctx.Err() != nil {
			return entries
		}
		entries = append(entries, classify(pair))
	}

	return entries
}

// classify determines the state of one configured pair from the live
// filesystem.
func classify(pair config.LinkPair) Entry {
	entry := Entry{Link: pair.Link, Target: pair.Target}

	info, err := os.Lstat(pair.Link)
	switch {
	case os.IsNotExist(err):
		if pathExists(pair.Target) {
			entry.State = StateAbsent
		} else {
			entry.State = StateMissingTarget
			entry.Detail = fmt.Sprintf("target %s does not exist", pair.Target)
		}
		return entry

	case err != nil:
		entry.State = StateBroken
		entry.Detail = fmt.Sprintf("lstat: %v", err)
		return entry

	case info.Mode()&os.ModeSymlink == 0:
		entry.State = StateWrongTarget
		if info.IsDir() {
			entry.Detail = "exists but is a directory, not a symlink"
		} else {
			entry.Detail = "exists but is a regular file, not a symlink"
		}
		return entry
	}

	actual, err := os.Readlink(pair.Link)
	if err != nil {
		entry.State = StateBroken
		entry.Detail = fmt.Sprintf("readlink: %v", err)
		return entry
	}

	if filepath.Clean(actual) != filepath.Clean(pair.Target) {
		entry.State = StateWrongTarget
		entry.Detail = actual
		return entry
	}

	if !pathExists(pair.Target) {
		entry.State = StateBroken
		entry.Detail = fmt.Sprintf("target %s does not exist", pair.Target)
		return entry
	}

	entry.State = StateOK
	return entry
}

// Repair runs a verify pass and recreates every degraded link. Entries
// already OK are never touched. When links.verify_targets is set, a link
// whose target does not exist is refused rather than recreated dangling.
func (m *Manager) Repair(ctx context.Context) (*RepairResult, error) {
	result := &RepairResult{}

	for _, entry := range m.Verify(ctx) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if entry.State.Healthy() {
			result.Healthy = append(result.Healthy, entry)
			continue
		}

		if err := m.repairOne(entry); err != nil {
			m.log.Warn("symlink repair failed", "link", entry.Link, "state", entry.State, "error", err)
			result.Failed = append(result.Failed, Failure{Entry: entry, Err: err, Reason: err.Error()})
			continue
		}

		m.log.Info("repaired symlink", "link", entry.Link, "was", entry.State)
		repaired := entry
		repaired.State = StateOK
		repaired.Detail = ""
		result.Repaired = append(result.Repaired, repaired)
	}

	return result, nil
}

// repairOne removes whatever occupies the link path and recreates the
// symlink.
func (m *Manager) repairOne(entry Entry) error {
	if !pathExists(entry.Target) && m.cfg.Links.VerifyTargets {
		return &MissingTargetError{Target: entry.Target}
	}

	if _, err := os.Lstat(entry.Link); err == nil {
		if err := os.Remove(entry.Link); err != nil {
			return classifyOSError("remove", entry.Link, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(entry.Link), m.cfg.DirMode()); err != nil {
		return classifyOSError("mkdir", filepath.Dir(entry.Link), err)
	}

	if err := os.Symlink(entry.Target, entry.Link); err != nil {
		return classifyOSError("symlink", entry.Link, err)
	}

	return nil
}

// Rollback removes the symlinks created by a previous Create invocation, in
// reverse order. Only paths that are still symlinks are removed; files that
// replaced a link since creation are left alone.
func (m *Manager) Rollback(result *CreateResult) error {
	var errs []error

	for i := len(result.Created) - 1; i >= 0; i-- {
		link := result.Created[i].Link

		info, err := os.Lstat(link)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			errs = append(errs, classifyOSError("lstat", link, err))
			continue
		}
		if info.Mode()&os.ModeSymlink == 0 {
			m.log.Warn("rollback skipping non-symlink", "path", link)
			continue
		}

		if err := os.Remove(link); err != nil {
			errs = append(errs, classifyOSError("remove", link, err))
			continue
		}
		m.log.Info("rolled back symlink", "link", link)
	}

	return errors.Join(errs...)
}

// pathExists reports whether the path resolves to an existing file or
// directory (following symlinks).
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// classifyOSError wraps permission failures in PermissionError and everything
// else with operation context.
func classifyOSError(op, path string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return &PermissionError{Op: op, Path: path, Err: err}
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}
