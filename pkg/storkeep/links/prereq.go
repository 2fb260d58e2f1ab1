package links

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// VerifyPrereqs checks that each configured root can be used: the root
// itself when it exists, otherwise its parent directory. Checking the parent
// rather than creating blindly is what keeps setup from writing into an
// unmounted mountpoint.
func (m *Manager) VerifyPrereqs(ctx context.Context) *PrereqReport {
	report := &PrereqReport{OK: true}
	seen := make(map[string]bool)

	for _, root := range []string{m.cfg.AppRoot, m.cfg.StorageRoot, m.cfg.BackupRoot} {
		if ctx.Err() != nil {
			return report
		}

		path := root
		if !pathExists(root) {
			path = filepath.Dir(root)
		}
		if seen[path] {
			continue
		}
		seen[path] = true

		check := checkPath(path)
		if check.Problem() != "" {
			report.OK = false
			m.log.Warn("prerequisite check failed", "path", path, "problem", check.Problem())
		} else {
			m.log.Debug("prerequisite satisfied", "path", path)
		}
		report.Checks = append(report.Checks, check)
	}

	return report
}

// checkPath observes one path for existence, directory-ness, and
// writability.
func checkPath(path string) PrereqCheck {
	check := PrereqCheck{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		return check
	}
	check.Exists = true
	check.IsDir = info.IsDir()
	if check.IsDir {
		check.Writable = writable(path)
	}

	return check
}

// writable reports whether the current process can write into dir. Access
// can misjudge mounts with ID mapping, so a denied verdict is confirmed
// with a probe file.
func writable(dir string) bool {
	if unix.Access(dir, unix.W_OK) == nil {
		return true
	}

	f, err := os.CreateTemp(dir, ".storkeep-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// CreateDirs makes the three roots and every link target directory with the
// configured mode. Existing directories are left untouched; a non-directory
// occupying a path is reported as a failure, never replaced.
func (m *Manager) CreateDirs(ctx context.Context) (*DirReport, error) {
	report := &DirReport{}
	seen := make(map[string]bool)

	dirs := []string{m.cfg.AppRoot, m.cfg.StorageRoot, m.cfg.BackupRoot}
	for _, pair := range m.cfg.LinkPairs() {
		dirs = append(dirs, pair.Target)
	}

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true

		info, err := os.Stat(dir)
		switch {
		case err == nil && info.IsDir():
			report.Existing = append(report.Existing, dir)
			continue
		case err == nil:
			failErr := fmt.Errorf("%s exists but is not a directory", dir)
			m.log.Warn("directory creation blocked", "path", dir, "error", failErr)
			report.Failed = append(report.Failed, Failure{
				Entry:  Entry{Target: dir},
				Err:    failErr,
				Reason: failErr.Error(),
			})
			continue
		}

		if err := os.MkdirAll(dir, m.cfg.DirMode()); err != nil {
			wrapped := classifyOSError("mkdir", dir, err)
			m.log.Warn("directory creation failed", "path", dir, "error", wrapped)
			report.Failed = append(report.Failed, Failure{
				Entry:  Entry{Target: dir},
				Err:    wrapped,
				Reason: wrapped.Error(),
			})
			continue
		}
		if err := os.Chmod(dir, m.cfg.DirMode()); err != nil {
			m.log.Warn("chmod after create failed", "path", dir, "error", err)
		}

		m.log.Info("created directory", "path", dir)
		report.Created = append(report.Created, dir)
	}

	return report, nil
}
