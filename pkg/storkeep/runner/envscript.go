package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteEnvScript writes a shell file exporting the storage roots and the
// managed link paths. The file is written to a temporary name and renamed
// into place so sourcing shells never see a partial script.
func (r *Runner) WriteEnvScript(path string) error {
	var sb strings.Builder
	sb.WriteString("# Storage environment written by storkeep setup.\n")
	sb.WriteString("# Source this file from your shell profile.\n\n")
	fmt.Fprintf(&sb, "export STORKEEP_APP_ROOT=%q\n", r.cfg.AppRoot)
	fmt.Fprintf(&sb, "export STORKEEP_STORAGE_ROOT=%q\n", r.cfg.StorageRoot)
	fmt.Fprintf(&sb, "export STORKEEP_BACKUP_ROOT=%q\n", r.cfg.BackupRoot)

	pairs := r.cfg.LinkPairs()
	if len(pairs) > 0 {
		sb.WriteString("\n")
	}
	for _, pair := range pairs {
		fmt.Fprintf(&sb, "export STORKEEP_LINK_%s=%q\n", envKey(filepath.Base(pair.Link)), pair.Link)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating env script directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".storkeep-env-*")
	if err != nil {
		return fmt.Errorf("creating env script: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing env script: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("setting env script mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing env script: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming env script: %w", err)
	}

	r.log.Debug("wrote environment script", "path", path, "links", len(pairs))
	return nil
}

// envKey maps a link basename to a safe environment variable suffix.
func envKey(name string) string {
	upper := strings.ToUpper(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}
