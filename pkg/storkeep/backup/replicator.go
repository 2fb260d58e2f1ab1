package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/storkeep/storkeep/pkg/storkeep/execx"
)

// Replicator copies a source tree into a generation directory. A non-empty
// linkDest names the previous generation; unchanged files are hard-linked
// from it instead of copied.
type Replicator interface {
	Replicate(ctx context.Context, src, dst, linkDest string) error
	Name() string
}

// RsyncReplicator shells out to rsync, the engine the generation layout is
// designed around.
type RsyncReplicator struct {
	Exec execx.Executor

	// Timeout bounds one replication run; zero means no bound.
	Timeout time.Duration
}

// Name implements Replicator.
func (r *RsyncReplicator) Name() string { return "rsync" }

// Replicate implements Replicator. Trailing slashes make rsync copy
// directory contents rather than the directory itself.
func (r *RsyncReplicator) Replicate(ctx context.Context, src, dst, linkDest string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{"-a"}
	if linkDest != "" {
		args = append(args, "--link-dest="+linkDest)
	}
	args = append(args, src+string(os.PathSeparator), dst+string(os.PathSeparator))

	if _, err := r.Exec.Run(ctx, "rsync", args...); err != nil {
		return fmt.Errorf("rsync replication: %w", err)
	}
	return nil
}

// NativeReplicator is the pure-Go engine for hosts without rsync: a parallel
// walk of the source, hard-linking files whose size and mtime match the
// link-dest counterpart and copying the rest.
type NativeReplicator struct{}

// Name implements Replicator.
func (r *NativeReplicator) Name() string { return "native" }

// Replicate implements Replicator.
func (r *NativeReplicator) Replicate(ctx context.Context, src, dst, linkDest string) error {
	conf := fastwalk.Config{
		Follow: false,
	}

	var mu sync.Mutex
	var walkErrs []error

	record := func(err error) {
		mu.Lock()
		walkErrs = append(walkErrs, err)
		mu.Unlock()
	}

	err := fastwalk.Walk(&conf, src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			record(fmt.Errorf("walking %s: %w", path, err))
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				record(fmt.Errorf("stat %s: %w", path, err))
				return fastwalk.SkipDir
			}
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				record(err)
				return fastwalk.SkipDir
			}

		case d.Type()&fs.ModeSymlink != 0:
			dest, err := os.Readlink(path)
			if err != nil {
				record(fmt.Errorf("readlink %s: %w", path, err))
				return nil
			}
			if err := os.Symlink(dest, target); err != nil {
				record(err)
			}

		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				record(fmt.Errorf("stat %s: %w", path, err))
				return nil
			}
			if linkDest != "" && linkUnchanged(filepath.Join(linkDest, rel), info) {
				if os.Link(filepath.Join(linkDest, rel), target) == nil {
					return nil
				}
				// Cross-device or already-present; fall through to copy.
			}
			if err := copyFile(path, target, info); err != nil {
				record(err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("native replication: %w", err)
	}

	if len(walkErrs) > 0 {
		return fmt.Errorf("native replication: %w", errors.Join(walkErrs...))
	}
	return nil
}

// linkUnchanged reports whether the link-dest counterpart matches size and
// mtime, the same cheap test rsync uses before hard-linking.
func linkUnchanged(prevPath string, info fs.FileInfo) bool {
	prev, err := os.Lstat(prevPath)
	if err != nil || !prev.Mode().IsRegular() {
		return false
	}
	return prev.Size() == info.Size() && prev.ModTime().Equal(info.ModTime())
}

// copyFile copies one regular file preserving mode and mtime. The mtime
// matters: the next run's link-dest comparison depends on it.
func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// selectReplicator resolves the configured engine. auto prefers rsync when
// present on PATH.
func selectReplicator(name string, exec execx.Executor, timeout time.Duration) Replicator {
	switch name {
	case "rsync":
		return &RsyncReplicator{Exec: exec, Timeout: timeout}
	case "native":
		return &NativeReplicator{}
	default:
		if _, err := exec.LookPath("rsync"); err == nil {
			return &RsyncReplicator{Exec: exec, Timeout: timeout}
		}
		return &NativeReplicator{}
	}
}

// FakeReplicator is a func-field test double.
type FakeReplicator struct {
	ReplicateFunc func(ctx context.Context, src, dst, linkDest string) error

	// Calls records every invocation as src, dst, linkDest triples.
	Calls [][3]string
}

// Name implements Replicator.
func (f *FakeReplicator) Name() string { return "fake" }

// Replicate implements Replicator.
func (f *FakeReplicator) Replicate(ctx context.Context, src, dst, linkDest string) error {
	f.Calls = append(f.Calls, [3]string{src, dst, linkDest})
	if f.ReplicateFunc != nil {
		return f.ReplicateFunc(ctx, src, dst, linkDest)
	}
	return nil
}
