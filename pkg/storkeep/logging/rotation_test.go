package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storkeep/storkeep/pkg/storkeep/logging"
)

func TestRotatingWriterRoundTrip(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "storkeep.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    1024,
		MaxAge:     7,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	data := []byte("link verified: /opt/app/models\n")
	n, err := writer.Write(data)
	if err != nil {
		t.Errorf("Write() error = %v", err)
	}
	if n != len(data) {
		t.Errorf("Write() returned %d, want %d", n, len(data))
	}

	if err := writer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("file content = %q, want %q", content, data)
	}
}

func TestRotatingWriterCreatesParentDirs(t *testing.T) {
	t.Parallel()

	nestedPath := filepath.Join(t.TempDir(), "state", "storkeep", "storkeep.log")

	writer, err := logging.NewRotatingWriter(nestedPath, logging.RotationConfig{MaxSize: 1024})
	if err != nil {
		t.Fatalf("NewRotatingWriter() should create parent dirs, error = %v", err)
	}
	if _, err := writer.Write([]byte("started\n")); err != nil {
		t.Errorf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if _, err := os.Stat(nestedPath); os.IsNotExist(err) {
		t.Error("expected log file in nested directory")
	}
}

func TestRotationBySize(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "monitor.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    512,
		MaxBackups: 5,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	line := strings.Repeat("d", 60) + "\n"
	for i := 0; i < 20; i++ {
		if _, err := writer.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}

	var current, rotated int
	for _, e := range entries {
		name := e.Name()
		switch {
		case name == "monitor.log":
			current++
		case strings.HasPrefix(name, "monitor.") && strings.HasSuffix(name, ".log"):
			rotated++
		}
	}

	if current != 1 {
		t.Errorf("expected the active monitor.log to exist, found %d", current)
	}
	if rotated == 0 {
		t.Error("expected at least one rotated file named monitor.<timestamp>.log")
	}
}

func TestRotationEnforcesMaxBackups(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "trimmed.log")

	maxBackups := 2
	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    256,
		MaxBackups: maxBackups,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	line := strings.Repeat("b", 40) + "\n"
	for i := 0; i < 50; i++ {
		if _, err := writer.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("failed to read temp dir: %v", err)
	}

	total := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "trimmed") {
			total++
		}
	}

	// Active file plus at most MaxBackups rotated ones.
	if total > maxBackups+1 {
		t.Errorf("found %d log files, want at most %d", total, maxBackups+1)
	}
}

func TestRotationCleanupByAge(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	stale := time.Now().Add(-72 * time.Hour)

	oldFiles := []string{
		filepath.Join(tempDir, "aged.2026-08-19-020000.log"),
		filepath.Join(tempDir, "aged.2026-08-20-020000.log"),
	}
	for _, f := range oldFiles {
		if err := os.WriteFile(f, []byte("stale\n"), 0o644); err != nil {
			t.Fatalf("failed to seed old file: %v", err)
		}
		if err := os.Chtimes(f, stale, stale); err != nil {
			t.Fatalf("failed to backdate file: %v", err)
		}
	}

	// Cleanup runs at startup, so constructing the writer is enough.
	writer, err := logging.NewRotatingWriter(filepath.Join(tempDir, "aged.log"), logging.RotationConfig{
		MaxSize: 10 * 1024 * 1024,
		MaxAge:  1,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, f := range oldFiles {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed by age cleanup", filepath.Base(f))
		}
	}
}

func TestRotationZeroMaxSizeUsesDefault(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "defaults.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	// A small write must not rotate under the 10MB default.
	if _, err := writer.Write([]byte(strings.Repeat("k", 2048))); err != nil {
		t.Errorf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("expected active log file, stat error = %v", err)
	}
}

func TestRotationConcurrentWrites(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "concurrent.log")

	// Large limit so no rotation interferes with the line count.
	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize: 10 * 1024 * 1024,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	const goroutines = 8
	const writes = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			line := strings.Repeat("w", 40) + "\n"
			for j := 0; j < writes; j++ {
				if _, err := writer.Write([]byte(line)); err != nil {
					t.Errorf("Write() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != goroutines*writes {
		t.Errorf("expected %d lines, got %d", goroutines*writes, len(lines))
	}
}
