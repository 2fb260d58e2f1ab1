package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/storkeep/storkeep/pkg/storkeep/logging"
)

// TestInit tests the Init function with various configurations.
// Note: these tests modify global state and cannot run in parallel.
func TestInit(t *testing.T) {
	validDir := t.TempDir()
	debugDir := t.TempDir()
	componentsDir := t.TempDir()
	invalidDir := t.TempDir()

	tests := []struct {
		name    string
		cfg     logging.Config
		wantErr bool
	}{
		{
			name: "valid config with defaults",
			cfg: logging.Config{
				Level: "info",
				Path:  filepath.Join(validDir, "test.log"),
			},
			wantErr: false,
		},
		{
			name: "valid config with debug level",
			cfg: logging.Config{
				Level: "debug",
				Path:  filepath.Join(debugDir, "debug.log"),
			},
			wantErr: false,
		},
		{
			name: "valid config with component overrides",
			cfg: logging.Config{
				Level: "info",
				Path:  filepath.Join(componentsDir, "components.log"),
				Components: map[string]string{
					"backup": "debug",
					"health": "warn",
				},
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			cfg: logging.Config{
				Level: "invalid",
				Path:  filepath.Join(invalidDir, "invalid.log"),
			},
			wantErr: true,
		},
		{
			name: "invalid component level",
			cfg: logging.Config{
				Level:      "info",
				Path:       filepath.Join(invalidDir, "badcomp.log"),
				Components: map[string]string{"backup": "loud"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := logging.Init(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if err == nil {
				if closeErr := logging.Close(); closeErr != nil {
					t.Errorf("Close() error = %v", closeErr)
				}
			}
		})
	}
}

func TestGet_BeforeInit(t *testing.T) {
	// Before Init, loggers are silent but usable.
	logger := logging.Get("uninitialized")
	if logger == nil {
		t.Fatal("Get() returned nil before Init")
	}
	logger.Info("this message goes nowhere")
}

func TestGet_ReturnsSameLogger(t *testing.T) {
	tempDir := t.TempDir()
	cfg := logging.Config{
		Level: "info",
		Path:  filepath.Join(tempDir, "test.log"),
	}

	if err := logging.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer func() {
		if err := logging.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	a := logging.Get("backup")
	b := logging.Get("backup")
	if a != b {
		t.Error("Get() returned different loggers for the same component")
	}
}

func TestLogger_WritesToFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	if err := logging.Init(logging.Config{Level: "debug", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logger := logging.Get("links")
	logger.Info("symlink created", "link", "/opt/app/models")
	logger.Warn("target missing", "target", "/mnt/storage/models")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	text := string(content)
	if !strings.Contains(text, "symlink created") {
		t.Errorf("log file missing info message, got: %s", text)
	}
	if !strings.Contains(text, "target missing") {
		t.Errorf("log file missing warn message, got: %s", text)
	}
	if !strings.Contains(text, "links") {
		t.Errorf("log file missing component prefix, got: %s", text)
	}
}

func TestLogger_ComponentLevelFiltering(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	cfg := logging.Config{
		Level: "debug",
		Path:  logPath,
		Components: map[string]string{
			"history": "error",
		},
	}
	if err := logging.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("history").Info("filtered message")
	logging.Get("history").Error("kept message")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	text := string(content)
	if strings.Contains(text, "filtered message") {
		t.Error("info message logged despite error-level component override")
	}
	if !strings.Contains(text, "kept message") {
		t.Error("error message missing from log")
	}
}

func TestLogger_With(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")

	if err := logging.Init(logging.Config{Level: "info", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("backup").With("generation", "data-20260815-020000").Info("verified")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(content), "data-20260815-020000") {
		t.Errorf("log file missing With() context, got: %s", string(content))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"info", logging.LevelInfo, false},
		{"warn", logging.LevelWarn, false},
		{"warning", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"ERROR", logging.LevelError, false},
		{"fatal", logging.LevelInfo, true},
		{"", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level logging.Level
		want  string
	}{
		{logging.LevelDebug, "debug"},
		{logging.LevelInfo, "info"},
		{logging.LevelWarn, "warn"},
		{logging.LevelError, "error"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}
