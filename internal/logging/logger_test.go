package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"servermon/internal/config"
)

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New(config.Global{LogLevel: "chatty"})
	if err == nil || !strings.Contains(err.Error(), "log_level") {
		t.Fatalf("want a log_level error, got %v", err)
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servermon.log")
	log, err := New(config.Global{
		LogLevel:       "info",
		LogFile:        path,
		LogMaxSizeMB:   5,
		LogBackupCount: 1,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Info("probe_started")
	log.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(b)
	if !strings.Contains(out, "probe_started") || !strings.Contains(out, `"ts"`) {
		t.Fatalf("log line wrong: %s", out)
	}
}

func TestNew_DebugFilteredAtInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servermon.log")
	log, err := New(config.Global{LogLevel: "info", LogFile: path, LogMaxSizeMB: 5, LogBackupCount: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Debug("noise")
	log.Sync()

	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "noise") {
		t.Fatalf("debug must be filtered at info level: %s", b)
	}
}
