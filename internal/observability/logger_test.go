package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sqlchat/sqlchat/internal/config"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.Profile = config.ProfileTest
	cfg.Service.Name = "sqlchat-api"
	cfg.Observability.LogLevel = slog.LevelInfo
	return cfg
}

func TestNewLoggerTagsServiceAndProfile(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.LogJSON = true
	var buf bytes.Buffer
	NewLogger(cfg, &buf).Info("question_answered")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if record["service"] != "sqlchat-api" || record["profile"] != "test" {
		t.Fatalf("record = %v", record)
	}
}

func TestFanoutLoggerWritesBothOutputs(t *testing.T) {
	var console, file bytes.Buffer
	logger := newFanoutLogger(testConfig(), &console, &file)
	logger.Info("question_failed", slog.String("stage", "sanitize"))
	logger.Debug("dropped")

	if !strings.Contains(console.String(), "stage=sanitize") {
		t.Fatalf("console output = %q", console.String())
	}
	var record map[string]any
	if err := json.Unmarshal(file.Bytes(), &record); err != nil {
		t.Fatalf("file output is not a single JSON record: %v (%q)", err, file.String())
	}
	if record["msg"] != "question_failed" {
		t.Fatalf("file record = %v", record)
	}
}

func TestOpenLoggerAppendsToFile(t *testing.T) {
	cfg := testConfig()
	cfg.Observability.LogFile = filepath.Join(t.TempDir(), "sqlchat.log")
	logger, closeFn, err := OpenLogger(cfg, nil)
	if err != nil {
		t.Fatalf("OpenLogger() error = %v", err)
	}
	logger.Warn("ready")
	if err := closeFn(); err != nil {
		t.Fatalf("close error = %v", err)
	}
	raw, err := os.ReadFile(cfg.Observability.LogFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"ready"`) {
		t.Fatalf("log file = %q", raw)
	}

	cfg.Observability.LogFile = filepath.Join(t.TempDir(), "missing", "dir", "x.log")
	if _, _, err := OpenLogger(cfg, nil); err == nil {
		t.Fatal("OpenLogger() expected error for unwritable path")
	}
}
