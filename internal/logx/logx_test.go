package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("component", "service"))
	log.Debug("armed", Int("alerts", 2), Err(errors.New("boom")))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["component"] != "service" || line["alerts"] != float64(2) || line["message"] != "armed" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if caller, _ := line["caller"].(string); !strings.HasPrefix(caller, "logx_test.go:") {
		t.Fatalf("unexpected caller: %v", line["caller"])
	}
}

func TestLevelFiltersLowerEvents(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) || !log.Enabled(LevelError) {
		t.Fatalf("unexpected enabled levels")
	}
}

func TestZeroAndNopLoggersAreSafe(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("expected zero logger")
	}
	zero.Error("dropped")
	Nop().With(String("k", "v")).Warn("dropped")
}

func TestServiceApplySwitchesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskd.log")
	svc, log := New(Config{Level: "info", Console: false})
	defer svc.Close()
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	if !log.Enabled(zerolog.DebugLevel) {
		t.Fatalf("expected derived logger to follow apply")
	}
	log.Debug("after apply")
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARNING", zerolog.InfoLevel) != zerolog.WarnLevel {
		t.Fatalf("expected warn")
	}
	if ParseLevel("loud", zerolog.InfoLevel) != zerolog.InfoLevel {
		t.Fatalf("expected fallback")
	}
}
