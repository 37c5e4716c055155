package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtTrace bool
	}{
		{"info filters debug", "info", false, false},
		{"debug passes debug", "debug", true, false},
		{"trace passes both", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug visible = %v, want %v (buf: %q)", got, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Log(context.Background(), LevelTrace, "trace message")
			out := buf.String()
			if got := strings.Contains(out, "trace message"); got != tt.logAtTrace {
				t.Errorf("trace visible = %v, want %v (buf: %q)", got, tt.logAtTrace, out)
			}
			if tt.logAtTrace && !strings.Contains(out, "level=TRACE") {
				t.Errorf("trace level not labelled: %q", out)
			}
		})
	}
}

func TestNewRunLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	rl := NewRunLogger(dir, "info")
	if rl != nil {
		t.Error("expected nil RunLogger at info level")
	}

	rl.RunStarted(2, 2, 150, 0.025)
	rl.Spike(6, "cell1")

	if _, err := os.Stat(filepath.Join(dir, RunLogFile)); err == nil {
		t.Error("runs.jsonl should not exist at info level")
	}
}

func readEntries(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, RunLogFile))
	if err != nil {
		t.Fatalf("read %s: %v", RunLogFile, err)
	}
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestRunLogger_DebugSkipsDeliveries(t *testing.T) {
	dir := t.TempDir()
	rl := NewRunLogger(dir, "debug")
	if rl == nil {
		t.Fatal("expected RunLogger at debug level")
	}
	defer rl.Close()

	rl.RunStarted(2, 2, 25, 0.025)
	rl.Spike(6.1, "cell1")
	rl.Delivery(16.1, "nc0", "cell2", 1)
	rl.RunFinished(1000, 1, nil)

	entries := readEntries(t, dir)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3: %v", len(entries), entries)
	}
	wantEvents := []string{"run_start", "spike", "run_finish"}
	for i, want := range wantEvents {
		if entries[i]["event"] != want {
			t.Errorf("entry %d event = %v, want %s", i, entries[i]["event"], want)
		}
		if _, ok := entries[i]["time"]; !ok {
			t.Errorf("entry %d missing time", i)
		}
	}
	if entries[1]["source"] != "cell1" {
		t.Errorf("spike source = %v", entries[1]["source"])
	}
	if _, ok := entries[2]["error"]; ok {
		t.Error("successful run should not carry an error field")
	}
}

func TestRunLogger_TraceIncludesDeliveries(t *testing.T) {
	dir := t.TempDir()
	rl := NewRunLogger(dir, "trace")
	defer rl.Close()

	rl.Delivery(16.1, "nc0", "cell2", 0.5)
	rl.RunFinished(10, 0, errors.New("voltage diverged"))

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["event"] != "delivery" || entries[0]["weight"] != 0.5 {
		t.Errorf("delivery entry = %v", entries[0])
	}
	if entries[1]["error"] != "voltage diverged" {
		t.Errorf("finish error = %v", entries[1]["error"])
	}
}

func TestRunLogger_NilSafety(t *testing.T) {
	var rl *RunLogger
	rl.Log(map[string]any{"event": "should_not_panic"})
	rl.RunStarted(1, 0, 1, 1)
	rl.Delivery(1, "nc0", "cell1", 1)
	rl.Close()
}

func TestRunLogger_DoesNotMutateCallerMap(t *testing.T) {
	dir := t.TempDir()
	rl := NewRunLogger(dir, "debug")
	defer rl.Close()

	event := map[string]any{"event": "test"}
	rl.Log(event)

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map")
	}
}

func TestRunLogger_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	rl := NewRunLogger(dir, "debug")
	rl.Close()
	rl.Log(map[string]any{"event": "after_close"})
}

func TestNewRunLogger_CreatesDirWithPermissions(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "sub", "dir")
	rl := NewRunLogger(nested, "debug")
	if rl == nil {
		t.Fatal("expected non-nil RunLogger when dir needs creation")
	}
	defer rl.Close()

	rl.Spike(1, "cell1")

	info, err := os.Stat(filepath.Join(nested, RunLogFile))
	if err != nil {
		t.Fatalf("runs.jsonl should exist: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
