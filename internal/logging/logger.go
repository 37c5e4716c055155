// Package logging provides leveled logging and run tracing for cellnet.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A RunLogger for structured JSONL run traces (.cellnet/runs.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every
// synaptic delivery is logged in addition to spikes.
const LevelTrace = slog.LevelDebug - 4

// RunLogFile is the name of the JSONL run trace inside the data directory.
const RunLogFile = "runs.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RunLogger appends structured run events to a JSONL file.
// It is safe for concurrent use. A nil RunLogger is safe to use;
// all methods are no-ops on nil receiver.
type RunLogger struct {
	mu    sync.Mutex
	file  *os.File
	trace bool
}

// NewRunLogger creates a run logger writing to dir/runs.jsonl.
// At "info" level (the default) it returns nil and no file is created.
// At "debug" spikes are logged; "trace" adds every delivery.
// Returns nil if the file cannot be opened.
func NewRunLogger(dir string, level string) *RunLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, RunLogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &RunLogger{file: f, trace: lvl <= LevelTrace}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
func (rl *RunLogger) Log(event map[string]any) {
	if rl == nil || rl.file == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = rl.file.Write(data)
}

// RunStarted records the start of a simulation run.
func (rl *RunLogger) RunStarted(cells, connections int, tstop, dt float64) {
	rl.Log(map[string]any{
		"event":       "run_start",
		"cells":       cells,
		"connections": connections,
		"tstop":       tstop,
		"dt":          dt,
	})
}

// RunFinished records the end of a run. err is nil on success.
func (rl *RunLogger) RunFinished(ticks, spikes int, err error) {
	ev := map[string]any{
		"event":  "run_finish",
		"ticks":  ticks,
		"spikes": spikes,
	}
	if err != nil {
		ev["error"] = err.Error()
	}
	rl.Log(ev)
}

// Spike records a threshold crossing.
func (rl *RunLogger) Spike(t float64, source string) {
	rl.Log(map[string]any{"event": "spike", "t": t, "source": source})
}

// Delivery records a synaptic event arriving at its target. Only written at
// trace level.
func (rl *RunLogger) Delivery(t float64, conn, target string, weight float64) {
	if rl == nil || !rl.trace {
		return
	}
	rl.Log(map[string]any{
		"event":  "delivery",
		"t":      t,
		"conn":   conn,
		"target": target,
		"weight": weight,
	})
}

// Close closes the underlying file.
func (rl *RunLogger) Close() {
	if rl == nil || rl.file == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.file.Close()
	rl.file = nil
}
