// Package store defines the RunStore interface for persisting simulation
// runs: their parameters, recorded traces and spike streams.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/cellnet/internal/recording"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// Backend names accepted by NewRunStore.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// RunRecord is one saved simulation run.
type RunRecord struct {
	ID          string                 `json:"id"`
	Experiment  string                 `json:"experiment"`
	CreatedAt   time.Time              `json:"created_at"`
	TStop       float64                `json:"tstop"`
	DT          float64                `json:"dt"`
	Cells       int                    `json:"cells"`
	Connections int                    `json:"connections"`
	Params      map[string]any         `json:"params,omitempty"`
	Traces      []recording.Trace      `json:"traces,omitempty"`
	Spikes      []recording.SpikeEvent `json:"spikes,omitempty"`
}

// Summary returns the record without its recorded data.
func (r RunRecord) Summary() RunSummary {
	return RunSummary{
		ID:          r.ID,
		Experiment:  r.Experiment,
		CreatedAt:   r.CreatedAt,
		TStop:       r.TStop,
		DT:          r.DT,
		Cells:       r.Cells,
		Connections: r.Connections,
		SpikeCount:  len(r.Spikes),
		Params:      r.Params,
	}
}

// RunSummary is the listing form of a run.
type RunSummary struct {
	ID          string         `json:"id"`
	Experiment  string         `json:"experiment"`
	CreatedAt   time.Time      `json:"created_at"`
	TStop       float64        `json:"tstop"`
	DT          float64        `json:"dt"`
	Cells       int            `json:"cells"`
	Connections int            `json:"connections"`
	SpikeCount  int            `json:"spike_count"`
	Params      map[string]any `json:"params,omitempty"`
}

// RunStore persists runs.
type RunStore interface {
	// SaveRun stores a run and returns its id. An empty ID is replaced by a
	// new UUID and a zero CreatedAt by the current time.
	SaveRun(ctx context.Context, run RunRecord) (string, error)

	// GetRun returns the full run or an error wrapping ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)

	// Traces returns the recorded traces of a run in recording order.
	Traces(ctx context.Context, runID string) ([]recording.Trace, error)

	// Spikes returns the spike events of a run in time order.
	Spikes(ctx context.Context, runID string) ([]recording.SpikeEvent, error)

	// DeleteRun removes a run and its data.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}

// NewRunStore opens the backend named kind. dir is the data directory used by
// persistent backends.
func NewRunStore(kind, dir string) (RunStore, error) {
	switch kind {
	case BackendMemory:
		return NewMemoryRunStore(), nil
	case BackendSQLite, "":
		return NewSQLiteRunStore(dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

// prepare fills in the id and creation time of a run about to be saved.
func prepare(run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	} else if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("run id %q is not a UUID: %w", run.ID, err)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrRunNotFound, id)
}
