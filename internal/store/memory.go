package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nvandessel/cellnet/internal/recording"
)

// MemoryRunStore implements RunStore in process memory for tests and
// throwaway sessions.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewMemoryRunStore creates an empty in-memory store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]RunRecord)}
}

// SaveRun stores a deep copy of run.
func (s *MemoryRunStore) SaveRun(ctx context.Context, run RunRecord) (string, error) {
	if err := prepare(&run); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = copyRun(run)
	return run.ID, nil
}

// GetRun returns a copy of the stored run.
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, notFound(id)
	}
	out := copyRun(run)
	return &out, nil
}

// ListRuns returns summaries ordered by creation time, newest first.
func (s *MemoryRunStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.Summary())
	}
	sortSummaries(out)
	return out, nil
}

func (s *MemoryRunStore) Traces(ctx context.Context, runID string) ([]recording.Trace, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Traces, nil
}

func (s *MemoryRunStore) Spikes(ctx context.Context, runID string) ([]recording.SpikeEvent, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Spikes, nil
}

// DeleteRun removes a run. Deleting an unknown id reports ErrRunNotFound.
func (s *MemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return notFound(id)
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op.
func (s *MemoryRunStore) Close() error { return nil }

// sortSummaries orders newest first, breaking ties by id so listings are
// stable.
func sortSummaries(runs []RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}

func copyRun(run RunRecord) RunRecord {
	out := run
	if run.Params != nil {
		out.Params = make(map[string]any, len(run.Params))
		for k, v := range run.Params {
			out.Params[k] = v
		}
	}
	if run.Traces != nil {
		out.Traces = make([]recording.Trace, len(run.Traces))
		for i, tr := range run.Traces {
			out.Traces[i] = tr
			out.Traces[i].Samples = append([]recording.Sample(nil), tr.Samples...)
		}
	}
	if run.Spikes != nil {
		out.Spikes = append([]recording.SpikeEvent(nil), run.Spikes...)
	}
	return out
}
