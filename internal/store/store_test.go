package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/cellnet/internal/recording"
)

func sampleRun(experiment string, created time.Time) RunRecord {
	return RunRecord{
		Experiment:  experiment,
		CreatedAt:   created,
		TStop:       25,
		DT:          0.025,
		Cells:       2,
		Connections: 2,
		Params:      map[string]any{"amplitude": 0.6, "label": "ring"},
		Traces: []recording.Trace{
			{CellID: "cell1", Observable: recording.ObserveVoltage, Samples: []recording.Sample{{T: 0, V: -65}, {T: 0.025, V: -64.9}}},
			{CellID: "cell2", Observable: recording.ObserveSynapticCurrent},
			{CellID: "cell2", Observable: recording.ObserveVoltage, Samples: []recording.Sample{{T: 0, V: -65}}},
		},
		Spikes: []recording.SpikeEvent{
			{T: 6.475, Source: "cell1", ID: 0},
			{T: 17.95, Source: "cell2", ID: 1},
		},
	}
}

// backends returns a fresh store of every kind.
func backends(t *testing.T) map[string]RunStore {
	t.Helper()
	sq, err := NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]RunStore{
		BackendMemory: NewMemoryRunStore(),
		BackendSQLite: sq,
	}
}

func TestRunStore_SaveAndGet(t *testing.T) {
	for name, rs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
			want := sampleRun("ring", created)

			id, err := rs.SaveRun(ctx, want)
			if err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}
			if _, err := uuid.Parse(id); err != nil {
				t.Errorf("SaveRun() id %q is not a UUID", id)
			}

			got, err := rs.GetRun(ctx, id)
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if got.ID != id || got.Experiment != "ring" || got.Cells != 2 || got.Connections != 2 {
				t.Errorf("GetRun() = %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
			}
			if got.TStop != 25 || got.DT != 0.025 {
				t.Errorf("TStop, DT = %v, %v", got.TStop, got.DT)
			}
			if got.Params["amplitude"] != 0.6 || got.Params["label"] != "ring" {
				t.Errorf("Params = %v", got.Params)
			}

			if len(got.Traces) != 3 {
				t.Fatalf("len(Traces) = %d, want 3", len(got.Traces))
			}
			for i, tr := range got.Traces {
				w := want.Traces[i]
				if tr.CellID != w.CellID || tr.Observable != w.Observable || len(tr.Samples) != len(w.Samples) {
					t.Errorf("trace %d = %+v, want %+v", i, tr, w)
					continue
				}
				for j := range tr.Samples {
					if tr.Samples[j] != w.Samples[j] {
						t.Errorf("trace %d sample %d = %v, want %v", i, j, tr.Samples[j], w.Samples[j])
					}
				}
			}

			if len(got.Spikes) != 2 || got.Spikes[0] != want.Spikes[0] || got.Spikes[1] != want.Spikes[1] {
				t.Errorf("Spikes = %v, want %v", got.Spikes, want.Spikes)
			}
		})
	}
}

func TestRunStore_TracesAndSpikes(t *testing.T) {
	for name, rs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := rs.SaveRun(ctx, sampleRun("ring", time.Time{}))
			if err != nil {
				t.Fatal(err)
			}

			traces, err := rs.Traces(ctx, id)
			if err != nil {
				t.Fatalf("Traces() error = %v", err)
			}
			if len(traces) != 3 || traces[0].CellID != "cell1" || len(traces[0].Samples) != 2 {
				t.Errorf("Traces() = %+v", traces)
			}

			spikes, err := rs.Spikes(ctx, id)
			if err != nil {
				t.Fatalf("Spikes() error = %v", err)
			}
			if len(spikes) != 2 || spikes[0].Source != "cell1" || spikes[1].Source != "cell2" {
				t.Errorf("Spikes() = %v", spikes)
			}

			missing := uuid.NewString()
			if _, err := rs.Traces(ctx, missing); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("Traces(missing) error = %v, want ErrRunNotFound", err)
			}
			if _, err := rs.Spikes(ctx, missing); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("Spikes(missing) error = %v, want ErrRunNotFound", err)
			}
		})
	}
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	for name, rs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			for i, exp := range []string{"threshold", "disconnected", "ring"} {
				if _, err := rs.SaveRun(ctx, sampleRun(exp, base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatal(err)
				}
			}

			runs, err := rs.ListRuns(ctx)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			var got []string
			for _, r := range runs {
				got = append(got, r.Experiment)
				if r.SpikeCount != 2 {
					t.Errorf("run %s SpikeCount = %d, want 2", r.ID, r.SpikeCount)
				}
			}
			if strings.Join(got, ",") != "ring,disconnected,threshold" {
				t.Errorf("ListRuns() order = %v", got)
			}
		})
	}
}

func TestRunStore_Delete(t *testing.T) {
	for name, rs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := rs.SaveRun(ctx, sampleRun("ring", time.Time{}))
			if err != nil {
				t.Fatal(err)
			}

			if err := rs.DeleteRun(ctx, id); err != nil {
				t.Fatalf("DeleteRun() error = %v", err)
			}
			if _, err := rs.GetRun(ctx, id); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("GetRun() after delete error = %v, want ErrRunNotFound", err)
			}
			if err := rs.DeleteRun(ctx, id); !errors.Is(err, ErrRunNotFound) {
				t.Errorf("second DeleteRun() error = %v, want ErrRunNotFound", err)
			}
			runs, err := rs.ListRuns(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(runs) != 0 {
				t.Errorf("ListRuns() after delete = %d runs", len(runs))
			}
		})
	}
}

func TestRunStore_SaveRejectsBadID(t *testing.T) {
	for name, rs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			run := sampleRun("ring", time.Time{})
			run.ID = "not-a-uuid"
			if _, err := rs.SaveRun(context.Background(), run); err == nil {
				t.Error("SaveRun() accepted a non-UUID id")
			}
		})
	}
}

func TestRunStore_SaveReplacesExistingID(t *testing.T) {
	for name, rs := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun("ring", time.Time{})
			run.ID = uuid.NewString()
			if _, err := rs.SaveRun(ctx, run); err != nil {
				t.Fatal(err)
			}
			run.Experiment = "ring3"
			run.Spikes = run.Spikes[:1]
			if _, err := rs.SaveRun(ctx, run); err != nil {
				t.Fatal(err)
			}

			got, err := rs.GetRun(ctx, run.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Experiment != "ring3" || len(got.Spikes) != 1 {
				t.Errorf("GetRun() = %s with %d spikes, want ring3 with 1", got.Experiment, len(got.Spikes))
			}
			runs, _ := rs.ListRuns(ctx)
			if len(runs) != 1 {
				t.Errorf("ListRuns() = %d runs, want 1", len(runs))
			}
		})
	}
}

func TestNewRunStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{BackendMemory, false},
		{BackendSQLite, false},
		{"", false},
		{"lance", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			rs, err := NewRunStore(tt.kind, dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRunStore(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
			if rs != nil {
				rs.Close()
			}
		})
	}
}
