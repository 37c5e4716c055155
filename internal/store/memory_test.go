package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRunStore_CopiesOnSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRunStore()

	run := sampleRun("ring", time.Time{})
	id, err := s.SaveRun(ctx, run)
	if err != nil {
		t.Fatal(err)
	}

	// mutating the caller's record after saving must not leak in
	run.Traces[0].Samples[0].V = 100
	run.Spikes[0].T = 99
	run.Params["amplitude"] = 9.9

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Traces[0].Samples[0].V != -65 || got.Spikes[0].T != 6.475 || got.Params["amplitude"] != 0.6 {
		t.Errorf("stored run was mutated through the caller's slices: %+v", got)
	}

	// nor may mutating a returned record
	got.Traces[0].Samples[0].V = 100
	again, _ := s.GetRun(ctx, id)
	if again.Traces[0].Samples[0].V != -65 {
		t.Error("GetRun() returned shared sample storage")
	}
}

func TestMemoryRunStore_CreatedAtFilled(t *testing.T) {
	s := NewMemoryRunStore()
	before := time.Now().UTC()
	id, err := s.SaveRun(context.Background(), sampleRun("threshold", time.Time{}))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetRun(context.Background(), id)
	if got.CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %v, want >= %v", got.CreatedAt, before)
	}
}

func TestMemoryRunStore_Close(t *testing.T) {
	if err := NewMemoryRunStore().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
