package store

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestExportImportJSONL(t *testing.T) {
	ctx := context.Background()
	src := NewMemoryRunStore()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]string, 0, 2)
	for i, exp := range []string{"threshold", "ring"} {
		id, err := src.SaveRun(ctx, sampleRun(exp, base.Add(time.Duration(i)*time.Hour)))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, src, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ExportJSONL() wrote %d runs, want 2", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], `"threshold"`) {
		t.Errorf("export should be oldest first, one run per line:\n%s", buf.String())
	}

	dst, err := NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Close()

	n, err = ImportJSONL(ctx, dst, &buf)
	if err != nil {
		t.Fatalf("ImportJSONL() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ImportJSONL() read %d runs, want 2", n)
	}
	for _, id := range ids {
		got, err := dst.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun(%s) error = %v", id, err)
		}
		if len(got.Traces) != 3 || len(got.Spikes) != 2 {
			t.Errorf("imported run %s has %d traces, %d spikes", id, len(got.Traces), len(got.Spikes))
		}
	}
}

func TestImportJSONL_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"malformed", "{\"id\":\n", "line 1"},
		{"missing id", "\n{\"experiment\":\"ring\"}\n", "line 2: run has no id"},
		{"bad id", "{\"id\":\"nope\"}\n", "not a UUID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ImportJSONL(context.Background(), NewMemoryRunStore(), strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ImportJSONL() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
