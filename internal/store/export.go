package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineSize bounds one JSONL record; a run carries every sample.
const maxLineSize = 64 * 1024 * 1024

// ExportJSONL writes every run in rs, oldest first, one JSON object per line.
func ExportJSONL(ctx context.Context, rs RunStore, w io.Writer) (int, error) {
	summaries, err := rs.ListRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	n := 0
	for i := len(summaries) - 1; i >= 0; i-- {
		run, err := rs.GetRun(ctx, summaries[i].ID)
		if err != nil {
			return n, err
		}
		if err := enc.Encode(run); err != nil {
			return n, fmt.Errorf("failed to encode run %s: %w", run.ID, err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush export: %w", err)
	}
	return n, nil
}

// ImportJSONL reads runs written by ExportJSONL and saves them into rs,
// keeping their ids. Blank lines are skipped; a malformed line aborts the
// import and reports its line number.
func ImportJSONL(ctx context.Context, rs RunStore, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum, n := 0, 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var run RunRecord
		if err := json.Unmarshal(line, &run); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if run.ID == "" {
			return n, fmt.Errorf("line %d: run has no id", lineNum)
		}
		if _, err := rs.SaveRun(ctx, run); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNum, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("scanner error: %w", err)
	}
	return n, nil
}
