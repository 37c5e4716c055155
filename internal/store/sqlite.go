package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/cellnet/internal/recording"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBFileName is the database file inside the data directory.
const DBFileName = "runs.db"

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore on a SQLite database.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (creating if needed) dir/runs.db.
func NewSQLiteRunStore(dir string) (*SQLiteRunStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("sqlite store needs a data directory")
	}
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// SaveRun writes the run and all of its samples in one transaction. Saving
// an existing id replaces it.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run RunRecord) (string, error) {
	if err := prepare(&run); err != nil {
		return "", err
	}

	var params []byte
	if run.Params != nil {
		var err error
		if params, err = json.Marshal(run.Params); err != nil {
			return "", fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return "", fmt.Errorf("failed to replace run %s: %w", run.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, experiment, created_at, tstop, dt, cells, connections, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Experiment, run.CreatedAt.UTC().Format(timeLayout),
		run.TStop, run.DT, run.Cells, run.Connections, nullableJSON(params))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertTraces(ctx, tx, run.ID, run.Traces); err != nil {
		return "", err
	}
	if err := insertSpikes(ctx, tx, run.ID, run.Spikes); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

func insertTraces(ctx context.Context, tx *sql.Tx, runID string, traces []recording.Trace) error {
	if len(traces) == 0 {
		return nil
	}

	traceStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO traces (run_id, trace_idx, cell_id, observable) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trace insert: %w", err)
	}
	defer traceStmt.Close()

	sampleStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO voltage_samples (run_id, trace_idx, seq, t, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()

	for i, tr := range traces {
		if _, err := traceStmt.ExecContext(ctx, runID, i, tr.CellID, string(tr.Observable)); err != nil {
			return fmt.Errorf("failed to insert trace %d: %w", i, err)
		}
		for seq, smp := range tr.Samples {
			if _, err := sampleStmt.ExecContext(ctx, runID, i, seq, smp.T, smp.V); err != nil {
				return fmt.Errorf("failed to insert sample %d of trace %d: %w", seq, i, err)
			}
		}
	}
	return nil
}

func insertSpikes(ctx context.Context, tx *sql.Tx, runID string, spikes []recording.SpikeEvent) error {
	if len(spikes) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO spikes (run_id, seq, t, source, source_idx) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare spike insert: %w", err)
	}
	defer stmt.Close()

	for seq, ev := range spikes {
		if _, err := stmt.ExecContext(ctx, runID, seq, ev.T, ev.Source, ev.ID); err != nil {
			return fmt.Errorf("failed to insert spike %d: %w", seq, err)
		}
	}
	return nil
}

// GetRun loads a run with its traces and spikes.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, experiment, created_at, tstop, dt, cells, connections, params
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	if run.Traces, err = s.loadTraces(ctx, id); err != nil {
		return nil, err
	}
	if run.Spikes, err = s.loadSpikes(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.experiment, r.created_at, r.tstop, r.dt, r.cells, r.connections, r.params,
		       (SELECT COUNT(*) FROM spikes sp WHERE sp.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunSummary, 0)
	for rows.Next() {
		var (
			sum       RunSummary
			createdAt string
			params    sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Experiment, &createdAt, &sum.TStop, &sum.DT,
			&sum.Cells, &sum.Connections, &params, &sum.SpikeCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if sum.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("run %s: bad created_at %q: %w", sum.ID, createdAt, err)
		}
		if sum.Params, err = decodeParams(params); err != nil {
			return nil, fmt.Errorf("run %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteRunStore) Traces(ctx context.Context, runID string) ([]recording.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.loadTraces(ctx, runID)
}

func (s *SQLiteRunStore) Spikes(ctx context.Context, runID string) ([]recording.SpikeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.loadSpikes(ctx, runID)
}

// DeleteRun removes a run; traces, samples and spikes go with it.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteRunStore) requireRun(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return notFound(id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteRunStore) loadTraces(ctx context.Context, runID string) ([]recording.Trace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_id, observable FROM traces WHERE run_id = ? ORDER BY trace_idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	var traces []recording.Trace
	for rows.Next() {
		var tr recording.Trace
		var obs string
		if err := rows.Scan(&tr.CellID, &obs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		tr.Observable = recording.Observable(obs)
		traces = append(traces, tr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(traces) == 0 {
		return nil, nil
	}

	srows, err := s.db.QueryContext(ctx,
		`SELECT trace_idx, t, value FROM voltage_samples WHERE run_id = ? ORDER BY trace_idx, seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer srows.Close()

	for srows.Next() {
		var idx int
		var smp recording.Sample
		if err := srows.Scan(&idx, &smp.T, &smp.V); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if idx < 0 || idx >= len(traces) {
			return nil, fmt.Errorf("sample references missing trace %d", idx)
		}
		traces[idx].Samples = append(traces[idx].Samples, smp)
	}
	return traces, srows.Err()
}

func (s *SQLiteRunStore) loadSpikes(ctx context.Context, runID string) ([]recording.SpikeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t, source, source_idx FROM spikes WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spikes: %w", err)
	}
	defer rows.Close()

	var spikes []recording.SpikeEvent
	for rows.Next() {
		var ev recording.SpikeEvent
		if err := rows.Scan(&ev.T, &ev.Source, &ev.ID); err != nil {
			return nil, fmt.Errorf("failed to scan spike: %w", err)
		}
		spikes = append(spikes, ev)
	}
	return spikes, rows.Err()
}

func scanRun(row *sql.Row) (*RunRecord, error) {
	var (
		run       RunRecord
		createdAt string
		params    sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Experiment, &createdAt, &run.TStop, &run.DT,
		&run.Cells, &run.Connections, &params); err != nil {
		return nil, err
	}
	var err error
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	if run.Params, err = decodeParams(params); err != nil {
		return nil, err
	}
	return &run, nil
}

func decodeParams(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw.String), &params); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	return params, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
