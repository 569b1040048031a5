// Package store records consensus runs in a SQLite database.
//
// Every invocation of the box or label aggregator can be stored as a run,
// identified by a random UUID, together with its instance table, consensus
// labels with posteriors, and the EM loss history.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/markup-consensus/internal/labelagg"
	"github.com/banshee-data/markup-consensus/internal/table"
	"github.com/banshee-data/markup-consensus/internal/timeutil"
)

// Run kinds.
const (
	KindBoxes  = "boxes"
	KindLabels = "labels"
)

// ErrRunNotFound is returned when a run id is not in the database.
var ErrRunNotFound = errors.New("run not found")

// Store wraps the run database.
type Store struct {
	*sql.DB

	// Clock stamps new runs.
	Clock timeutil.Clock
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	s, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB opens the database at path without touching its schema, for the
// migrate commands.
func OpenDB(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return &Store{DB: db, Clock: timeutil.RealClock{}}, nil
}

// Run is one recorded pipeline invocation.
type Run struct {
	ID         string
	Kind       string
	Aggregator string
	Params     json.RawMessage
	CreatedAt  time.Time
}

// RunSummary adds row counts to a Run.
type RunSummary struct {
	Run
	Instances  int
	Subtasks   int
	Iterations int
}

// SaveBoxesRun records a box aggregation run with its instance table. The
// run and its rows are written in one transaction.
func (s *Store) SaveBoxesRun(params interface{}, rows []table.InstanceRow) (*Run, error) {
	run, err := s.newRun(KindBoxes, "", params)
	if err != nil {
		return nil, err
	}
	err = s.inTx(func(tx *sql.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return err
		}
		return insertInstances(tx, run.ID, rows)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// SaveLabelsRun records a label aggregation run with its consensus labels,
// the posteriors in p and the loss history, all in one transaction.
func (s *Store) SaveLabelsRun(aggregator string, params interface{}, cs []labelagg.Consensus, p labelagg.Proba, history []float64) (*Run, error) {
	run, err := s.newRun(KindLabels, aggregator, params)
	if err != nil {
		return nil, err
	}
	err = s.inTx(func(tx *sql.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return err
		}
		if err := insertConsensus(tx, run.ID, cs, p); err != nil {
			return err
		}
		return insertLossHistory(tx, run.ID, history)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) newRun(kind, aggregator string, params interface{}) (*Run, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run params: %w", err)
	}
	return &Run{
		ID:         uuid.NewString(),
		Kind:       kind,
		Aggregator: aggregator,
		Params:     raw,
		CreatedAt:  s.Clock.Now().UTC(),
	}, nil
}

func insertRun(tx *sql.Tx, run *Run) error {
	_, err := tx.Exec(
		`INSERT INTO runs (run_id, kind, aggregator, params, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Aggregator, string(run.Params), run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func insertInstances(tx *sql.Tx, runID string, rows []table.InstanceRow) error {
	stmt, err := tx.Prepare(`
		INSERT INTO instances (run_id, subtask, task, marker_id, label, bbox_x, bbox_y, bbox_width, bbox_height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(runID, r.Subtask, r.Task, r.MarkerID, r.Label, r.BboxX, r.BboxY, r.BboxWidth, r.BboxHeight); err != nil {
			return fmt.Errorf("instance %s/%s: %w", r.Subtask, r.MarkerID, err)
		}
	}
	return nil
}

// insertConsensus stores consensus labels and, when p covers the subtask,
// its posterior as a label-to-probability JSON object.
func insertConsensus(tx *sql.Tx, runID string, cs []labelagg.Consensus, p labelagg.Proba) error {
	stmt, err := tx.Prepare(`INSERT INTO consensus (run_id, subtask, aggregated_label, posterior) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	rowOf := make(map[string]int, len(p.Subtasks))
	for i, st := range p.Subtasks {
		rowOf[st] = i
	}
	for _, c := range cs {
		posterior := map[string]float64{}
		if i, ok := rowOf[c.Subtask]; ok {
			for j, v := range p.P.RawRowView(i) {
				posterior[p.Labels[j]] = v
			}
		}
		raw, err := json.Marshal(posterior)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(runID, c.Subtask, c.Label, string(raw)); err != nil {
			return fmt.Errorf("consensus %s: %w", c.Subtask, err)
		}
	}
	return nil
}

// insertLossHistory stores the per-iteration ELBO, numbered from 1.
func insertLossHistory(tx *sql.Tx, runID string, history []float64) error {
	for i, v := range history {
		if _, err := tx.Exec(`INSERT INTO loss_history (run_id, iteration, elbo) VALUES (?, ?, ?)`, runID, i+1, v); err != nil {
			return fmt.Errorf("iteration %d: %w", i+1, err)
		}
	}
	return nil
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns() ([]RunSummary, error) {
	return s.queryRuns("")
}

func (s *Store) queryRuns(where string, args ...interface{}) ([]RunSummary, error) {
	rows, err := s.Query(`
		SELECT r.run_id, r.kind, r.aggregator, r.params, r.created_at,
			(SELECT COUNT(*) FROM instances i WHERE i.run_id = r.run_id),
			(SELECT COUNT(*) FROM consensus c WHERE c.run_id = r.run_id),
			(SELECT COUNT(*) FROM loss_history l WHERE l.run_id = r.run_id)
		FROM runs r `+where+`
		ORDER BY r.created_at DESC, r.run_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var params string
		var created int64
		if err := rows.Scan(&rs.ID, &rs.Kind, &rs.Aggregator, &params, &created, &rs.Instances, &rs.Subtasks, &rs.Iterations); err != nil {
			return nil, err
		}
		rs.Params = json.RawMessage(params)
		rs.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, rs)
	}
	return out, rows.Err()
}

// GetRun returns the run with the given id. ErrRunNotFound is returned when
// no such run exists.
func (s *Store) GetRun(runID string) (*RunSummary, error) {
	runs, err := s.queryRuns(`WHERE r.run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return &runs[0], nil
}

// Consensus returns the stored consensus labels of a run ordered by subtask.
func (s *Store) Consensus(runID string) ([]labelagg.Consensus, error) {
	rows, err := s.Query(`SELECT subtask, aggregated_label FROM consensus WHERE run_id = ? ORDER BY subtask`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []labelagg.Consensus
	for rows.Next() {
		var c labelagg.Consensus
		if err := rows.Scan(&c.Subtask, &c.Label); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LossHistory returns the stored ELBO values of a run in iteration order.
func (s *Store) LossHistory(runID string) ([]float64, error) {
	rows, err := s.Query(`SELECT elbo FROM loss_history WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
