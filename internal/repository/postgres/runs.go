// Package postgres stores the cycle history in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // driver registration

	"github.com/ignite/punchlist-monitor/internal/domain"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("postgres: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS punch_cycle_runs (
	run_id      UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	state       TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	error       TEXT,
	lists       JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS punch_cycle_runs_started_idx ON punch_cycle_runs (started_at DESC);
`

// Open connects to url with the pq driver and checks the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// RunRepo implements the cycle history against PostgreSQL.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a Postgres-backed run repository.
func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

// EnsureSchema creates the history table if needed.
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create run schema: %w", err)
	}
	return nil
}

// Save inserts or replaces a finished cycle.
func (r *RunRepo) Save(ctx context.Context, res domain.CycleResult) error {
	lists, err := json.Marshal(res.Lists)
	if err != nil {
		return fmt.Errorf("encode lists: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO punch_cycle_runs
			(run_id, kind, started_at, finished_at, state, success, error, lists)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			state = EXCLUDED.state,
			success = EXCLUDED.success,
			error = EXCLUDED.error,
			lists = EXCLUDED.lists
	`, res.RunID, string(res.Kind), res.StartedAt, nullTime(res), string(res.State), res.Success, res.Error, lists)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// Get returns one run.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.CycleResult, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, kind, started_at, finished_at, state, success, COALESCE(error,''), lists
		FROM punch_cycle_runs
		WHERE run_id = $1
	`, id)
	res, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return res, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepo) List(ctx context.Context, limit int) ([]domain.CycleResult, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, kind, started_at, finished_at, state, success, COALESCE(error,''), lists
		FROM punch_cycle_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleResult
	for rows.Next() {
		res, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*domain.CycleResult, error) {
	var (
		res      domain.CycleResult
		kind     string
		state    string
		finished sql.NullTime
		lists    []byte
	)
	if err := s.Scan(&res.RunID, &kind, &res.StartedAt, &finished, &state, &res.Success, &res.Error, &lists); err != nil {
		return nil, err
	}
	res.Kind = domain.CycleKind(kind)
	res.State = domain.CycleState(state)
	if finished.Valid {
		res.FinishedAt = finished.Time
	}
	if len(lists) > 0 {
		if err := json.Unmarshal(lists, &res.Lists); err != nil {
			return nil, fmt.Errorf("decode lists: %w", err)
		}
	}
	return &res, nil
}

func nullTime(res domain.CycleResult) sql.NullTime {
	return sql.NullTime{Time: res.FinishedAt, Valid: !res.FinishedAt.IsZero()}
}
