package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/clinimeta/dicomflow/internal/domain/executions"
)

type ExecutionRepository struct{ db *sql.DB }

func NewExecutionRepository(db *sql.DB) *ExecutionRepository { return &ExecutionRepository{db: db} }

// Save insert/update one execution record.
func (r *ExecutionRepository) Save(ctx context.Context, e *domain.Execution) error {
	const q = `
INSERT INTO pipeline_executions
(id, storage_location, status, current_state, attempts,
 output_key, pseudonym_id, error, cause, started_at, stopped_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 current_state = EXCLUDED.current_state,
 attempts = EXCLUDED.attempts,
 output_key = EXCLUDED.output_key,
 pseudonym_id = EXCLUDED.pseudonym_id,
 error = EXCLUDED.error,
 cause = EXCLUDED.cause,
 stopped_at = EXCLUDED.stopped_at;`

	started := e.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	var stopped any
	if !e.StoppedAt.IsZero() {
		stopped = e.StoppedAt
	}

	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.StorageLocation, string(e.Status), e.CurrentState, e.Attempts,
		e.OutputKey, e.PseudonymID, e.Error, e.Cause, started, stopped,
	)
	return err
}

const selectColumns = `
SELECT id, storage_location, status, current_state, attempts,
       output_key, pseudonym_id, error, cause, started_at, stopped_at
FROM pipeline_executions
`

// Get by ID.
func (r *ExecutionRepository) Get(ctx context.Context, id domain.ID) (*domain.Execution, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`WHERE id=$1 LIMIT 1;`, id)
	return scanExecution(row)
}

// Latest executions, newest first.
func (r *ExecutionRepository) Latest(ctx context.Context, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+`ORDER BY started_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListByStatus filters by tracking status, newest first.
func (r *ExecutionRepository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		selectColumns+`WHERE status=$1 ORDER BY started_at DESC LIMIT $2;`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var e domain.Execution
	var status string
	var stopped sql.NullTime
	if err := row.Scan(
		&e.ID, &e.StorageLocation, &status, &e.CurrentState, &e.Attempts,
		&e.OutputKey, &e.PseudonymID, &e.Error, &e.Cause, &e.StartedAt, &stopped,
	); err != nil {
		return nil, err
	}
	e.Status = domain.Status(status)
	if stopped.Valid {
		e.StoppedAt = stopped.Time
	}
	return &e, nil
}

func scanExecutions(rows *sql.Rows) ([]*domain.Execution, error) {
	var out []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
