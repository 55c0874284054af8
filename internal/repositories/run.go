package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
)

// ErrRunNotFound is returned when no live row matches an id.
var ErrRunNotFound = errors.New("sync run not found")

const runColumns = `id, sequence, kind, scope, operation, token, status, item_count, failed_units, error,
	started_at, finished_at, created_at, updated_at, deleted_at`

// RunRepository implements models.Repository[*models.SyncRun] for the sync run journal.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Record stores a finished run. It satisfies the engine's recorder interface.
func (r *RunRepository) Record(ctx context.Context, run *models.SyncRun) error {
	return r.create(ctx, run)
}

// Create inserts a new [models.SyncRun] with generated ID and sequence
func (r *RunRepository) Create(run *models.SyncRun) error {
	return r.create(context.Background(), run)
}

func (r *RunRepository) create(ctx context.Context, run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	run.SetID(id)
	run.SetSequence(sequence)

	query := `
		INSERT INTO sync_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`

	_, err = r.db.ExecContext(ctx, query,
		id,
		sequence,
		string(run.Kind),
		run.Scope,
		string(run.Operation),
		run.Token,
		string(run.Status),
		run.ItemCount,
		run.FailedUnits,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID, excluding soft-deleted rows
func (r *RunRepository) Get(id string) (*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE id = ? AND deleted_at IS NULL`
	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Update rewrites the outcome columns of an existing run
func (r *RunRepository) Update(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE sync_runs
		SET status = ?, item_count = ?, failed_units = ?, error = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(run.Status),
		run.ItemCount,
		run.FailedUnits,
		run.Error,
		run.FinishedAt,
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}
	return expectRow(result, run.ID())
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE sync_runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}
	return expectRow(result, id)
}

// List retrieves runs matching criteria, newest first.
//
// Supported criteria: "kind", "scope", "operation", "status" (strings) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.SyncRun, error) {
	query := `SELECT ` + runColumns + ` FROM sync_runs WHERE deleted_at IS NULL`
	args := []any{}

	for _, col := range []string{"kind", "scope", "operation", "status"} {
		if v, ok := criteria[col].(string); ok && v != "" {
			query += " AND " + col + " = ?"
			args = append(args, v)
		}
	}

	query += " ORDER BY sequence DESC"
	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Prune soft-deletes runs that started before cutoff and returns how many were removed.
func (r *RunRepository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`UPDATE sync_runs SET deleted_at = ? WHERE started_at < ? AND deleted_at IS NULL`, time.Now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync runs: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans one row from a [sql.Row] or [sql.Rows]
func scanRun(s scanner) (*models.SyncRun, error) {
	var (
		id, kind, scope, operation, token, status, errMsg string
		sequence, itemCount, failedUnits                  int
		startedAt, finishedAt, createdAt, updatedAt       time.Time
		deletedAt                                         sql.NullTime
	)

	err := s.Scan(&id, &sequence, &kind, &scope, &operation, &token, &status, &itemCount, &failedUnits, &errMsg,
		&startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	var deleted *time.Time
	if deletedAt.Valid {
		deleted = &deletedAt.Time
	}

	run := models.RestoreSyncRun(id, sequence, createdAt, updatedAt, deleted)
	run.Kind = models.Kind(kind)
	run.Scope = scope
	run.Operation = models.Operation(operation)
	run.Token = token
	run.Status = models.RunStatus(status)
	run.ItemCount = itemCount
	run.FailedUnits = failedUnits
	run.Error = errMsg
	run.StartedAt = startedAt
	run.FinishedAt = finishedAt
	return run, nil
}

func expectRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
