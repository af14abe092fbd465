package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/commguard/commguard/internal/models"
	"go.uber.org/zap"
)

// ErrInvalidStatus is returned when a caller attempts to write an execution
// status outside the four supported values. This is a programming error, not
// a recoverable runtime condition, and is logged loudly: a fifth status value
// once caused a production outage in this pipeline.
var ErrInvalidStatus = errors.New("invalid execution status")

// ExecutionRepository handles policy execution database operations. It owns
// the execution_status enum boundary.
type ExecutionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *sql.DB, logger *zap.Logger) *ExecutionRepository {
	return &ExecutionRepository{
		db:     db,
		logger: logger,
	}
}

const executionColumns = `
	id, policy_id, violation_id, employee_id, execution_status,
	execution_result, error_message, created_at, started_at, completed_at
`

// CreateIfAbsent inserts a pending execution unless one already exists for
// the (policy, violation) pair. Returns whether a new row was inserted.
func (r *ExecutionRepository) CreateIfAbsent(ctx context.Context, e *models.PolicyExecution) (bool, error) {
	if e.ExecutionStatus == "" {
		e.ExecutionStatus = models.ExecutionStatusPending
	}
	if err := r.checkStatus(e.ExecutionStatus); err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO policy_executions (
			policy_id, violation_id, employee_id, execution_status
		) VALUES (?, ?, ?, ?)
		ON CONFLICT(policy_id, violation_id) DO NOTHING`,
		e.PolicyID, e.ViolationID, e.EmployeeID, e.ExecutionStatus)
	if err != nil {
		r.logger.Error("Failed to create execution",
			zap.Int64("policy_id", e.PolicyID),
			zap.Int64("violation_id", e.ViolationID),
			zap.Error(err))
		return false, fmt.Errorf("failed to create execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return true, nil
}

// GetByID retrieves an execution by id
func (r *ExecutionRepository) GetByID(ctx context.Context, id int64) (*models.PolicyExecution, error) {
	query := `SELECT` + executionColumns + `FROM policy_executions WHERE id = ?`

	e, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		r.logger.Error("Failed to get execution", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

// ListPending returns pending executions oldest-first.
func (r *ExecutionRepository) ListPending(ctx context.Context, limit int) ([]*models.PolicyExecution, error) {
	query := `SELECT` + executionColumns + `
		FROM policy_executions
		WHERE execution_status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, models.ExecutionStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to list pending executions", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// List retrieves executions, optionally filtered by status, newest first
func (r *ExecutionRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.PolicyExecution, error) {
	if status != "" {
		if err := r.checkStatus(status); err != nil {
			return nil, err
		}
	}

	query := `SELECT` + executionColumns + `FROM policy_executions`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE execution_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list executions", zap.Error(err))
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// Claim marks the start of processing for a still-pending execution. The
// conditional update is the mutual-exclusion point: with two scheduler
// instances only one claim succeeds. The row stays pending; started_at being
// set is what marks it claimed.
func (r *ExecutionRepository) Claim(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE policy_executions
		SET started_at = ?
		WHERE id = ? AND execution_status = ? AND started_at IS NULL`,
		startedAt, id, models.ExecutionStatusPending)
	if err != nil {
		r.logger.Error("Failed to claim execution", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to claim execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// Unclaim releases a claimed-but-still-pending execution (used when its
// actions are not yet due) so a later poll cycle can pick it up again.
func (r *ExecutionRepository) Unclaim(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE policy_executions
		SET started_at = NULL
		WHERE id = ? AND execution_status = ?`,
		id, models.ExecutionStatusPending)
	if err != nil {
		r.logger.Error("Failed to unclaim execution", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to unclaim execution: %w", err)
	}
	return nil
}

// ReleaseStale clears claims older than the cutoff on rows still pending.
// A claim that old means the claiming process died before completing;
// clearing started_at makes the row claimable on the next poll cycle.
func (r *ExecutionRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE policy_executions
		SET started_at = NULL
		WHERE execution_status = ? AND started_at IS NOT NULL AND started_at < ?`,
		models.ExecutionStatusPending, before)
	if err != nil {
		r.logger.Error("Failed to release stale claims", zap.Error(err))
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		r.logger.Warn("Released stale execution claims", zap.Int64("count", affected))
	}
	return affected, nil
}

// Complete transitions an execution from pending to a terminal status,
// exactly once. Non-terminal or unknown target statuses are rejected.
func (r *ExecutionRepository) Complete(ctx context.Context, id int64, status, result, errMsg string) error {
	if err := r.checkStatus(status); err != nil {
		return err
	}
	if status == models.ExecutionStatusPending {
		r.logger.Error("Refusing non-terminal completion status",
			zap.Int64("id", id), zap.String("status", status))
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidStatus, status)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE policy_executions
		SET execution_status = ?, execution_result = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND execution_status = ?`,
		status, result, errMsg, time.Now().UTC(), id, models.ExecutionStatusPending)
	if err != nil {
		r.logger.Error("Failed to complete execution",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to complete execution: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("execution %d is not pending, refusing transition to %s", id, status)
	}

	return nil
}

// Requeue resets a failed execution to pending for a manual re-trigger.
// Idempotent action handlers make this safe.
func (r *ExecutionRepository) Requeue(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE policy_executions
		SET execution_status = ?, started_at = NULL, completed_at = NULL, error_message = ''
		WHERE id = ? AND execution_status = ?`,
		models.ExecutionStatusPending, id, models.ExecutionStatusFailed)
	if err != nil {
		r.logger.Error("Failed to requeue execution", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to requeue execution: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("execution %d is not failed, refusing requeue", id)
	}
	return nil
}

// checkStatus rejects any value outside the four-element status enum.
func (r *ExecutionRepository) checkStatus(status string) error {
	if models.ValidExecutionStatus(status) {
		return nil
	}
	r.logger.Error("Attempt to use unsupported execution status",
		zap.String("status", status))
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

func scanExecution(row *sql.Row) (*models.PolicyExecution, error) {
	var e models.PolicyExecution
	var startedAt, completedAt sql.NullTime
	err := row.Scan(
		&e.ID,
		&e.PolicyID,
		&e.ViolationID,
		&e.EmployeeID,
		&e.ExecutionStatus,
		&e.ExecutionResult,
		&e.ErrorMessage,
		&e.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return &e, nil
}

func scanExecutions(rows *sql.Rows) ([]*models.PolicyExecution, error) {
	var executions []*models.PolicyExecution
	for rows.Next() {
		var e models.PolicyExecution
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(
			&e.ID,
			&e.PolicyID,
			&e.ViolationID,
			&e.EmployeeID,
			&e.ExecutionStatus,
			&e.ExecutionResult,
			&e.ErrorMessage,
			&e.CreatedAt,
			&startedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		if startedAt.Valid {
			e.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}
