package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/commguard/commguard/internal/models"
	"go.uber.org/zap"
)

// ViolationRepository handles violation database operations
type ViolationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewViolationRepository creates a new violation repository
func NewViolationRepository(db *sql.DB, logger *zap.Logger) *ViolationRepository {
	return &ViolationRepository{
		db:     db,
		logger: logger,
	}
}

const violationColumns = `
	id, employee_id, source_message_id, type, severity, description,
	source, metadata, status, created_at
`

// CreateIfAbsent inserts a violation unless one already exists for its
// source message id. Re-processing the same communication is a no-op.
func (r *ViolationRepository) CreateIfAbsent(ctx context.Context, v *models.Violation) (*models.Violation, bool, error) {
	query := `
		INSERT INTO violations (
			employee_id, source_message_id, type, severity, description,
			source, metadata, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_message_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		v.EmployeeID,
		v.SourceMessageID,
		v.Type,
		v.Severity,
		v.Description,
		v.Source,
		v.Metadata,
		v.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create violation",
			zap.String("source_message_id", v.SourceMessageID),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to create violation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	stored, err := r.GetBySourceMessageID(ctx, v.SourceMessageID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("violation vanished after insert for message %s", v.SourceMessageID)
	}

	return stored, affected > 0, nil
}

// GetByID retrieves a violation by id
func (r *ViolationRepository) GetByID(ctx context.Context, id int64) (*models.Violation, error) {
	query := `SELECT` + violationColumns + `FROM violations WHERE id = ?`

	v, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		r.logger.Error("Failed to get violation by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	return v, nil
}

// GetBySourceMessageID retrieves a violation by its source message id
func (r *ViolationRepository) GetBySourceMessageID(ctx context.Context, messageID string) (*models.Violation, error) {
	query := `SELECT` + violationColumns + `FROM violations WHERE source_message_id = ?`

	v, err := r.scanOne(r.db.QueryRowContext(ctx, query, messageID))
	if err != nil {
		r.logger.Error("Failed to get violation by message ID",
			zap.String("source_message_id", messageID), zap.Error(err))
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}
	return v, nil
}

// List retrieves violations, optionally filtered by status, newest first
func (r *ViolationRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.Violation, error) {
	query := `SELECT` + violationColumns + `FROM violations`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list violations", zap.Error(err))
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListByPeriod retrieves violations created within [from, to)
func (r *ViolationRepository) ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.Violation, error) {
	query := `SELECT` + violationColumns + `
		FROM violations
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		r.logger.Error("Failed to list violations by period", zap.Error(err))
		return nil, fmt.Errorf("failed to list violations by period: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// UpdateStatus applies a human-review status change. The engine itself never
// calls this.
func (r *ViolationRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	if !models.ValidViolationStatus(status) {
		return fmt.Errorf("invalid violation status %q", status)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE violations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		r.logger.Error("Failed to update violation status",
			zap.Int64("id", id), zap.String("status", status), zap.Error(err))
		return fmt.Errorf("failed to update violation status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("violation %d not found", id)
	}

	return nil
}

// CountByEmployeeAndType counts an employee's violations since a cutoff.
// An empty violationType counts across all types.
func (r *ViolationRepository) CountByEmployeeAndType(ctx context.Context, employeeID, violationType string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM violations WHERE employee_id = ? AND created_at >= ?`
	args := []interface{}{employeeID, since}
	if violationType != "" {
		query += ` AND type = ?`
		args = append(args, violationType)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count violations",
			zap.String("employee_id", employeeID), zap.Error(err))
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return count, nil
}

func (r *ViolationRepository) scanOne(row *sql.Row) (*models.Violation, error) {
	var v models.Violation
	err := row.Scan(
		&v.ID,
		&v.EmployeeID,
		&v.SourceMessageID,
		&v.Type,
		&v.Severity,
		&v.Description,
		&v.Source,
		&v.Metadata,
		&v.Status,
		&v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *ViolationRepository) scanAll(rows *sql.Rows) ([]*models.Violation, error) {
	var violations []*models.Violation
	for rows.Next() {
		var v models.Violation
		err := rows.Scan(
			&v.ID,
			&v.EmployeeID,
			&v.SourceMessageID,
			&v.Type,
			&v.Severity,
			&v.Description,
			&v.Source,
			&v.Metadata,
			&v.Status,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		violations = append(violations, &v)
	}
	return violations, rows.Err()
}
