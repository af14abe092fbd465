package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/commguard/commguard/internal/models"
	"go.uber.org/zap"
)

// EmployeeRepository is the directory lookup plus monitoring-flag store.
type EmployeeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmployeeRepository creates a new employee repository
func NewEmployeeRepository(db *sql.DB, logger *zap.Logger) *EmployeeRepository {
	return &EmployeeRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an employee by id
func (r *EmployeeRepository) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	query := `
		SELECT id, name, department, role, email, chat_user_id,
			monitoring_level, monitoring_until
		FROM employees
		WHERE id = ?
	`

	var e models.Employee
	var monitoringUntil sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID,
		&e.Name,
		&e.Department,
		&e.Role,
		&e.Email,
		&e.ChatUserID,
		&e.MonitoringLevel,
		&monitoringUntil,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get employee", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}

	if monitoringUntil.Valid {
		e.MonitoringUntil = &monitoringUntil.Time
	}

	return &e, nil
}

// Create inserts an employee record
func (r *EmployeeRepository) Create(ctx context.Context, e *models.Employee) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, department, role, email, chat_user_id, monitoring_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Department, e.Role, e.Email, e.ChatUserID, e.MonitoringLevel)
	if err != nil {
		r.logger.Error("Failed to create employee", zap.String("id", e.ID), zap.Error(err))
		return fmt.Errorf("failed to create employee: %w", err)
	}
	return nil
}

// SetMonitoring flags the employee for elevated risk weighting until the
// given time.
func (r *EmployeeRepository) SetMonitoring(ctx context.Context, id string, level int, until time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE employees
		SET monitoring_level = ?, monitoring_until = ?
		WHERE id = ?`,
		level, until, id)
	if err != nil {
		r.logger.Error("Failed to set monitoring flag",
			zap.String("id", id), zap.Int("level", level), zap.Error(err))
		return fmt.Errorf("failed to set monitoring flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("employee %s not found", id)
	}

	return nil
}
