package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/commguard/commguard/internal/models"
	"go.uber.org/zap"
)

// AuditRepository writes detailed activity records. Inserts are local and
// durable; this is the one collaborator that cannot fail in practice.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Write inserts one audit entry
func (r *AuditRepository) Write(ctx context.Context, entry *models.AuditEntry) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (employee_id, violation_id, entry_type, detail)
		VALUES (?, ?, ?, ?)`,
		entry.EmployeeID, entry.ViolationID, entry.EntryType, entry.Detail)
	if err != nil {
		r.logger.Error("Failed to write audit entry",
			zap.String("entry_type", entry.EntryType), zap.Error(err))
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	entry.ID, _ = result.LastInsertId()
	return nil
}

// ListByViolation retrieves audit entries for one violation, oldest first
func (r *AuditRepository) ListByViolation(ctx context.Context, violationID int64) ([]*models.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, employee_id, violation_id, entry_type, detail, created_at
		FROM audit_entries
		WHERE violation_id = ?
		ORDER BY created_at ASC, id ASC`, violationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.ViolationID,
			&e.EntryType, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// IncidentRepository records escalations. Availability is probed once at
// startup; when the incident table is missing the escalate action degrades
// to audit-log-only instead of failing executions.
type IncidentRepository struct {
	db        *sql.DB
	available bool
	logger    *zap.Logger
}

// NewIncidentRepository creates an incident repository and probes the schema
// once so the capability check is deterministic afterwards.
func NewIncidentRepository(db *sql.DB, logger *zap.Logger) *IncidentRepository {
	r := &IncidentRepository{db: db, logger: logger}

	var name string
	err := db.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'incidents'`).
		Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		logger.Warn("Incident table unavailable, escalations will degrade to audit log")
	case err != nil:
		logger.Warn("Incident schema probe failed, escalations will degrade to audit log",
			zap.Error(err))
	default:
		r.available = true
	}

	return r
}

// Available reports whether incident storage can be used.
func (r *IncidentRepository) Available() bool {
	return r.available
}

// Create inserts an incident record
func (r *IncidentRepository) Create(ctx context.Context, inc *models.Incident) error {
	if !r.available {
		return fmt.Errorf("incident store is unavailable")
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO incidents (violation_id, employee_id, severity, notes)
		VALUES (?, ?, ?, ?)`,
		inc.ViolationID, inc.EmployeeID, inc.Severity, inc.Notes)
	if err != nil {
		r.logger.Error("Failed to create incident",
			zap.Int64("violation_id", inc.ViolationID), zap.Error(err))
		return fmt.Errorf("failed to create incident: %w", err)
	}

	inc.ID, _ = result.LastInsertId()
	return nil
}
