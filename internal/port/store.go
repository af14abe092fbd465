package port

import (
	"context"
	"time"

	"github.com/commguard/commguard/internal/models"
)

// ViolationStore persists violations. Creation is idempotent on the source
// message id.
type ViolationStore interface {
	// CreateIfAbsent inserts the violation unless one already exists for its
	// source message id. It returns the stored violation and whether a new
	// row was inserted.
	CreateIfAbsent(ctx context.Context, v *models.Violation) (*models.Violation, bool, error)
	GetByID(ctx context.Context, id int64) (*models.Violation, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.Violation, error)
	// UpdateStatus applies a human-review status change.
	UpdateStatus(ctx context.Context, id int64, status string) error
	// CountByEmployeeAndType counts violations of one type for an employee
	// since a cutoff. Backs the category_detection_count condition and the
	// sender behavioural baseline.
	CountByEmployeeAndType(ctx context.Context, employeeID, violationType string, since time.Time) (int, error)
	ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.Violation, error)
}

// PolicyStore reads administrator-configured policies. The evaluation engine
// treats policies as read-only; admin writes validate condition and action
// kinds before insert.
type PolicyStore interface {
	ListActive(ctx context.Context) ([]*models.Policy, error)
	GetByID(ctx context.Context, id int64) (*models.Policy, error)
	Create(ctx context.Context, p *models.Policy) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// ExecutionStore persists policy executions and owns the four-value status
// enum. Implementations must reject any other status value loudly.
type ExecutionStore interface {
	// CreateIfAbsent inserts a pending execution unless one already exists for
	// the (policy, violation) pair. Returns whether a new row was inserted.
	CreateIfAbsent(ctx context.Context, e *models.PolicyExecution) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.PolicyExecution, error)
	// ListPending returns pending executions oldest-first.
	ListPending(ctx context.Context, limit int) ([]*models.PolicyExecution, error)
	// Claim marks the start of processing for a still-pending execution.
	// It returns false if the row was already claimed or is no longer pending.
	Claim(ctx context.Context, id int64, startedAt time.Time) (bool, error)
	// Unclaim releases a claimed execution whose actions are not yet due.
	Unclaim(ctx context.Context, id int64) error
	// ReleaseStale clears claims older than the cutoff on rows still pending,
	// making work claimed by a dead process eligible again.
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
	// Complete transitions a claimed execution to a terminal status.
	Complete(ctx context.Context, id int64, status, result, errMsg string) error
	// Requeue resets a failed execution to pending for manual re-trigger.
	Requeue(ctx context.Context, id int64) error
	List(ctx context.Context, status string, limit, offset int) ([]*models.PolicyExecution, error)
}

// DirectoryStore looks up employees and records monitoring flags.
type DirectoryStore interface {
	GetByID(ctx context.Context, id string) (*models.Employee, error)
	SetMonitoring(ctx context.Context, id string, level int, until time.Time) error
}

// IncidentStore records escalations. Availability is probed once at startup;
// when unavailable the escalate action degrades to audit-log-only.
type IncidentStore interface {
	Available() bool
	Create(ctx context.Context, inc *models.Incident) error
}

// AuditStore writes detailed activity records.
type AuditStore interface {
	Write(ctx context.Context, entry *models.AuditEntry) error
}
