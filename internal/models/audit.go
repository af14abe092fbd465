package models

import "time"

// Audit entry types written by the executor, the action handlers, and the
// human-review endpoint.
const (
	AuditTypeExecution   = "EXECUTION"
	AuditTypeAction      = "ACTION"
	AuditTypeDegraded    = "DEGRADED"
	AuditTypeHumanReview = "HUMAN_REVIEW"
)

// AuditEntry is a durable activity record. Writing one is a local insert
// and is not expected to fail in practice.
type AuditEntry struct {
	ID          int64     `json:"id"`
	EmployeeID  string    `json:"employee_id"`
	ViolationID int64     `json:"violation_id"`
	EntryType   string    `json:"entry_type"`
	Detail      string    `json:"detail"` // JSON blob
	CreatedAt   time.Time `json:"created_at"`
}

// Incident is an escalation record created by the escalate_incident action.
type Incident struct {
	ID          int64     `json:"id"`
	ViolationID int64     `json:"violation_id"`
	EmployeeID  string    `json:"employee_id"`
	Severity    string    `json:"severity"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}
