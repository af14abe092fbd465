package models

import "time"

// Execution statuses. Exactly these four values exist; the repository layer
// rejects any attempt to write a fifth one. The executor transitions a row
// from pending to exactly one terminal status.
const (
	ExecutionStatusPending = "pending"
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
	ExecutionStatusSkipped = "skipped"
)

// ValidExecutionStatus reports whether s is one of the four supported
// execution statuses.
func ValidExecutionStatus(s string) bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusSuccess,
		ExecutionStatusFailed, ExecutionStatusSkipped:
		return true
	}
	return false
}

// PolicyExecution is one attempt to apply one policy to one violation.
// A (policy, violation) pair produces at most one execution.
type PolicyExecution struct {
	ID              int64      `json:"id"`
	PolicyID        int64      `json:"policy_id"`
	ViolationID     int64      `json:"violation_id"`
	EmployeeID      string     `json:"employee_id"`
	ExecutionStatus string     `json:"execution_status"`
	ExecutionResult string     `json:"execution_result"`
	ErrorMessage    string     `json:"error_message"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the execution has reached a final status.
func (e *PolicyExecution) Terminal() bool {
	return e.ExecutionStatus != ExecutionStatusPending
}
