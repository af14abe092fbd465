package models

import "time"

// Condition types supported by the evaluator. Unknown types are rejected
// when a policy is written, not when it is evaluated.
const (
	ConditionRiskScore           = "risk_score"
	ConditionComplianceRiskScore = "compliance_risk_score"
	ConditionViolationType       = "violation_type"
	ConditionViolationSeverity   = "violation_severity"
	ConditionDetectionCount      = "category_detection_count"
)

// Condition operators.
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "not_equals"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorContains    = "contains"
	OperatorIn          = "in"
)

// Logical operators joining a condition to its accumulated siblings.
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
)

// ActionType is the fixed set of remediation behaviours.
type ActionType string

const (
	ActionEmailAlert         ActionType = "email_alert"
	ActionEscalateIncident   ActionType = "escalate_incident"
	ActionIncreaseMonitoring ActionType = "increase_monitoring"
	ActionDisableAccess      ActionType = "disable_access"
	ActionLogActivity        ActionType = "log_detailed_activity"
	ActionImmediateAlert     ActionType = "immediate_alert"
)

// ValidActionType reports whether t is a supported action type.
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionEmailAlert, ActionEscalateIncident, ActionIncreaseMonitoring,
		ActionDisableAccess, ActionLogActivity, ActionImmediateAlert:
		return true
	}
	return false
}

// ValidConditionType reports whether t is a supported condition type.
func ValidConditionType(t string) bool {
	switch t {
	case ConditionRiskScore, ConditionComplianceRiskScore, ConditionViolationType,
		ConditionViolationSeverity, ConditionDetectionCount:
		return true
	}
	return false
}

// Policy is an administrator-configured rule: an ordered condition set plus
// an ordered action list. Read-only from the evaluation engine's perspective.
type Policy struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Priority   int         `json:"priority"`
	IsActive   bool        `json:"is_active"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Condition is one clause of a policy's condition set.
type Condition struct {
	ID              int64  `json:"id"`
	PolicyID        int64  `json:"policy_id"`
	ConditionType   string `json:"condition_type"`
	Operator        string `json:"operator"`
	Value           string `json:"value"`
	LogicalOperator string `json:"logical_operator"`
	Order           int    `json:"order"`
}

// Action is one remediation step of a policy.
type Action struct {
	ID             int64      `json:"id"`
	PolicyID       int64      `json:"policy_id"`
	ActionType     ActionType `json:"action_type"`
	ActionConfig   string     `json:"action_config"` // JSON blob
	ExecutionOrder int        `json:"execution_order"`
	DelayMinutes   int        `json:"delay_minutes"`
	IsEnabled      bool       `json:"is_enabled"`
}
