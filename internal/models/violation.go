package models

import (
	"encoding/json"
	"time"
)

// Severity bands derived from the final risk score.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Violation status values. Status is only changed by human review,
// never by the detection engine.
const (
	ViolationStatusActive        = "active"
	ViolationStatusInvestigating = "investigating"
	ViolationStatusResolved      = "resolved"
	ViolationStatusFalsePositive = "false_positive"
)

// Violation is a persisted record of a detected risky or non-compliant
// communication.
type Violation struct {
	ID              int64     `json:"id"`
	EmployeeID      string    `json:"employee_id"`
	SourceMessageID string    `json:"source_message_id"`
	Type            string    `json:"type"`
	Severity        string    `json:"severity"`
	Description     string    `json:"description"`
	Source          string    `json:"source"`
	Metadata        string    `json:"metadata"` // JSON blob
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// ViolationMetadata is the structured payload stored in Violation.Metadata.
type ViolationMetadata struct {
	RiskScore          int                 `json:"risk_score"`
	SecurityScore      int                 `json:"security_score"`
	ComplianceScore    int                 `json:"compliance_score"`
	DetectionMethod    string              `json:"detection_method"`
	RiskFactors        []string            `json:"risk_factors"`
	ComplianceFindings map[string][]string `json:"compliance_findings,omitempty"`
	MandatoryReport    bool                `json:"mandatory_report,omitempty"`
}

// ParseMetadata decodes the metadata blob. An empty blob yields a zero value.
func (v *Violation) ParseMetadata() (*ViolationMetadata, error) {
	meta := &ViolationMetadata{}
	if v.Metadata == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(v.Metadata), meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SeverityForScore maps a final risk score to a severity band.
func SeverityForScore(score int) string {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 70:
		return SeverityHigh
	case score >= 40:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ValidViolationStatus reports whether s is one of the supported statuses.
func ValidViolationStatus(s string) bool {
	switch s {
	case ViolationStatusActive, ViolationStatusInvestigating,
		ViolationStatusResolved, ViolationStatusFalsePositive:
		return true
	}
	return false
}
