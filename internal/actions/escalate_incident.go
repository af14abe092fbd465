package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// EscalateIncidentConfig is the action_config payload for escalate_incident.
type EscalateIncidentConfig struct {
	Notes string `json:"notes"`
}

// EscalateIncident records an incident for the violation. When the incident
// store is unavailable (checked once at startup) it degrades to an audit log
// entry instead of failing the execution.
type EscalateIncident struct {
	incidents port.IncidentStore
	audit     port.AuditStore
	logger    *zap.Logger
}

// NewEscalateIncident creates the escalate_incident handler.
func NewEscalateIncident(incidents port.IncidentStore, audit port.AuditStore, logger *zap.Logger) *EscalateIncident {
	return &EscalateIncident{
		incidents: incidents,
		audit:     audit,
		logger:    logger,
	}
}

func (h *EscalateIncident) Type() models.ActionType { return models.ActionEscalateIncident }

func (h *EscalateIncident) Execute(ctx context.Context, inv *Invocation) (string, error) {
	var cfg EscalateIncidentConfig
	if err := parseConfig(inv.Action, &cfg); err != nil {
		return "", err
	}

	notes := cfg.Notes
	if notes == "" {
		notes = fmt.Sprintf("Escalated by policy %q", inv.Policy.Name)
	}

	if !h.incidents.Available() {
		detail, _ := json.Marshal(map[string]interface{}{
			"reason":    "incident store unavailable",
			"policy_id": inv.Policy.ID,
			"notes":     notes,
		})
		if err := h.audit.Write(ctx, &models.AuditEntry{
			EmployeeID:  inv.Violation.EmployeeID,
			ViolationID: inv.Violation.ID,
			EntryType:   models.AuditTypeDegraded,
			Detail:      string(detail),
		}); err != nil {
			return "", fmt.Errorf("degraded escalation logging failed: %w", err)
		}
		h.logger.Warn("Incident store unavailable, escalation logged only",
			zap.Int64("violation_id", inv.Violation.ID))
		return "incident store unavailable, escalation logged only", nil
	}

	inc := &models.Incident{
		ViolationID: inv.Violation.ID,
		EmployeeID:  inv.Violation.EmployeeID,
		Severity:    inv.Violation.Severity,
		Notes:       notes,
	}
	if err := h.incidents.Create(ctx, inc); err != nil {
		return "", fmt.Errorf("incident creation failed: %w", err)
	}

	h.logger.Info("Incident escalated",
		zap.Int64("incident_id", inc.ID),
		zap.Int64("violation_id", inv.Violation.ID))

	return fmt.Sprintf("incident created, id=%d", inc.ID), nil
}
