package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// LogActivity writes additional audit detail for the violation. A local
// durable insert; this handler does not fail in practice.
type LogActivity struct {
	audit  port.AuditStore
	logger *zap.Logger
}

// NewLogActivity creates the log_detailed_activity handler.
func NewLogActivity(audit port.AuditStore, logger *zap.Logger) *LogActivity {
	return &LogActivity{audit: audit, logger: logger}
}

func (h *LogActivity) Type() models.ActionType { return models.ActionLogActivity }

func (h *LogActivity) Execute(ctx context.Context, inv *Invocation) (string, error) {
	detail, err := json.Marshal(map[string]interface{}{
		"policy_id":    inv.Policy.ID,
		"policy_name":  inv.Policy.Name,
		"execution_id": inv.Execution.ID,
		"severity":     inv.Violation.Severity,
		"type":         inv.Violation.Type,
		"metadata":     json.RawMessage(orEmptyObject(inv.Violation.Metadata)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit detail: %w", err)
	}

	entry := &models.AuditEntry{
		EmployeeID:  inv.Violation.EmployeeID,
		ViolationID: inv.Violation.ID,
		EntryType:   models.AuditTypeAction,
		Detail:      string(detail),
	}
	if err := h.audit.Write(ctx, entry); err != nil {
		return "", fmt.Errorf("audit write failed: %w", err)
	}

	h.logger.Debug("Detailed activity logged",
		zap.Int64("violation_id", inv.Violation.ID),
		zap.Int64("audit_id", entry.ID))

	return fmt.Sprintf("audit entry %d written", entry.ID), nil
}

func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
