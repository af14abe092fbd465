package actions

import (
	"context"
	"fmt"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// DisableAccessConfig is the action_config payload for disable_access.
type DisableAccessConfig struct {
	Reason string `json:"reason"`
}

// DisableAccess requests access revocation from the external identity
// system. Best-effort: failures surface as handler failures for operator
// review.
type DisableAccess struct {
	identity port.IdentityClient
	logger   *zap.Logger
}

// NewDisableAccess creates the disable_access handler.
func NewDisableAccess(identity port.IdentityClient, logger *zap.Logger) *DisableAccess {
	return &DisableAccess{identity: identity, logger: logger}
}

func (h *DisableAccess) Type() models.ActionType { return models.ActionDisableAccess }

func (h *DisableAccess) Execute(ctx context.Context, inv *Invocation) (string, error) {
	var cfg DisableAccessConfig
	if err := parseConfig(inv.Action, &cfg); err != nil {
		return "", err
	}

	reason := cfg.Reason
	if reason == "" {
		reason = fmt.Sprintf("policy %q, violation #%d (%s)",
			inv.Policy.Name, inv.Violation.ID, inv.Violation.Severity)
	}

	if err := h.identity.RevokeAccess(ctx, inv.Violation.EmployeeID, reason); err != nil {
		return "", fmt.Errorf("access revocation failed: %w", err)
	}

	h.logger.Info("Access revocation requested",
		zap.String("employee_id", inv.Violation.EmployeeID),
		zap.Int64("violation_id", inv.Violation.ID))

	return "access revocation requested", nil
}
