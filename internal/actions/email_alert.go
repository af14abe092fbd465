package actions

import (
	"context"
	"fmt"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// EmailAlertConfig is the action_config payload for email_alert.
type EmailAlertConfig struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
}

// EmailAlert sends a formatted alert through the notification collaborator.
// Delivery failure and invalid recipients are handler failures, not fatal to
// the executor.
type EmailAlert struct {
	notifier          port.Notifier
	defaultRecipients []string
	logger            *zap.Logger
}

// NewEmailAlert creates the email_alert handler.
func NewEmailAlert(notifier port.Notifier, defaultRecipients []string, logger *zap.Logger) *EmailAlert {
	return &EmailAlert{
		notifier:          notifier,
		defaultRecipients: defaultRecipients,
		logger:            logger,
	}
}

func (h *EmailAlert) Type() models.ActionType { return models.ActionEmailAlert }

func (h *EmailAlert) Execute(ctx context.Context, inv *Invocation) (string, error) {
	var cfg EmailAlertConfig
	if err := parseConfig(inv.Action, &cfg); err != nil {
		return "", err
	}

	recipients := cfg.Recipients
	if len(recipients) == 0 {
		recipients = h.defaultRecipients
	}
	if len(recipients) == 0 {
		return "", fmt.Errorf("email_alert has no recipients configured")
	}

	subject := cfg.Subject
	if subject == "" {
		subject = fmt.Sprintf("Security violation: %s (%s)", inv.Violation.Type, inv.Violation.Severity)
	}

	messageID, err := h.notifier.Send(ctx, recipients, subject, alertBody(inv))
	if err != nil {
		return "", fmt.Errorf("alert delivery failed: %w", err)
	}

	h.logger.Info("Email alert sent",
		zap.Int64("execution_id", inv.Execution.ID),
		zap.String("message_id", messageID),
		zap.Int("recipients", len(recipients)))

	return fmt.Sprintf("alert delivered, message_id=%s", messageID), nil
}
