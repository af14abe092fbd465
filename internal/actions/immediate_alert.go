package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// ImmediateAlertConfig is the action_config payload for immediate_alert.
type ImmediateAlertConfig struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
}

// ImmediateAlert fans an urgent alert out across every configured channel.
// Partial channel failure still counts as success when at least one channel
// delivered; per-channel outcomes are recorded in the result.
type ImmediateAlert struct {
	channels          map[string]port.Notifier
	defaultRecipients []string
	logger            *zap.Logger
}

// NewImmediateAlert creates the immediate_alert handler over named channels
// (e.g. "chat", "sms").
func NewImmediateAlert(channels map[string]port.Notifier, defaultRecipients []string, logger *zap.Logger) *ImmediateAlert {
	return &ImmediateAlert{
		channels:          channels,
		defaultRecipients: defaultRecipients,
		logger:            logger,
	}
}

func (h *ImmediateAlert) Type() models.ActionType { return models.ActionImmediateAlert }

func (h *ImmediateAlert) Execute(ctx context.Context, inv *Invocation) (string, error) {
	var cfg ImmediateAlertConfig
	if err := parseConfig(inv.Action, &cfg); err != nil {
		return "", err
	}

	recipients := cfg.Recipients
	if len(recipients) == 0 {
		recipients = h.defaultRecipients
	}
	if len(recipients) == 0 {
		return "", fmt.Errorf("immediate_alert has no recipients configured")
	}
	if len(h.channels) == 0 {
		return "", fmt.Errorf("immediate_alert has no channels configured")
	}

	subject := cfg.Subject
	if subject == "" {
		subject = fmt.Sprintf("URGENT security violation: %s (%s)",
			inv.Violation.Type, inv.Violation.Severity)
	}
	body := alertBody(inv)

	delivered := 0
	var outcomes []string
	for name, notifier := range h.channels {
		messageID, err := notifier.Send(ctx, recipients, subject, body)
		if err != nil {
			h.logger.Warn("Alert channel failed",
				zap.String("channel", name),
				zap.Int64("execution_id", inv.Execution.ID),
				zap.Error(err))
			outcomes = append(outcomes, fmt.Sprintf("%s: failed (%v)", name, err))
			continue
		}
		delivered++
		outcomes = append(outcomes, fmt.Sprintf("%s: delivered (%s)", name, messageID))
	}

	if delivered == 0 {
		return "", fmt.Errorf("all alert channels failed: %s", strings.Join(outcomes, "; "))
	}

	h.logger.Info("Immediate alert fanned out",
		zap.Int64("execution_id", inv.Execution.ID),
		zap.Int("delivered", delivered),
		zap.Int("channels", len(h.channels)))

	return strings.Join(outcomes, "; "), nil
}
