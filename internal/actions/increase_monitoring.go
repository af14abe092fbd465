package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// IncreaseMonitoringConfig is the action_config payload for
// increase_monitoring.
type IncreaseMonitoringConfig struct {
	Level        int `json:"level"`
	DurationDays int `json:"duration_days"`
}

// IncreaseMonitoring flags the employee for elevated risk weighting for a
// configured duration. The classifier's contextual stage reads the flag.
type IncreaseMonitoring struct {
	directory port.DirectoryStore
	logger    *zap.Logger
}

// NewIncreaseMonitoring creates the increase_monitoring handler.
func NewIncreaseMonitoring(directory port.DirectoryStore, logger *zap.Logger) *IncreaseMonitoring {
	return &IncreaseMonitoring{directory: directory, logger: logger}
}

func (h *IncreaseMonitoring) Type() models.ActionType { return models.ActionIncreaseMonitoring }

func (h *IncreaseMonitoring) Execute(ctx context.Context, inv *Invocation) (string, error) {
	cfg := IncreaseMonitoringConfig{Level: 1, DurationDays: 30}
	if err := parseConfig(inv.Action, &cfg); err != nil {
		return "", err
	}
	if cfg.Level <= 0 || cfg.DurationDays <= 0 {
		return "", fmt.Errorf("increase_monitoring requires positive level and duration")
	}

	until := time.Now().AddDate(0, 0, cfg.DurationDays)
	if err := h.directory.SetMonitoring(ctx, inv.Violation.EmployeeID, cfg.Level, until); err != nil {
		return "", fmt.Errorf("failed to raise monitoring level: %w", err)
	}

	h.logger.Info("Monitoring level raised",
		zap.String("employee_id", inv.Violation.EmployeeID),
		zap.Int("level", cfg.Level),
		zap.Time("until", until))

	return fmt.Sprintf("monitoring level %d until %s", cfg.Level, until.Format(time.RFC3339)), nil
}
