package recorder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/commguard/commguard/internal/classifier"
	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// Config tunes violation creation.
type Config struct {
	// Threshold is the minimum risk score that creates a violation.
	Threshold int
	// Source tags which subsystem produced the violation.
	Source string
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 70,
		Source:    "risk_classifier",
	}
}

// Recorder converts classifier output above the threshold into persisted
// violations. Creation is idempotent on the source message id.
type Recorder struct {
	cfg    Config
	store  port.ViolationStore
	logger *zap.Logger
}

// New creates a recorder.
func New(cfg Config, store port.ViolationStore, logger *zap.Logger) *Recorder {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 70
	}
	if cfg.Source == "" {
		cfg.Source = "risk_classifier"
	}
	return &Recorder{cfg: cfg, store: store, logger: logger}
}

// Record persists a violation for the communication when the score reaches
// the threshold or any finding is mandatory-report. It returns the stored
// violation and whether it was newly created, or nil when the result is
// below threshold.
func (r *Recorder) Record(ctx context.Context, comm *models.Communication, result *classifier.Result) (*models.Violation, bool, error) {
	if result.RiskScore < r.cfg.Threshold && !result.MandatoryReport {
		return nil, false, nil
	}

	meta := models.ViolationMetadata{
		RiskScore:          result.RiskScore,
		SecurityScore:      result.SecurityScore,
		ComplianceScore:    result.ComplianceScore,
		DetectionMethod:    result.DetectionMethod,
		RiskFactors:        result.RiskFactors,
		ComplianceFindings: result.Findings,
		MandatoryReport:    result.MandatoryReport,
	}
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal violation metadata: %w", err)
	}

	category := result.Category
	if category == "" {
		category = "unclassified_risk"
	}

	v := &models.Violation{
		EmployeeID:      comm.SenderID,
		SourceMessageID: comm.MessageID,
		Type:            category,
		Severity:        models.SeverityForScore(result.RiskScore),
		Description:     describe(result),
		Source:          r.cfg.Source,
		Metadata:        string(metaJSON),
		Status:          models.ViolationStatusActive,
	}

	stored, created, err := r.store.CreateIfAbsent(ctx, v)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record violation: %w", err)
	}

	if created {
		r.logger.Info("Violation recorded",
			zap.Int64("violation_id", stored.ID),
			zap.String("employee_id", stored.EmployeeID),
			zap.String("type", stored.Type),
			zap.String("severity", stored.Severity),
			zap.Int("risk_score", result.RiskScore))
	} else {
		r.logger.Debug("Violation already recorded for message",
			zap.String("source_message_id", comm.MessageID),
			zap.Int64("violation_id", stored.ID))
	}

	return stored, created, nil
}

func describe(result *classifier.Result) string {
	desc := fmt.Sprintf("Risk score %d (%s)", result.RiskScore, result.Category)
	if len(result.Findings) > 0 {
		regs := make([]string, 0, len(result.Findings))
		for reg := range result.Findings {
			regs = append(regs, reg)
		}
		desc += fmt.Sprintf("; compliance findings: %d regulation(s)", len(regs))
	}
	if result.MandatoryReport {
		desc += "; mandatory report"
	}
	return desc
}
