package ingest

import (
	"context"
	"fmt"

	"github.com/commguard/commguard/internal/classifier"
	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/policy"
	"github.com/commguard/commguard/internal/port"
	"github.com/commguard/commguard/internal/recorder"
	"go.uber.org/zap"
)

// Outcome summarises one communication's trip through the pipeline.
type Outcome struct {
	Result            *classifier.Result `json:"classification"`
	Violation         *models.Violation  `json:"violation,omitempty"`
	ViolationCreated  bool               `json:"violation_created"`
	PoliciesTriggered int                `json:"policies_triggered"`
}

// Service runs the detection pipeline for one communication: classify the
// content, record a violation when the score warrants one, then evaluate
// policies against the new violation. Enforcement itself happens later in the
// polling executor.
type Service struct {
	classifier *classifier.Classifier
	recorder   *recorder.Recorder
	engine     *policy.Engine
	directory  port.DirectoryStore
	logger     *zap.Logger
}

// NewService creates the pipeline service.
func NewService(
	cls *classifier.Classifier,
	rec *recorder.Recorder,
	engine *policy.Engine,
	directory port.DirectoryStore,
	logger *zap.Logger,
) *Service {
	return &Service{
		classifier: cls,
		recorder:   rec,
		engine:     engine,
		directory:  directory,
		logger:     logger,
	}
}

// Ingest processes a single communication end to end. Re-submitting the same
// message id is safe: the recorder's idempotent insert returns the existing
// violation and policy evaluation creates no duplicate executions.
func (s *Service) Ingest(ctx context.Context, comm *models.Communication) (*Outcome, error) {
	if comm.MessageID == "" {
		return nil, fmt.Errorf("communication has no message id")
	}
	if comm.SenderID == "" {
		return nil, fmt.Errorf("communication has no sender id")
	}

	profile, err := s.directory.GetByID(ctx, comm.SenderID)
	if err != nil {
		// Classification degrades gracefully without the sender profile.
		s.logger.Warn("Sender profile lookup failed",
			zap.String("sender_id", comm.SenderID), zap.Error(err))
		profile = nil
	}

	result, err := s.classifier.Classify(ctx, comm, profile)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	outcome := &Outcome{Result: result}

	violation, created, err := s.recorder.Record(ctx, comm, result)
	if err != nil {
		return nil, fmt.Errorf("violation recording failed: %w", err)
	}
	if violation == nil {
		s.logger.Debug("Communication below violation threshold",
			zap.String("message_id", comm.MessageID),
			zap.Int("risk_score", result.RiskScore))
		return outcome, nil
	}

	outcome.Violation = violation
	outcome.ViolationCreated = created

	triggered, err := s.engine.EvaluateViolation(ctx, violation)
	if err != nil {
		// The violation is durably recorded; evaluation failures are surfaced
		// but do not undo it.
		return outcome, fmt.Errorf("policy evaluation failed: %w", err)
	}
	outcome.PoliciesTriggered = triggered

	s.logger.Info("Communication processed",
		zap.String("message_id", comm.MessageID),
		zap.Int("risk_score", result.RiskScore),
		zap.Int64("violation_id", violation.ID),
		zap.Int("policies_triggered", triggered))

	return outcome, nil
}
