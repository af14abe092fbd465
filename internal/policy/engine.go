package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// Engine matches a newly created violation against all active policies and
// creates one pending execution per matching policy. Evaluation is
// idempotent: re-running on the same violation never duplicates executions.
type Engine struct {
	policies   port.PolicyStore
	executions port.ExecutionStore
	violations port.ViolationStore
	evaluator  *Evaluator
	// detectionWindow is the lookback for category_detection_count.
	detectionWindow time.Duration
	logger          *zap.Logger
}

// NewEngine creates an evaluation engine.
func NewEngine(
	policies port.PolicyStore,
	executions port.ExecutionStore,
	violations port.ViolationStore,
	evaluator *Evaluator,
	detectionWindow time.Duration,
	logger *zap.Logger,
) *Engine {
	if detectionWindow <= 0 {
		detectionWindow = 30 * 24 * time.Hour
	}
	return &Engine{
		policies:        policies,
		executions:      executions,
		violations:      violations,
		evaluator:       evaluator,
		detectionWindow: detectionWindow,
		logger:          logger,
	}
}

// EvaluateViolation evaluates the violation against all active policies in
// priority order and returns how many policies were triggered.
func (e *Engine) EvaluateViolation(ctx context.Context, violation *models.Violation) (int, error) {
	if violation == nil {
		return 0, fmt.Errorf("violation is nil")
	}

	policies, err := e.policies.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active policies: %w", err)
	}
	if len(policies) == 0 {
		return 0, nil
	}

	evalCtx, err := e.buildContext(ctx, violation)
	if err != nil {
		return 0, err
	}

	triggered := 0
	for _, p := range policies {
		if !e.evaluator.EvaluateAll(p.Conditions, evalCtx) {
			continue
		}

		created, err := e.executions.CreateIfAbsent(ctx, &models.PolicyExecution{
			PolicyID:        p.ID,
			ViolationID:     violation.ID,
			EmployeeID:      violation.EmployeeID,
			ExecutionStatus: models.ExecutionStatusPending,
		})
		if err != nil {
			// Per-policy boundary: a storage failure on one policy does not
			// roll back executions already created for earlier policies.
			e.logger.Error("Failed to create execution for matched policy",
				zap.Int64("policy_id", p.ID),
				zap.Int64("violation_id", violation.ID),
				zap.Error(err))
			return triggered, fmt.Errorf("failed to create execution for policy %d: %w", p.ID, err)
		}

		if created {
			triggered++
			e.logger.Info("Policy matched violation",
				zap.Int64("policy_id", p.ID),
				zap.String("policy", p.Name),
				zap.Int64("violation_id", violation.ID))
		} else {
			e.logger.Debug("Execution already exists for policy/violation pair",
				zap.Int64("policy_id", p.ID),
				zap.Int64("violation_id", violation.ID))
		}
	}

	return triggered, nil
}

// buildContext flattens the violation into the evaluator's context map.
func (e *Engine) buildContext(ctx context.Context, violation *models.Violation) (map[string]interface{}, error) {
	meta, err := violation.ParseMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to parse violation metadata: %w", err)
	}

	evalCtx := map[string]interface{}{
		CtxRiskScore:           meta.RiskScore,
		CtxComplianceRiskScore: meta.ComplianceScore,
		CtxViolationType:       violation.Type,
		CtxViolationSeverity:   violation.Severity,
	}

	since := time.Now().Add(-e.detectionWindow)
	count, err := e.violations.CountByEmployeeAndType(ctx, violation.EmployeeID, violation.Type, since)
	if err != nil {
		// Aggregate lookup failure degrades to zero rather than blocking
		// evaluation of score/type/severity conditions.
		e.logger.Warn("Detection count lookup failed, using zero",
			zap.String("employee_id", violation.EmployeeID), zap.Error(err))
		count = 0
	}
	evalCtx[CtxDetectionCount] = count

	return evalCtx, nil
}
