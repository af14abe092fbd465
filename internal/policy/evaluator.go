package policy

import (
	"strconv"
	"strings"

	"github.com/commguard/commguard/internal/models"
	"go.uber.org/zap"
)

// Context keys consumed by the evaluator. The evaluation engine builds this
// flat map from the violation plus aggregate lookups.
const (
	CtxRiskScore           = "risk_score"
	CtxComplianceRiskScore = "compliance_risk_score"
	CtxViolationType       = "violation_type"
	CtxViolationSeverity   = "violation_severity"
	CtxDetectionCount      = "category_detection_count"
)

// Evaluator is the pure condition evaluator. It fails closed: unknown
// operators, unknown context keys and uncoercible values evaluate to false
// and are logged, never panicked on.
type Evaluator struct {
	logger *zap.Logger
}

// NewEvaluator creates a condition evaluator.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	return &Evaluator{logger: logger}
}

// contextKeyFor maps a condition type to its context key. Condition types
// are validated at write time, so a miss here means stale configuration.
func contextKeyFor(conditionType string) (string, bool) {
	switch conditionType {
	case models.ConditionRiskScore:
		return CtxRiskScore, true
	case models.ConditionComplianceRiskScore:
		return CtxComplianceRiskScore, true
	case models.ConditionViolationType:
		return CtxViolationType, true
	case models.ConditionViolationSeverity:
		return CtxViolationSeverity, true
	case models.ConditionDetectionCount:
		return CtxDetectionCount, true
	}
	return "", false
}

// Evaluate applies one condition against the context map.
func (e *Evaluator) Evaluate(cond *models.Condition, ctx map[string]interface{}) bool {
	key, ok := contextKeyFor(cond.ConditionType)
	if !ok {
		e.logger.Warn("Unknown condition type, evaluating false",
			zap.String("condition_type", cond.ConditionType))
		return false
	}

	actual, ok := ctx[key]
	if !ok {
		e.logger.Warn("Condition context key missing, evaluating false",
			zap.String("key", key))
		return false
	}

	switch cond.Operator {
	case models.OperatorEquals:
		return equals(actual, cond.Value)
	case models.OperatorNotEquals:
		return !equals(actual, cond.Value)
	case models.OperatorGreaterThan:
		return compareNumeric(e.logger, actual, cond.Value, func(a, b float64) bool { return a > b })
	case models.OperatorLessThan:
		return compareNumeric(e.logger, actual, cond.Value, func(a, b float64) bool { return a < b })
	case models.OperatorContains:
		return strings.Contains(strings.ToLower(asString(actual)), strings.ToLower(cond.Value))
	case models.OperatorIn:
		needle := strings.ToLower(asString(actual))
		for _, candidate := range strings.Split(cond.Value, ",") {
			if needle == strings.ToLower(strings.TrimSpace(candidate)) {
				return true
			}
		}
		return false
	default:
		e.logger.Warn("Unknown operator, evaluating false",
			zap.String("operator", cond.Operator))
		return false
	}
}

// EvaluateAll combines the condition set strictly in order, folding each
// condition into the accumulated result with its logical_operator. AND only
// short-circuits the condition lookup cost, never the ordering semantics.
func (e *Evaluator) EvaluateAll(conditions []models.Condition, ctx map[string]interface{}) bool {
	if len(conditions) == 0 {
		return false
	}

	result := e.Evaluate(&conditions[0], ctx)
	for i := 1; i < len(conditions); i++ {
		cond := &conditions[i]
		switch cond.LogicalOperator {
		case models.LogicalOr:
			if result {
				continue
			}
			result = e.Evaluate(cond, ctx)
		default: // AND
			if !result {
				continue
			}
			result = e.Evaluate(cond, ctx)
		}
	}
	return result
}

func equals(actual interface{}, expected string) bool {
	if af, ok := toFloat(actual); ok {
		if ef, err := strconv.ParseFloat(strings.TrimSpace(expected), 64); err == nil {
			return af == ef
		}
	}
	return strings.EqualFold(asString(actual), strings.TrimSpace(expected))
}

func compareNumeric(logger *zap.Logger, actual interface{}, expected string, cmp func(a, b float64) bool) bool {
	af, ok := toFloat(actual)
	if !ok {
		logger.Warn("Condition value is not numeric, evaluating false",
			zap.String("actual", asString(actual)))
		return false
	}
	ef, err := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	if err != nil {
		logger.Warn("Condition expected value is not numeric, evaluating false",
			zap.String("expected", expected))
		return false
	}
	return cmp(af, ef)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
