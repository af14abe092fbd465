package policy

import (
	"testing"

	"github.com/commguard/commguard/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testContext() map[string]interface{} {
	return map[string]interface{}{
		CtxRiskScore:           85,
		CtxComplianceRiskScore: 40,
		CtxViolationType:       "data_exfiltration",
		CtxViolationSeverity:   "high",
		CtxDetectionCount:      3,
	}
}

func TestEvaluateOperators(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	ctx := testContext()

	tests := []struct {
		name     string
		cond     models.Condition
		expected bool
	}{
		{
			name:     "greater_than true",
			cond:     models.Condition{ConditionType: models.ConditionRiskScore, Operator: models.OperatorGreaterThan, Value: "80"},
			expected: true,
		},
		{
			name:     "greater_than false on equal value",
			cond:     models.Condition{ConditionType: models.ConditionRiskScore, Operator: models.OperatorGreaterThan, Value: "85"},
			expected: false,
		},
		{
			name:     "less_than true",
			cond:     models.Condition{ConditionType: models.ConditionComplianceRiskScore, Operator: models.OperatorLessThan, Value: "50"},
			expected: true,
		},
		{
			name:     "equals numeric",
			cond:     models.Condition{ConditionType: models.ConditionDetectionCount, Operator: models.OperatorEquals, Value: "3"},
			expected: true,
		},
		{
			name:     "equals string is case-insensitive",
			cond:     models.Condition{ConditionType: models.ConditionViolationSeverity, Operator: models.OperatorEquals, Value: "High"},
			expected: true,
		},
		{
			name:     "not_equals",
			cond:     models.Condition{ConditionType: models.ConditionViolationType, Operator: models.OperatorNotEquals, Value: "phishing"},
			expected: true,
		},
		{
			name:     "contains",
			cond:     models.Condition{ConditionType: models.ConditionViolationType, Operator: models.OperatorContains, Value: "exfil"},
			expected: true,
		},
		{
			name:     "in list",
			cond:     models.Condition{ConditionType: models.ConditionViolationSeverity, Operator: models.OperatorIn, Value: "critical, high"},
			expected: true,
		},
		{
			name:     "in list miss",
			cond:     models.Condition{ConditionType: models.ConditionViolationSeverity, Operator: models.OperatorIn, Value: "critical, medium"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, e.Evaluate(&tt.cond, ctx))
		})
	}
}

func TestEvaluateFailsClosed(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	ctx := testContext()

	t.Run("unknown condition type", func(t *testing.T) {
		cond := models.Condition{ConditionType: "moon_phase", Operator: models.OperatorEquals, Value: "full"}
		assert.False(t, e.Evaluate(&cond, ctx))
	})

	t.Run("unknown operator", func(t *testing.T) {
		cond := models.Condition{ConditionType: models.ConditionRiskScore, Operator: "matches", Value: "85"}
		assert.False(t, e.Evaluate(&cond, ctx))
	})

	t.Run("missing context key", func(t *testing.T) {
		cond := models.Condition{ConditionType: models.ConditionRiskScore, Operator: models.OperatorEquals, Value: "85"}
		assert.False(t, e.Evaluate(&cond, map[string]interface{}{}))
	})

	t.Run("non-numeric actual for numeric comparison", func(t *testing.T) {
		cond := models.Condition{ConditionType: models.ConditionViolationSeverity, Operator: models.OperatorGreaterThan, Value: "1"}
		assert.False(t, e.Evaluate(&cond, ctx))
	})

	t.Run("non-numeric expected for numeric comparison", func(t *testing.T) {
		cond := models.Condition{ConditionType: models.ConditionRiskScore, Operator: models.OperatorGreaterThan, Value: "lots"}
		assert.False(t, e.Evaluate(&cond, ctx))
	})
}

func TestEvaluateAllOrderedFolding(t *testing.T) {
	e := NewEvaluator(zap.NewNop())

	// risk_score > 80, then OR violation_severity = critical: a 95/critical
	// violation matches, a 50/low one does not.
	conditions := []models.Condition{
		{ConditionType: models.ConditionRiskScore, Operator: models.OperatorGreaterThan, Value: "80", LogicalOperator: models.LogicalAnd, Order: 0},
		{ConditionType: models.ConditionViolationSeverity, Operator: models.OperatorEquals, Value: "critical", LogicalOperator: models.LogicalOr, Order: 1},
	}

	hot := map[string]interface{}{
		CtxRiskScore:         95,
		CtxViolationSeverity: "critical",
	}
	cold := map[string]interface{}{
		CtxRiskScore:         50,
		CtxViolationSeverity: "low",
	}

	assert.True(t, e.EvaluateAll(conditions, hot))
	assert.False(t, e.EvaluateAll(conditions, cold))
}

func TestEvaluateAllStrictOrder(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	ctx := map[string]interface{}{
		CtxRiskScore:         95,
		CtxViolationSeverity: "low",
		CtxDetectionCount:    0,
	}

	// (true OR x) AND false folds left to right: the trailing AND still
	// applies to the accumulated result.
	conditions := []models.Condition{
		{ConditionType: models.ConditionRiskScore, Operator: models.OperatorGreaterThan, Value: "80", LogicalOperator: models.LogicalAnd},
		{ConditionType: models.ConditionViolationSeverity, Operator: models.OperatorEquals, Value: "critical", LogicalOperator: models.LogicalOr},
		{ConditionType: models.ConditionDetectionCount, Operator: models.OperatorGreaterThan, Value: "2", LogicalOperator: models.LogicalAnd},
	}
	assert.False(t, e.EvaluateAll(conditions, ctx))

	// Same set with the last condition satisfied.
	ctx[CtxDetectionCount] = 5
	assert.True(t, e.EvaluateAll(conditions, ctx))
}

func TestEvaluateAllEmptyConditions(t *testing.T) {
	e := NewEvaluator(zap.NewNop())
	assert.False(t, e.EvaluateAll(nil, testContext()))
}
