package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/pkg/database"
	"go.uber.org/zap"
)

// PolicyRepository handles policy database operations. Policies are written
// by administration and read by the evaluation engine; unknown condition and
// action kinds are rejected here, at write time. It takes the wrapped DB
// because policy writes span three tables in one transaction.
type PolicyRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *database.DB, logger *zap.Logger) *PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a policy with its conditions and actions in one transaction.
func (r *PolicyRepository) Create(ctx context.Context, p *models.Policy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}

	err := r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO policies (name, priority, is_active) VALUES (?, ?, ?)`,
			p.Name, p.Priority, p.IsActive)
		if err != nil {
			return fmt.Errorf("failed to create policy: %w", err)
		}

		policyID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		p.ID = policyID

		for i := range p.Conditions {
			c := &p.Conditions[i]
			c.PolicyID = policyID
			res, err := tx.ExecContext(ctx, `
				INSERT INTO policy_conditions (
					policy_id, condition_type, operator, value, logical_operator, ord
				) VALUES (?, ?, ?, ?, ?, ?)`,
				c.PolicyID, c.ConditionType, c.Operator, c.Value, c.LogicalOperator, c.Order)
			if err != nil {
				return fmt.Errorf("failed to create condition: %w", err)
			}
			c.ID, _ = res.LastInsertId()
		}

		for i := range p.Actions {
			a := &p.Actions[i]
			a.PolicyID = policyID
			res, err := tx.ExecContext(ctx, `
				INSERT INTO policy_actions (
					policy_id, action_type, action_config, execution_order, delay_minutes, is_enabled
				) VALUES (?, ?, ?, ?, ?, ?)`,
				a.PolicyID, string(a.ActionType), a.ActionConfig, a.ExecutionOrder, a.DelayMinutes, a.IsEnabled)
			if err != nil {
				return fmt.Errorf("failed to create action: %w", err)
			}
			a.ID, _ = res.LastInsertId()
		}

		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create policy", zap.String("name", p.Name), zap.Error(err))
		return err
	}

	r.logger.Info("Policy created",
		zap.Int64("policy_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("conditions", len(p.Conditions)),
		zap.Int("actions", len(p.Actions)))

	return nil
}

// GetByID retrieves a policy with its conditions and actions
func (r *PolicyRepository) GetByID(ctx context.Context, id int64) (*models.Policy, error) {
	var p models.Policy
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, priority, is_active, created_at FROM policies WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Priority, &p.IsActive, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get policy", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	if err := r.loadChildren(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActive retrieves all active policies ordered by priority, each with its
// conditions and actions loaded.
func (r *PolicyRepository) ListActive(ctx context.Context) ([]*models.Policy, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, priority, is_active, created_at
		FROM policies
		WHERE is_active = 1
		ORDER BY priority DESC, id ASC`)
	if err != nil {
		r.logger.Error("Failed to list active policies", zap.Error(err))
		return nil, fmt.Errorf("failed to list active policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.Policy
	for rows.Next() {
		var p models.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Priority, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range policies {
		if err := r.loadChildren(ctx, p); err != nil {
			return nil, err
		}
	}
	return policies, nil
}

// SetActive toggles a policy's active flag
func (r *PolicyRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE policies SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		r.logger.Error("Failed to set policy active flag",
			zap.Int64("id", id), zap.Bool("active", active), zap.Error(err))
		return fmt.Errorf("failed to set policy active flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("policy %d not found", id)
	}
	return nil
}

// loadChildren loads conditions and actions in their evaluation order
func (r *PolicyRepository) loadChildren(ctx context.Context, p *models.Policy) error {
	condRows, err := r.db.QueryContext(ctx, `
		SELECT id, policy_id, condition_type, operator, value, logical_operator, ord
		FROM policy_conditions
		WHERE policy_id = ?
		ORDER BY ord ASC`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load conditions: %w", err)
	}
	defer condRows.Close()

	for condRows.Next() {
		var c models.Condition
		if err := condRows.Scan(&c.ID, &c.PolicyID, &c.ConditionType, &c.Operator,
			&c.Value, &c.LogicalOperator, &c.Order); err != nil {
			return fmt.Errorf("failed to scan condition: %w", err)
		}
		p.Conditions = append(p.Conditions, c)
	}
	if err := condRows.Err(); err != nil {
		return err
	}

	actRows, err := r.db.QueryContext(ctx, `
		SELECT id, policy_id, action_type, action_config, execution_order, delay_minutes, is_enabled
		FROM policy_actions
		WHERE policy_id = ?
		ORDER BY execution_order ASC`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to load actions: %w", err)
	}
	defer actRows.Close()

	for actRows.Next() {
		var a models.Action
		var actionType string
		if err := actRows.Scan(&a.ID, &a.PolicyID, &actionType, &a.ActionConfig,
			&a.ExecutionOrder, &a.DelayMinutes, &a.IsEnabled); err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}
		a.ActionType = models.ActionType(actionType)
		p.Actions = append(p.Actions, a)
	}
	return actRows.Err()
}

// validatePolicy rejects unknown condition and action kinds at write time
// rather than at evaluation time.
func validatePolicy(p *models.Policy) error {
	if p.Name == "" {
		return fmt.Errorf("policy name is required")
	}
	for _, c := range p.Conditions {
		if !models.ValidConditionType(c.ConditionType) {
			return fmt.Errorf("unknown condition type %q", c.ConditionType)
		}
		switch c.Operator {
		case models.OperatorEquals, models.OperatorNotEquals, models.OperatorGreaterThan,
			models.OperatorLessThan, models.OperatorContains, models.OperatorIn:
		default:
			return fmt.Errorf("unknown operator %q", c.Operator)
		}
		if c.LogicalOperator != models.LogicalAnd && c.LogicalOperator != models.LogicalOr {
			return fmt.Errorf("unknown logical operator %q", c.LogicalOperator)
		}
	}
	for _, a := range p.Actions {
		if !models.ValidActionType(a.ActionType) {
			return fmt.Errorf("unknown action type %q", a.ActionType)
		}
		if a.DelayMinutes < 0 {
			return fmt.Errorf("delay_minutes must not be negative")
		}
	}
	return nil
}
