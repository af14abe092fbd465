package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/commguard/commguard/internal/models"
	"go.uber.org/zap"
)

// Invocation is everything a handler needs to perform one action.
type Invocation struct {
	Execution *models.PolicyExecution
	Policy    *models.Policy
	Action    *models.Action
	Violation *models.Violation
	Employee  *models.Employee // may be nil when directory lookup failed
}

// Handler performs one concrete remediation. Handlers are idempotent so a
// failed execution can be manually re-triggered safely.
type Handler interface {
	Type() models.ActionType
	// Execute returns a human-readable result on success. Failures are
	// reported as errors and mark the execution failed; they never panic.
	Execute(ctx context.Context, inv *Invocation) (string, error)
}

// Registry maps action types to handlers.
type Registry struct {
	handlers map[models.ActionType]Handler
	logger   *zap.Logger
}

// NewRegistry creates a handler registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[models.ActionType]Handler),
		logger:   logger,
	}
}

// Register adds a handler. Registering a duplicate type is a wiring bug.
func (r *Registry) Register(h Handler) {
	if _, exists := r.handlers[h.Type()]; exists {
		r.logger.Error("Duplicate action handler registration",
			zap.String("action_type", string(h.Type())))
		return
	}
	r.handlers[h.Type()] = h
}

// Get returns the handler for an action type.
func (r *Registry) Get(t models.ActionType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for action type %q", t)
	}
	return h, nil
}

// parseConfig decodes an action's JSON config into dst. An empty config is
// not an error; handlers fall back to their defaults.
func parseConfig(action *models.Action, dst interface{}) error {
	if action.ActionConfig == "" || action.ActionConfig == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(action.ActionConfig), dst); err != nil {
		return fmt.Errorf("invalid action config: %w", err)
	}
	return nil
}

// alertBody formats the standard alert text shared by the alert handlers.
func alertBody(inv *Invocation) string {
	employee := inv.Violation.EmployeeID
	if inv.Employee != nil && inv.Employee.Name != "" {
		employee = fmt.Sprintf("%s (%s, %s)", inv.Employee.Name, inv.Employee.Department, inv.Violation.EmployeeID)
	}
	return fmt.Sprintf(
		"Policy %q triggered by violation #%d\nEmployee: %s\nType: %s\nSeverity: %s\nDetail: %s",
		inv.Policy.Name, inv.Violation.ID, employee,
		inv.Violation.Type, inv.Violation.Severity, inv.Violation.Description)
}
