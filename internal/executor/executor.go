package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/commguard/commguard/internal/actions"
	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"go.uber.org/zap"
)

// Config tunes the polling executor.
type Config struct {
	PollInterval  time.Duration // default: 5 seconds
	BatchSize     int           // executions fetched per poll (default: 20)
	Concurrency   int           // executions processed in parallel (default: 4)
	ActionTimeout time.Duration // time limit for one execution's actions (default: 2 minutes)
	// StaleClaimAfter is how old a claim may be before the poller treats the
	// claiming process as dead and releases the row (default: 3x ActionTimeout).
	StaleClaimAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 2 * time.Minute
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = 3 * c.ActionTimeout
	}
}

// Executor polls for pending policy executions and runs their actions.
// Each execution moves from pending to exactly one terminal status; a
// conditional claim update keeps two executor instances from processing the
// same row.
type Executor struct {
	executions port.ExecutionStore
	policies   port.PolicyStore
	violations port.ViolationStore
	directory  port.DirectoryStore
	audit      port.AuditStore
	registry   *actions.Registry
	logger     *zap.Logger

	cfg Config

	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a polling executor.
func New(
	executions port.ExecutionStore,
	policies port.PolicyStore,
	violations port.ViolationStore,
	directory port.DirectoryStore,
	audit port.AuditStore,
	registry *actions.Registry,
	cfg Config,
	logger *zap.Logger,
) *Executor {
	cfg.applyDefaults()
	return &Executor{
		executions: executions,
		policies:   policies,
		violations: violations,
		directory:  directory,
		audit:      audit,
		registry:   registry,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start starts the polling loop.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isRunning {
		return fmt.Errorf("action executor is already running")
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.isRunning = true

	e.logger.Info("ActionExecutor started",
		zap.Duration("poll_interval", e.cfg.PollInterval),
		zap.Int("batch_size", e.cfg.BatchSize),
		zap.Int("concurrency", e.cfg.Concurrency))

	go e.pollLoop()

	return nil
}

// Stop stops the polling loop and waits for in-flight executions to finish.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = false
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("ActionExecutor stopped")
}

// Name returns the worker name for identification
func (e *Executor) Name() string {
	return "ActionExecutor"
}

func (e *Executor) pollLoop() {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	// Poll immediately on start
	e.pollOnce()

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Debug("Poll loop context cancelled")
			return

		case <-ticker.C:
			e.pollOnce()
		}
	}
}

// pollOnce fetches a batch of pending executions and processes them with
// bounded parallelism. One execution's outcome never affects another's.
func (e *Executor) pollOnce() {
	cutoff := time.Now().UTC().Add(-e.cfg.StaleClaimAfter)
	if released, err := e.executions.ReleaseStale(e.ctx, cutoff); err != nil {
		e.logger.Error("Failed to release stale claims", zap.Error(err))
	} else if released > 0 {
		e.logger.Warn("Reclaimed executions from a dead processor",
			zap.Int64("count", released))
	}

	pending, err := e.executions.ListPending(e.ctx, e.cfg.BatchSize)
	if err != nil {
		e.logger.Error("Failed to list pending executions", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	e.logger.Debug("Processing pending executions", zap.Int("count", len(pending)))

	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, exec := range pending {
		select {
		case <-e.ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		e.wg.Add(1)
		go func(exec *models.PolicyExecution) {
			defer wg.Done()
			defer e.wg.Done()
			defer func() { <-sem }()
			e.Process(e.ctx, exec)
		}(exec)
	}
	wg.Wait()
}

// Process drives a single execution from pending to a terminal status. It is
// exported for the manual re-trigger path and for tests.
func (e *Executor) Process(ctx context.Context, exec *models.PolicyExecution) {
	claimed, err := e.executions.Claim(ctx, exec.ID, time.Now().UTC())
	if err != nil {
		e.logger.Error("Failed to claim execution",
			zap.Int64("execution_id", exec.ID), zap.Error(err))
		return
	}
	if !claimed {
		// Another instance got there first, or the row is no longer pending.
		return
	}

	policy, err := e.policies.GetByID(ctx, exec.PolicyID)
	if err != nil {
		e.fail(ctx, exec, "", fmt.Sprintf("policy lookup failed: %v", err))
		return
	}
	if policy == nil || !policy.IsActive {
		e.skip(ctx, exec, "policy is inactive or deleted")
		return
	}

	enabled := enabledActions(policy)
	if len(enabled) == 0 {
		e.skip(ctx, exec, "policy has no enabled actions")
		return
	}

	// An execution runs once all its delayed actions are due. Until then the
	// claim is released so a later poll cycle retries.
	if wait := timeUntilDue(exec, enabled); wait > 0 {
		if err := e.executions.Unclaim(ctx, exec.ID); err != nil {
			e.logger.Error("Failed to release deferred execution",
				zap.Int64("execution_id", exec.ID), zap.Error(err))
		}
		e.logger.Debug("Execution deferred",
			zap.Int64("execution_id", exec.ID),
			zap.Duration("remaining", wait))
		return
	}

	violation, err := e.violations.GetByID(ctx, exec.ViolationID)
	if err != nil || violation == nil {
		e.fail(ctx, exec, "", fmt.Sprintf("violation %d lookup failed: %v", exec.ViolationID, err))
		return
	}

	employee, err := e.directory.GetByID(ctx, exec.EmployeeID)
	if err != nil {
		// Alert bodies degrade to the raw employee id.
		e.logger.Warn("Employee lookup failed, continuing without directory detail",
			zap.String("employee_id", exec.EmployeeID), zap.Error(err))
		employee = nil
	}

	actx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	var results []string
	for _, action := range enabled {
		handler, err := e.registry.Get(action.ActionType)
		if err != nil {
			e.fail(ctx, exec, strings.Join(results, "; "), err.Error())
			return
		}

		inv := &actions.Invocation{
			Execution: exec,
			Policy:    policy,
			Action:    action,
			Violation: violation,
			Employee:  employee,
		}

		result, err := handler.Execute(actx, inv)
		if err != nil {
			e.logger.Warn("Action failed",
				zap.Int64("execution_id", exec.ID),
				zap.String("action_type", string(action.ActionType)),
				zap.Error(err))
			e.fail(ctx, exec, strings.Join(results, "; "),
				fmt.Sprintf("%s: %v", action.ActionType, err))
			return
		}
		results = append(results, fmt.Sprintf("%s: %s", action.ActionType, result))
	}

	e.succeed(ctx, exec, strings.Join(results, "; "))
}

func (e *Executor) succeed(ctx context.Context, exec *models.PolicyExecution, result string) {
	if err := e.executions.Complete(ctx, exec.ID, models.ExecutionStatusSuccess, result, ""); err != nil {
		e.logger.Error("Failed to mark execution success",
			zap.Int64("execution_id", exec.ID), zap.Error(err))
		return
	}
	e.recordTransition(ctx, exec, models.ExecutionStatusSuccess, result)
	e.logger.Info("Execution succeeded",
		zap.Int64("execution_id", exec.ID),
		zap.Int64("policy_id", exec.PolicyID),
		zap.Int64("violation_id", exec.ViolationID))
}

func (e *Executor) fail(ctx context.Context, exec *models.PolicyExecution, result, errMsg string) {
	if err := e.executions.Complete(ctx, exec.ID, models.ExecutionStatusFailed, result, errMsg); err != nil {
		e.logger.Error("Failed to mark execution failed",
			zap.Int64("execution_id", exec.ID), zap.Error(err))
		return
	}
	e.recordTransition(ctx, exec, models.ExecutionStatusFailed, errMsg)
	e.logger.Warn("Execution failed",
		zap.Int64("execution_id", exec.ID),
		zap.Int64("policy_id", exec.PolicyID),
		zap.String("error", errMsg))
}

func (e *Executor) skip(ctx context.Context, exec *models.PolicyExecution, reason string) {
	if err := e.executions.Complete(ctx, exec.ID, models.ExecutionStatusSkipped, reason, ""); err != nil {
		e.logger.Error("Failed to mark execution skipped",
			zap.Int64("execution_id", exec.ID), zap.Error(err))
		return
	}
	e.recordTransition(ctx, exec, models.ExecutionStatusSkipped, reason)
	e.logger.Info("Execution skipped",
		zap.Int64("execution_id", exec.ID),
		zap.Int64("policy_id", exec.PolicyID),
		zap.String("reason", reason))
}

// recordTransition writes the audit record for a terminal transition. The
// transition itself has already committed; a failed audit write is logged
// and does not change the execution outcome.
func (e *Executor) recordTransition(ctx context.Context, exec *models.PolicyExecution, status, note string) {
	detail, err := json.Marshal(map[string]interface{}{
		"execution_id": exec.ID,
		"policy_id":    exec.PolicyID,
		"status":       status,
		"note":         note,
	})
	if err != nil {
		return
	}
	entry := &models.AuditEntry{
		EmployeeID:  exec.EmployeeID,
		ViolationID: exec.ViolationID,
		EntryType:   models.AuditTypeExecution,
		Detail:      string(detail),
	}
	if err := e.audit.Write(ctx, entry); err != nil {
		e.logger.Warn("Failed to record execution audit entry",
			zap.Int64("execution_id", exec.ID), zap.Error(err))
	}
}

// enabledActions returns the policy's enabled actions ordered by
// execution_order.
func enabledActions(policy *models.Policy) []*models.Action {
	var out []*models.Action
	for i := range policy.Actions {
		if policy.Actions[i].IsEnabled {
			out = append(out, &policy.Actions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExecutionOrder < out[j].ExecutionOrder
	})
	return out
}

// timeUntilDue returns how long until every enabled action's delay has
// elapsed, measured from the execution's creation.
func timeUntilDue(exec *models.PolicyExecution, enabled []*models.Action) time.Duration {
	maxDelay := 0
	for _, a := range enabled {
		if a.DelayMinutes > maxDelay {
			maxDelay = a.DelayMinutes
		}
	}
	if maxDelay == 0 {
		return 0
	}
	due := exec.CreatedAt.Add(time.Duration(maxDelay) * time.Minute)
	return time.Until(due)
}
