package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/commguard/commguard/internal/actions"
	"github.com/commguard/commguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockExecutionStore struct {
	mu         sync.Mutex
	executions map[int64]*models.PolicyExecution
	unclaimed  []int64
}

func newMockExecutionStore(execs ...*models.PolicyExecution) *mockExecutionStore {
	m := &mockExecutionStore{executions: make(map[int64]*models.PolicyExecution)}
	for _, e := range execs {
		m.executions[e.ID] = e
	}
	return m
}

func (m *mockExecutionStore) CreateIfAbsent(ctx context.Context, e *models.PolicyExecution) (bool, error) {
	return false, nil
}

func (m *mockExecutionStore) GetByID(ctx context.Context, id int64) (*models.PolicyExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[id], nil
}

func (m *mockExecutionStore) ListPending(ctx context.Context, limit int) ([]*models.PolicyExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*models.PolicyExecution
	for _, e := range m.executions {
		if e.ExecutionStatus == models.ExecutionStatusPending && e.StartedAt == nil {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (m *mockExecutionStore) Claim(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok || e.ExecutionStatus != models.ExecutionStatusPending || e.StartedAt != nil {
		return false, nil
	}
	e.StartedAt = &startedAt
	return true, nil
}

func (m *mockExecutionStore) Unclaim(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unclaimed = append(m.unclaimed, id)
	if e, ok := m.executions[id]; ok {
		e.StartedAt = nil
	}
	return nil
}

func (m *mockExecutionStore) Complete(ctx context.Context, id int64, status, result, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return fmt.Errorf("execution %d not found", id)
	}
	if !models.ValidExecutionStatus(status) || status == models.ExecutionStatusPending {
		return fmt.Errorf("invalid completion status %q", status)
	}
	if e.ExecutionStatus != models.ExecutionStatusPending {
		return fmt.Errorf("execution %d already terminal", id)
	}
	e.ExecutionStatus = status
	e.ExecutionResult = result
	e.ErrorMessage = errMsg
	now := time.Now()
	e.CompletedAt = &now
	return nil
}

func (m *mockExecutionStore) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var released int64
	for _, e := range m.executions {
		if e.ExecutionStatus == models.ExecutionStatusPending &&
			e.StartedAt != nil && e.StartedAt.Before(before) {
			e.StartedAt = nil
			released++
		}
	}
	return released, nil
}

func (m *mockExecutionStore) Requeue(ctx context.Context, id int64) error { return nil }

func (m *mockExecutionStore) List(ctx context.Context, status string, limit, offset int) ([]*models.PolicyExecution, error) {
	return nil, nil
}

type mockPolicyStore struct {
	policies map[int64]*models.Policy
}

func (m *mockPolicyStore) ListActive(ctx context.Context) ([]*models.Policy, error) { return nil, nil }

func (m *mockPolicyStore) GetByID(ctx context.Context, id int64) (*models.Policy, error) {
	return m.policies[id], nil
}

func (m *mockPolicyStore) Create(ctx context.Context, p *models.Policy) error { return nil }

func (m *mockPolicyStore) SetActive(ctx context.Context, id int64, active bool) error { return nil }

type mockViolationStore struct {
	violations map[int64]*models.Violation
}

func (m *mockViolationStore) CreateIfAbsent(ctx context.Context, v *models.Violation) (*models.Violation, bool, error) {
	return v, true, nil
}

func (m *mockViolationStore) GetByID(ctx context.Context, id int64) (*models.Violation, error) {
	return m.violations[id], nil
}

func (m *mockViolationStore) List(ctx context.Context, status string, limit, offset int) ([]*models.Violation, error) {
	return nil, nil
}

func (m *mockViolationStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	return nil
}

func (m *mockViolationStore) CountByEmployeeAndType(ctx context.Context, employeeID, violationType string, since time.Time) (int, error) {
	return 0, nil
}

func (m *mockViolationStore) ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.Violation, error) {
	return nil, nil
}

type mockDirectoryStore struct{}

func (m *mockDirectoryStore) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	return &models.Employee{ID: id, Name: "Test Employee"}, nil
}

func (m *mockDirectoryStore) SetMonitoring(ctx context.Context, id string, level int, until time.Time) error {
	return nil
}

type mockAuditStore struct {
	mu      sync.Mutex
	entries []*models.AuditEntry
}

func (m *mockAuditStore) Write(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

type fakeHandler struct {
	actionType models.ActionType
	result     string
	err        error
	calls      *[]models.ActionType
}

func (h *fakeHandler) Type() models.ActionType { return h.actionType }

func (h *fakeHandler) Execute(ctx context.Context, inv *actions.Invocation) (string, error) {
	if h.calls != nil {
		*h.calls = append(*h.calls, h.actionType)
	}
	return h.result, h.err
}

func testSetup(t *testing.T, policy *models.Policy, exec *models.PolicyExecution, handlers ...actions.Handler) (*Executor, *mockExecutionStore, *mockAuditStore) {
	t.Helper()

	executions := newMockExecutionStore(exec)
	audit := &mockAuditStore{}
	registry := actions.NewRegistry(zap.NewNop())
	for _, h := range handlers {
		registry.Register(h)
	}

	e := New(
		executions,
		&mockPolicyStore{policies: map[int64]*models.Policy{policy.ID: policy}},
		&mockViolationStore{violations: map[int64]*models.Violation{
			exec.ViolationID: {ID: exec.ViolationID, EmployeeID: exec.EmployeeID, Type: "data_exfiltration", Severity: "high"},
		}},
		&mockDirectoryStore{},
		audit,
		registry,
		Config{},
		zap.NewNop(),
	)
	return e, executions, audit
}

func pendingExecution(policyID int64) *models.PolicyExecution {
	return &models.PolicyExecution{
		ID:              1,
		PolicyID:        policyID,
		ViolationID:     10,
		EmployeeID:      "emp-1",
		ExecutionStatus: models.ExecutionStatusPending,
		CreatedAt:       time.Now().Add(-time.Minute),
	}
}

func TestProcessRunsActionsInOrder(t *testing.T) {
	var calls []models.ActionType
	policy := &models.Policy{
		ID:       5,
		Name:     "alert then log",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionLogActivity, ExecutionOrder: 2, IsEnabled: true},
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, IsEnabled: true},
		},
	}
	exec := pendingExecution(5)
	e, executions, _ := testSetup(t, policy, exec,
		&fakeHandler{actionType: models.ActionEmailAlert, result: "alert sent", calls: &calls},
		&fakeHandler{actionType: models.ActionLogActivity, result: "logged", calls: &calls},
	)

	e.Process(context.Background(), exec)

	stored := executions.executions[1]
	assert.Equal(t, models.ExecutionStatusSuccess, stored.ExecutionStatus)
	assert.Equal(t, "email_alert: alert sent; log_detailed_activity: logged", stored.ExecutionResult)
	assert.Empty(t, stored.ErrorMessage)
	require.Equal(t, []models.ActionType{models.ActionEmailAlert, models.ActionLogActivity}, calls)
}

func TestProcessHandlerFailureMarksFailed(t *testing.T) {
	policy := &models.Policy{
		ID:       5,
		Name:     "alerting",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, IsEnabled: true},
		},
	}
	exec := pendingExecution(5)
	e, executions, _ := testSetup(t, policy, exec,
		&fakeHandler{actionType: models.ActionEmailAlert, err: fmt.Errorf("notification service unavailable")},
	)

	e.Process(context.Background(), exec)

	stored := executions.executions[1]
	assert.Equal(t, models.ExecutionStatusFailed, stored.ExecutionStatus)
	assert.Contains(t, stored.ErrorMessage, "email_alert")
	assert.Contains(t, stored.ErrorMessage, "notification service unavailable")
}

func TestProcessInactivePolicySkips(t *testing.T) {
	policy := &models.Policy{
		ID:       5,
		Name:     "disabled",
		IsActive: false,
		Actions: []models.Action{
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, IsEnabled: true},
		},
	}
	exec := pendingExecution(5)
	e, executions, _ := testSetup(t, policy, exec,
		&fakeHandler{actionType: models.ActionEmailAlert, result: "should not run"},
	)

	e.Process(context.Background(), exec)

	stored := executions.executions[1]
	assert.Equal(t, models.ExecutionStatusSkipped, stored.ExecutionStatus)
	assert.Empty(t, stored.ErrorMessage)
}

func TestProcessNoEnabledActionsSkips(t *testing.T) {
	policy := &models.Policy{
		ID:       5,
		Name:     "all disabled",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, IsEnabled: false},
		},
	}
	exec := pendingExecution(5)
	e, executions, _ := testSetup(t, policy, exec)

	e.Process(context.Background(), exec)

	assert.Equal(t, models.ExecutionStatusSkipped, executions.executions[1].ExecutionStatus)
}

func TestProcessDefersDelayedActions(t *testing.T) {
	policy := &models.Policy{
		ID:       5,
		Name:     "delayed",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, DelayMinutes: 30, IsEnabled: true},
		},
	}
	exec := pendingExecution(5)
	exec.CreatedAt = time.Now() // delay window has not elapsed
	e, executions, _ := testSetup(t, policy, exec,
		&fakeHandler{actionType: models.ActionEmailAlert, result: "too early"},
	)

	e.Process(context.Background(), exec)

	stored := executions.executions[1]
	assert.Equal(t, models.ExecutionStatusPending, stored.ExecutionStatus)
	assert.Nil(t, stored.StartedAt)
	assert.Equal(t, []int64{1}, executions.unclaimed)
}

func TestProcessRecordsAuditTrail(t *testing.T) {
	policy := &models.Policy{
		ID:       5,
		Name:     "alerting",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, IsEnabled: true},
		},
	}
	exec := pendingExecution(5)
	e, _, audit := testSetup(t, policy, exec,
		&fakeHandler{actionType: models.ActionEmailAlert, result: "alert sent"},
	)

	e.Process(context.Background(), exec)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditTypeExecution, entry.EntryType)
	assert.Equal(t, exec.ViolationID, entry.ViolationID)
	assert.Equal(t, exec.EmployeeID, entry.EmployeeID)
	assert.Contains(t, entry.Detail, `"status":"success"`)
}

func TestProcessFailureRecordsAuditTrail(t *testing.T) {
	policy := &models.Policy{
		ID:       5,
		Name:     "alerting",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, IsEnabled: true},
		},
	}
	exec := pendingExecution(5)
	e, _, audit := testSetup(t, policy, exec,
		&fakeHandler{actionType: models.ActionEmailAlert, err: fmt.Errorf("notification service unavailable")},
	)

	e.Process(context.Background(), exec)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditTypeExecution, audit.entries[0].EntryType)
	assert.Contains(t, audit.entries[0].Detail, `"status":"failed"`)
}

func TestPollCycleIsolatesFailures(t *testing.T) {
	badPolicy := &models.Policy{
		ID:       6,
		Name:     "alerting",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionEmailAlert, ExecutionOrder: 1, IsEnabled: true},
		},
	}
	okPolicy := &models.Policy{
		ID:       5,
		Name:     "logging",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionLogActivity, ExecutionOrder: 1, IsEnabled: true},
		},
	}

	failing := &models.PolicyExecution{
		ID: 1, PolicyID: 6, ViolationID: 10, EmployeeID: "emp-1",
		ExecutionStatus: models.ExecutionStatusPending,
		CreatedAt:       time.Now().Add(-time.Minute),
	}
	healthy := &models.PolicyExecution{
		ID: 2, PolicyID: 5, ViolationID: 11, EmployeeID: "emp-2",
		ExecutionStatus: models.ExecutionStatusPending,
		CreatedAt:       time.Now().Add(-time.Minute),
	}

	executions := newMockExecutionStore(failing, healthy)
	registry := actions.NewRegistry(zap.NewNop())
	registry.Register(&fakeHandler{actionType: models.ActionEmailAlert, err: fmt.Errorf("notification service unavailable")})
	registry.Register(&fakeHandler{actionType: models.ActionLogActivity, result: "logged"})

	e := New(
		executions,
		&mockPolicyStore{policies: map[int64]*models.Policy{5: okPolicy, 6: badPolicy}},
		&mockViolationStore{violations: map[int64]*models.Violation{
			10: {ID: 10, EmployeeID: "emp-1", Type: "data_exfiltration", Severity: "high"},
			11: {ID: 11, EmployeeID: "emp-2", Type: "credential_sharing", Severity: "medium"},
		}},
		&mockDirectoryStore{},
		&mockAuditStore{},
		registry,
		Config{},
		zap.NewNop(),
	)
	e.ctx = context.Background()

	e.pollOnce()

	// One execution failing its actions must not keep the other from
	// reaching its own terminal status.
	assert.Equal(t, models.ExecutionStatusFailed, executions.executions[1].ExecutionStatus)
	assert.Equal(t, models.ExecutionStatusSuccess, executions.executions[2].ExecutionStatus)
}

func TestPollCycleReclaimsStaleClaims(t *testing.T) {
	policy := &models.Policy{
		ID:       5,
		Name:     "logging",
		IsActive: true,
		Actions: []models.Action{
			{ActionType: models.ActionLogActivity, ExecutionOrder: 1, IsEnabled: true},
		},
	}
	exec := pendingExecution(5)
	stale := time.Now().Add(-time.Hour)
	exec.StartedAt = &stale // claimed by a processor that never completed

	e, executions, _ := testSetup(t, policy, exec,
		&fakeHandler{actionType: models.ActionLogActivity, result: "logged"},
	)
	e.ctx = context.Background()

	e.pollOnce()

	assert.Equal(t, models.ExecutionStatusSuccess, executions.executions[1].ExecutionStatus)
}

func TestProcessLostClaimDoesNothing(t *testing.T) {
	policy := &models.Policy{ID: 5, IsActive: true}
	exec := pendingExecution(5)
	started := time.Now()
	exec.StartedAt = &started // already claimed elsewhere
	e, executions, _ := testSetup(t, policy, exec)

	e.Process(context.Background(), exec)

	assert.Equal(t, models.ExecutionStatusPending, executions.executions[1].ExecutionStatus)
}
