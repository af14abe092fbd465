package actions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockNotifier struct {
	sent       [][]string
	lastBody   string
	messageID  string
	err        error
}

func (m *mockNotifier) Send(ctx context.Context, recipients []string, subject, body string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, recipients)
	m.lastBody = body
	return m.messageID, nil
}

type mockIncidentStore struct {
	available bool
	incidents []*models.Incident
	createErr error
}

func (m *mockIncidentStore) Available() bool { return m.available }

func (m *mockIncidentStore) Create(ctx context.Context, inc *models.Incident) error {
	if m.createErr != nil {
		return m.createErr
	}
	inc.ID = int64(len(m.incidents) + 1)
	m.incidents = append(m.incidents, inc)
	return nil
}

type mockAuditStore struct {
	entries []*models.AuditEntry
	err     error
}

func (m *mockAuditStore) Write(ctx context.Context, entry *models.AuditEntry) error {
	if m.err != nil {
		return m.err
	}
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

type mockDirectory struct {
	level int
	until time.Time
	err   error
}

func (m *mockDirectory) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	return nil, nil
}

func (m *mockDirectory) SetMonitoring(ctx context.Context, id string, level int, until time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.level = level
	m.until = until
	return nil
}

type mockIdentity struct {
	revoked map[string]string
	err     error
}

func (m *mockIdentity) RevokeAccess(ctx context.Context, employeeID, reason string) error {
	if m.err != nil {
		return m.err
	}
	if m.revoked == nil {
		m.revoked = make(map[string]string)
	}
	m.revoked[employeeID] = reason
	return nil
}

func testInvocation(actionConfig string) *Invocation {
	return &Invocation{
		Execution: &models.PolicyExecution{ID: 1},
		Policy:    &models.Policy{ID: 2, Name: "test policy"},
		Action:    &models.Action{ActionConfig: actionConfig},
		Violation: &models.Violation{
			ID:          3,
			EmployeeID:  "emp-1",
			Type:        "data_exfiltration",
			Severity:    models.SeverityHigh,
			Description: "risky upload",
		},
	}
}

func TestEmailAlertUsesConfiguredRecipients(t *testing.T) {
	notifier := &mockNotifier{messageID: "om_1"}
	h := NewEmailAlert(notifier, []string{"fallback@example.com"}, zap.NewNop())

	result, err := h.Execute(context.Background(),
		testInvocation(`{"recipients": ["secops@example.com"]}`))
	require.NoError(t, err)
	assert.Contains(t, result, "om_1")
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, []string{"secops@example.com"}, notifier.sent[0])
	assert.Contains(t, notifier.lastBody, "test policy")
}

func TestEmailAlertFallsBackToDefaults(t *testing.T) {
	notifier := &mockNotifier{messageID: "om_2"}
	h := NewEmailAlert(notifier, []string{"fallback@example.com"}, zap.NewNop())

	_, err := h.Execute(context.Background(), testInvocation(""))
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, []string{"fallback@example.com"}, notifier.sent[0])
}

func TestEmailAlertNoRecipientsFails(t *testing.T) {
	h := NewEmailAlert(&mockNotifier{}, nil, zap.NewNop())
	_, err := h.Execute(context.Background(), testInvocation(""))
	assert.Error(t, err)
}

func TestEscalateIncidentCreates(t *testing.T) {
	incidents := &mockIncidentStore{available: true}
	audit := &mockAuditStore{}
	h := NewEscalateIncident(incidents, audit, zap.NewNop())

	result, err := h.Execute(context.Background(), testInvocation(""))
	require.NoError(t, err)
	assert.Contains(t, result, "incident created")
	require.Len(t, incidents.incidents, 1)
	assert.Equal(t, int64(3), incidents.incidents[0].ViolationID)
	assert.Empty(t, audit.entries)
}

func TestEscalateIncidentDegradesWhenStoreUnavailable(t *testing.T) {
	incidents := &mockIncidentStore{available: false}
	audit := &mockAuditStore{}
	h := NewEscalateIncident(incidents, audit, zap.NewNop())

	// Unavailable incident storage degrades to an audit entry, and the
	// action still succeeds.
	result, err := h.Execute(context.Background(), testInvocation(""))
	require.NoError(t, err)
	assert.Contains(t, result, "escalation logged only")
	assert.Empty(t, incidents.incidents)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditTypeDegraded, audit.entries[0].EntryType)
}

func TestIncreaseMonitoringDefaults(t *testing.T) {
	directory := &mockDirectory{}
	h := NewIncreaseMonitoring(directory, zap.NewNop())

	_, err := h.Execute(context.Background(), testInvocation(""))
	require.NoError(t, err)
	assert.Equal(t, 1, directory.level)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), directory.until, time.Minute)
}

func TestIncreaseMonitoringRejectsInvalidConfig(t *testing.T) {
	h := NewIncreaseMonitoring(&mockDirectory{}, zap.NewNop())
	_, err := h.Execute(context.Background(), testInvocation(`{"level": -1}`))
	assert.Error(t, err)
}

func TestDisableAccessRevokes(t *testing.T) {
	identity := &mockIdentity{}
	h := NewDisableAccess(identity, zap.NewNop())

	_, err := h.Execute(context.Background(), testInvocation(""))
	require.NoError(t, err)
	assert.Contains(t, identity.revoked, "emp-1")
	assert.Contains(t, identity.revoked["emp-1"], "test policy")
}

func TestDisableAccessSurfacesFailure(t *testing.T) {
	h := NewDisableAccess(&mockIdentity{err: fmt.Errorf("identity system timeout")}, zap.NewNop())
	_, err := h.Execute(context.Background(), testInvocation(""))
	assert.Error(t, err)
}

func TestLogActivityWritesAuditEntry(t *testing.T) {
	audit := &mockAuditStore{}
	h := NewLogActivity(audit, zap.NewNop())

	_, err := h.Execute(context.Background(), testInvocation(""))
	require.NoError(t, err)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditTypeAction, audit.entries[0].EntryType)
	assert.Equal(t, int64(3), audit.entries[0].ViolationID)
	assert.Contains(t, audit.entries[0].Detail, "test policy")
}

func TestImmediateAlertPartialChannelFailureSucceeds(t *testing.T) {
	working := &mockNotifier{messageID: "om_3"}
	broken := &mockNotifier{err: fmt.Errorf("channel down")}
	h := NewImmediateAlert(map[string]port.Notifier{
		"chat": working,
		"sms":  broken,
	}, []string{"oncall@example.com"}, zap.NewNop())

	result, err := h.Execute(context.Background(), testInvocation(""))
	require.NoError(t, err)
	assert.Contains(t, result, "chat: delivered")
	assert.Contains(t, result, "sms: failed")
	require.Len(t, working.sent, 1)
}

func TestImmediateAlertAllChannelsFailedFails(t *testing.T) {
	h := NewImmediateAlert(map[string]port.Notifier{
		"chat": &mockNotifier{err: fmt.Errorf("down")},
	}, []string{"oncall@example.com"}, zap.NewNop())

	_, err := h.Execute(context.Background(), testInvocation(""))
	assert.Error(t, err)
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_, err := r.Get(models.ActionEmailAlert)
	assert.Error(t, err)
}
