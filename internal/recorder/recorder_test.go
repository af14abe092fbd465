package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/commguard/commguard/internal/classifier"
	"github.com/commguard/commguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockViolationStore struct {
	byMessageID map[string]*models.Violation
	nextID      int64
}

func newMockViolationStore() *mockViolationStore {
	return &mockViolationStore{byMessageID: make(map[string]*models.Violation)}
}

func (m *mockViolationStore) CreateIfAbsent(ctx context.Context, v *models.Violation) (*models.Violation, bool, error) {
	if existing, ok := m.byMessageID[v.SourceMessageID]; ok {
		return existing, false, nil
	}
	m.nextID++
	v.ID = m.nextID
	m.byMessageID[v.SourceMessageID] = v
	return v, true, nil
}

func (m *mockViolationStore) GetByID(ctx context.Context, id int64) (*models.Violation, error) {
	return nil, nil
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

func testComm() *models.Communication {
	return &models.Communication{
		MessageID: "msg-1",
		SenderID:  "emp-1",
	}
}

func TestRecordBelowThresholdSkips(t *testing.T) {
	store := newMockViolationStore()
	r := New(DefaultConfig(), store, zap.NewNop())

	v, created, err := r.Record(context.Background(), testComm(), &classifier.Result{RiskScore: 69})
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, created)
	assert.Empty(t, store.byMessageID)
}

func TestRecordAtThresholdCreates(t *testing.T) {
	store := newMockViolationStore()
	r := New(DefaultConfig(), store, zap.NewNop())

	result := &classifier.Result{
		RiskScore:     92,
		SecurityScore: 60,
		Category:      "credential_sharing",
		RiskFactors:   []string{"after_hours"},
	}
	v, created, err := r.Record(context.Background(), testComm(), result)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, created)
	assert.Equal(t, models.SeverityCritical, v.Severity)
	assert.Equal(t, "credential_sharing", v.Type)
	assert.Equal(t, models.ViolationStatusActive, v.Status)
	assert.Equal(t, "risk_classifier", v.Source)

	meta, err := v.ParseMetadata()
	require.NoError(t, err)
	assert.Equal(t, 92, meta.RiskScore)
	assert.Equal(t, []string{"after_hours"}, meta.RiskFactors)
}

func TestRecordMandatoryReportBypassesThreshold(t *testing.T) {
	store := newMockViolationStore()
	r := New(DefaultConfig(), store, zap.NewNop())

	result := &classifier.Result{
		RiskScore:       35,
		MandatoryReport: true,
		Findings:        map[string][]string{"pci_dss": {"pattern match: payment card data"}},
	}
	v, created, err := r.Record(context.Background(), testComm(), result)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, created)
	// Below the 40 band boundary the severity is still low; the mandatory
	// flag is what forces the record.
	assert.Equal(t, models.SeverityLow, v.Severity)

	meta, err := v.ParseMetadata()
	require.NoError(t, err)
	assert.True(t, meta.MandatoryReport)
}

func TestRecordUnclassifiedCategoryFallback(t *testing.T) {
	store := newMockViolationStore()
	r := New(DefaultConfig(), store, zap.NewNop())

	v, created, err := r.Record(context.Background(), testComm(), &classifier.Result{RiskScore: 75})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, created)
	assert.Equal(t, "unclassified_risk", v.Type)
}

func TestRecordIsIdempotentOnMessageID(t *testing.T) {
	store := newMockViolationStore()
	r := New(DefaultConfig(), store, zap.NewNop())

	result := &classifier.Result{RiskScore: 80, Category: "data_exfiltration"}
	first, created, err := r.Record(context.Background(), testComm(), result)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := r.Record(context.Background(), testComm(), result)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.byMessageID, 1)
}
