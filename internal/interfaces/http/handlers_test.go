package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/commguard/commguard/internal/models"
)

type stubViolationStore struct {
	updatedID     int64
	updatedStatus string
}

func (s *stubViolationStore) CreateIfAbsent(ctx context.Context, v *models.Violation) (*models.Violation, bool, error) {
	return v, true, nil
}

func (s *stubViolationStore) GetByID(ctx context.Context, id int64) (*models.Violation, error) {
	return nil, nil
}

func (s *stubViolationStore) List(ctx context.Context, status string, limit, offset int) ([]*models.Violation, error) {
	return nil, nil
}

func (s *stubViolationStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	s.updatedID = id
	s.updatedStatus = status
	return nil
}

func (s *stubViolationStore) CountByEmployeeAndType(ctx context.Context, employeeID, violationType string, since time.Time) (int, error) {
	return 0, nil
}

func (s *stubViolationStore) ListByPeriod(ctx context.Context, from, to time.Time) ([]*models.Violation, error) {
	return nil, nil
}

type stubAuditStore struct {
	entries []*models.AuditEntry
}

func (s *stubAuditStore) Write(ctx context.Context, entry *models.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func reviewRouter(violations *stubViolationStore, audit *stubAuditStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(nil, violations, nil, nil, audit, nil, zap.NewNop())
	router := gin.New()
	router.PUT("/api/v1/violations/:id/status", h.UpdateViolationStatus)
	return router
}

func TestUpdateViolationStatusWritesReviewAuditEntry(t *testing.T) {
	violations := &stubViolationStore{}
	audit := &stubAuditStore{}
	router := reviewRouter(violations, audit)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/violations/7/status",
		strings.NewReader(`{"status":"resolved"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), violations.updatedID)
	assert.Equal(t, models.ViolationStatusResolved, violations.updatedStatus)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditTypeHumanReview, entry.EntryType)
	assert.Equal(t, int64(7), entry.ViolationID)
	assert.Contains(t, entry.Detail, `"status":"resolved"`)
}

func TestUpdateViolationStatusRejectsUnknownStatus(t *testing.T) {
	violations := &stubViolationStore{}
	audit := &stubAuditStore{}
	router := reviewRouter(violations, audit)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/violations/7/status",
		strings.NewReader(`{"status":"closed"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, violations.updatedID)
	assert.Empty(t, audit.entries)
}
