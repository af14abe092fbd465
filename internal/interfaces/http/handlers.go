package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commguard/commguard/internal/ingest"
	"github.com/commguard/commguard/internal/models"
	"github.com/commguard/commguard/internal/port"
	"github.com/commguard/commguard/internal/report"
	"github.com/commguard/commguard/internal/repository"
)

// ingestTimeout bounds background processing of async submissions.
const ingestTimeout = 5 * time.Minute

// Handlers contains all HTTP request handlers
type Handlers struct {
	pipeline   *ingest.Service
	violations port.ViolationStore
	policies   port.PolicyStore
	executions port.ExecutionStore
	audit      port.AuditStore
	exporter   *report.Exporter
	logger     *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	pipeline *ingest.Service,
	violations port.ViolationStore,
	policies port.PolicyStore,
	executions port.ExecutionStore,
	audit port.AuditStore,
	exporter *report.Exporter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		pipeline:   pipeline,
		violations: violations,
		policies:   policies,
		executions: executions,
		audit:      audit,
		exporter:   exporter,
		logger:     logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CommunicationRequest is the ingestion payload. Attachment content is
// base64-encoded in transit.
type CommunicationRequest struct {
	MessageID   string              `json:"message_id" binding:"required"`
	SenderID    string              `json:"sender_id" binding:"required"`
	Recipients  []string            `json:"recipients"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	SentAt      *time.Time          `json:"sent_at"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// AttachmentRequest is one attachment in an ingestion payload.
type AttachmentRequest struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Content  []byte `json:"content,omitempty"`
}

func (r *CommunicationRequest) toModel() *models.Communication {
	sentAt := time.Now().UTC()
	if r.SentAt != nil {
		sentAt = *r.SentAt
	}
	comm := &models.Communication{
		MessageID:  r.MessageID,
		SenderID:   r.SenderID,
		Recipients: r.Recipients,
		Subject:    r.Subject,
		Body:       r.Body,
		SentAt:     sentAt,
	}
	for _, att := range r.Attachments {
		size := att.Size
		if size == 0 {
			size = int64(len(att.Content))
		}
		comm.Attachments = append(comm.Attachments, models.Attachment{
			Name:     att.Name,
			MimeType: att.MimeType,
			Size:     size,
			Content:  att.Content,
		})
	}
	return comm
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// IngestCommunication handles POST /api/v1/communications. With ?async=true
// the pipeline runs in the background and the request returns immediately.
func (h *Handlers) IngestCommunication(c *gin.Context) {
	var req CommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid communication payload: " + err.Error(),
		})
		return
	}

	comm := req.toModel()

	if c.Query("async") == "true" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
			defer cancel()
			if _, err := h.pipeline.Ingest(ctx, comm); err != nil {
				h.logger.Error("Async ingestion failed",
					zap.String("message_id", comm.MessageID),
					zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, Response{
			Success: true,
			Data:    gin.H{"message_id": comm.MessageID, "queued": true},
		})
		return
	}

	outcome, err := h.pipeline.Ingest(c.Request.Context(), comm)
	if err != nil {
		h.logger.Error("Ingestion failed",
			zap.String("message_id", comm.MessageID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to process communication",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    outcome,
	})
}

// ListViolations handles GET /api/v1/violations
func (h *Handlers) ListViolations(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.ValidViolationStatus(status) {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "unknown violation status",
		})
		return
	}
	limit, offset := pagination(c)

	violations, err := h.violations.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list violations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve violations",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: violations})
}

// GetViolation handles GET /api/v1/violations/:id
func (h *Handlers) GetViolation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	violation, err := h.violations.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get violation", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve violation",
		})
		return
	}
	if violation == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "violation not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: violation})
}

// UpdateViolationStatus handles PUT /api/v1/violations/:id/status. Status is
// only changed here, by human review.
func (h *Handlers) UpdateViolationStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "status is required",
		})
		return
	}
	if !models.ValidViolationStatus(req.Status) {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "unknown violation status",
		})
		return
	}

	if err := h.violations.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		h.logger.Error("Failed to update violation status",
			zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to update violation status",
		})
		return
	}

	detail, _ := json.Marshal(map[string]string{"status": req.Status})
	if err := h.audit.Write(c.Request.Context(), &models.AuditEntry{
		ViolationID: id,
		EntryType:   models.AuditTypeHumanReview,
		Detail:      string(detail),
	}); err != nil {
		h.logger.Warn("Failed to record review audit entry",
			zap.Int64("id", id), zap.Error(err))
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListPolicies handles GET /api/v1/policies
func (h *Handlers) ListPolicies(c *gin.Context) {
	policies, err := h.policies.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list policies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve policies",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: policies})
}

// CreatePolicy handles POST /api/v1/policies. Condition and action kinds are
// validated before insert; unknown kinds never reach the evaluator.
func (h *Handlers) CreatePolicy(c *gin.Context) {
	var policy models.Policy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid policy payload: " + err.Error(),
		})
		return
	}

	if err := h.policies.Create(c.Request.Context(), &policy); err != nil {
		h.logger.Error("Failed to create policy",
			zap.String("name", policy.Name), zap.Error(err))
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: policy})
}

// SetPolicyActive handles PUT /api/v1/policies/:id/active
func (h *Handlers) SetPolicyActive(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "active is required",
		})
		return
	}

	if err := h.policies.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		h.logger.Error("Failed to set policy active flag",
			zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to update policy",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListExecutions handles GET /api/v1/executions
func (h *Handlers) ListExecutions(c *gin.Context) {
	status := c.Query("status")
	limit, offset := pagination(c)

	executions, err := h.executions.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "unknown execution status",
			})
			return
		}
		h.logger.Error("Failed to list executions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve executions",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: executions})
}

// GetExecution handles GET /api/v1/executions/:id
func (h *Handlers) GetExecution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	execution, err := h.executions.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get execution", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve execution",
		})
		return
	}
	if execution == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "execution not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: execution})
}

// RequeueExecution handles POST /api/v1/executions/:id/requeue. Only failed
// executions can be re-triggered; the poller picks the row up again.
func (h *Handlers) RequeueExecution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.executions.Requeue(c.Request.Context(), id); err != nil {
		h.logger.Warn("Failed to requeue execution", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ComplianceReportRequest is the report generation payload.
type ComplianceReportRequest struct {
	From string `json:"from" binding:"required"` // YYYY-MM-DD
	To   string `json:"to" binding:"required"`   // YYYY-MM-DD, exclusive
}

// GenerateComplianceReport handles POST /api/v1/reports/compliance
func (h *Handlers) GenerateComplianceReport(c *gin.Context) {
	var req ComplianceReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "from and to dates are required",
		})
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid from date",
		})
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid to date",
		})
		return
	}

	path, err := h.exporter.Export(c.Request.Context(), from, to)
	if err != nil {
		h.logger.Error("Failed to generate compliance report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to generate report",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"report_path": path},
	})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid id",
		})
		return 0, false
	}
	return id, true
}
