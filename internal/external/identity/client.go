package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config holds the identity system endpoint and credentials.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client requests access revocation from the external identity system.
// Calls are best-effort: failures are returned to the caller and surfaced as
// handler failures, never retried here.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an identity client with a bounded request timeout.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

type revokeRequest struct {
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
}

// RevokeAccess asks the identity system to suspend the employee's access.
func (c *Client) RevokeAccess(ctx context.Context, employeeID, reason string) error {
	if !c.Configured() {
		return fmt.Errorf("identity system is not configured")
	}

	payload, err := json.Marshal(revokeRequest{EmployeeID: employeeID, Reason: reason})
	if err != nil {
		return fmt.Errorf("failed to marshal revoke request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/access/revoke", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Identity system request failed",
			zap.String("employee_id", employeeID),
			zap.Error(err))
		return fmt.Errorf("identity system request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Identity system rejected revocation",
			zap.String("employee_id", employeeID),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("identity system returned status %d", resp.StatusCode)
	}

	c.logger.Info("Access revocation requested",
		zap.String("employee_id", employeeID),
		zap.String("reason", reason))

	return nil
}
