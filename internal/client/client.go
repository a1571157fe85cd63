// Package client is a thin HTTP client for a running ChainSage server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/types"
)

// DefaultBaseURL is used when no base URL is given
const DefaultBaseURL = "http://localhost:3000"

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chainsage api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chainsage api: %d %s", e.StatusCode, e.Message)
}

// Client calls the ChainSage HTTP API
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for baseURL
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// AlertsResponse is the body of the alert listing endpoints
type AlertsResponse struct {
	Success bool                 `json:"success"`
	Count   int                  `json:"count"`
	Alerts  []*models.Assessment `json:"alerts"`
}

// AgentResponse is the body of the start and stop endpoints
type AgentResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Status  types.AgentStatus `json:"status"`
}

type statsResponse struct {
	Success bool               `json:"success"`
	Stats   *models.AlertStats `json:"stats"`
}

type alertResponse struct {
	Success bool               `json:"success"`
	Alert   *models.Assessment `json:"alert"`
}

// WalletInsights returns the stored assessments of one wallet, newest first
func (c *Client) WalletInsights(ctx context.Context, wallet string, limit int) (*AlertsResponse, error) {
	path := "/api/alerts/wallet/" + url.PathEscape(wallet)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out AlertsResponse
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartAgent starts the monitoring loop
func (c *Client) StartAgent(ctx context.Context) (*AgentResponse, error) {
	var out AgentResponse
	if err := c.do(ctx, http.MethodPost, "/api/agent/start", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopAgent stops the monitoring loop
func (c *Client) StopAgent(ctx context.Context) (*AgentResponse, error) {
	var out AgentResponse
	if err := c.do(ctx, http.MethodPost, "/api/agent/stop", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AgentStatus returns the scheduler state
func (c *Client) AgentStatus(ctx context.Context) (*types.AgentStatus, error) {
	var out types.AgentStatus
	if err := c.do(ctx, http.MethodGet, "/api/agent/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunOnce triggers one pass and returns its assessment
func (c *Client) RunOnce(ctx context.Context) (*models.Assessment, error) {
	var out alertResponse
	if err := c.do(ctx, http.MethodPost, "/api/agent/run", &out); err != nil {
		return nil, err
	}
	return out.Alert, nil
}

// RecentAlerts returns the newest assessments across wallets
func (c *Client) RecentAlerts(ctx context.Context, limit int) (*AlertsResponse, error) {
	path := "/api/alerts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out AlertsResponse
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns assessment counts per score band
func (c *Client) Stats(ctx context.Context) (*models.AlertStats, error) {
	var out statsResponse
	if err := c.do(ctx, http.MethodGet, "/api/stats", &out); err != nil {
		return nil, err
	}
	return out.Stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errBody struct {
			Error types.ServiceError `json:"error"`
		}
		if json.Unmarshal(body, &errBody) == nil && errBody.Error.Code != "" {
			apiErr.Code = errBody.Error.Code
			apiErr.Message = errBody.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
