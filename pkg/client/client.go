package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProcessClient is a thin REST + WebSocket SDK for the cliflow API.
type ProcessClient struct {
	baseURL    string
	httpClient *http.Client
	opts       *options
	ws         *WebSocketClient
}

// New creates a new ProcessClient against baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) (*ProcessClient, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &ProcessClient{
		baseURL:    baseURL,
		httpClient: o.httpClient,
		opts:       o,
	}, nil
}

// StartProcessRequest mirrors internal/api/handlers.StartProcessRequest.
type StartProcessRequest struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	InputData map[string]any `json:"input_data,omitempty"`
}

// ProcessRecord mirrors internal/model.ProcessRecord's JSON shape.
type ProcessRecord struct {
	ID               string         `json:"id"`
	Type             string         `json:"type"`
	InputData        string         `json:"input_data"`
	CurrentStatus    string         `json:"current_status"`
	CurrentTaskIndex int            `json:"current_task_index"`
	TotalTasks       int            `json:"total_tasks"`
	LastErrorMessage string         `json:"last_error_message,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TaskData mirrors internal/model.TaskData's JSON shape.
type TaskData struct {
	TaskID          string `json:"task_id"`
	ProcessRecordID string `json:"process_record_id"`
	TaskIndex       int    `json:"task_index"`
	Name            string `json:"name"`
	Command         string `json:"command"`
	Status          string `json:"status"`
	RetryCount      int    `json:"retry_count"`
	ExitCode        *int   `json:"exit_code,omitempty"`
	Output          string `json:"output,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// ErrorResponse mirrors internal/api/handlers.ErrorResponse.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// APIError wraps a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Body       ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cliflow: %d %s: %s", e.StatusCode, e.Body.Error, e.Body.Message)
}

// StartProcess calls POST /api/v1/processes and returns the new process id.
func (c *ProcessClient) StartProcess(ctx context.Context, req StartProcessRequest) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/processes", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetProcess calls GET /api/v1/processes/{id}.
func (c *ProcessClient) GetProcess(ctx context.Context, processID string) (*ProcessRecord, error) {
	var record ProcessRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/processes/"+processID, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetProcessTasks calls GET /api/v1/processes/{id}/tasks.
func (c *ProcessClient) GetProcessTasks(ctx context.Context, processID string) ([]*TaskData, error) {
	var resp struct {
		Tasks []*TaskData `json:"tasks"`
		Count int         `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/processes/"+processID+"/tasks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// StopProcess calls POST /api/v1/processes/{id}/stop.
func (c *ProcessClient) StopProcess(ctx context.Context, processID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/processes/"+processID+"/stop", nil, nil)
}

// ListProcessesByStatus calls GET /admin/processes?status=.
func (c *ProcessClient) ListProcessesByStatus(ctx context.Context, status string) ([]*ProcessRecord, error) {
	var resp struct {
		Processes []*ProcessRecord `json:"processes"`
		Count     int              `json:"count"`
	}
	path := "/admin/processes"
	if status != "" {
		path += "?status=" + status
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Processes, nil
}

// CheckHealth calls GET /admin/health.
func (c *ProcessClient) CheckHealth(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/admin/health", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ConnectWebSocket establishes a WebSocket connection for real-time events.
func (c *ProcessClient) ConnectWebSocket(ctx context.Context) error {
	if c.ws != nil && c.ws.IsConnected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns a channel that receives WebSocket events. Must call
// ConnectWebSocket first.
func (c *ProcessClient) Events() <-chan *Event {
	if c.ws == nil {
		ch := make(chan *Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// CloseWebSocket closes the WebSocket connection.
func (c *ProcessClient) CloseWebSocket() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// SubscribeEvents subscribes to specific event types.
func (c *ProcessClient) SubscribeEvents(eventTypes ...EventType) error {
	if c.ws == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.ws.Subscribe(eventTypes...)
}

func (c *ProcessClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cliflow: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("cliflow: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.opts.applyHeaders()(ctx, req); err != nil {
		return fmt.Errorf("cliflow: apply headers: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cliflow: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &APIError{StatusCode: resp.StatusCode, Body: errResp}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cliflow: decode response: %w", err)
	}
	return nil
}
