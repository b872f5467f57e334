package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Task mirrors internal/task.Task's wire shape.
type Task struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Command        string            `json:"command"`
	Note           string            `json:"note,omitempty"`
	Devices        []int             `json:"devices,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	Status         string            `json:"status"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	ExitCode       *int              `json:"exit_code,omitempty"`
	ErrorMsg       string            `json:"error_message,omitempty"`
	LogPath        string            `json:"log_path,omitempty"`
	DeviceConflict string            `json:"devices_conflict,omitempty"`
}

// HistoryRecord mirrors internal/task.HistoryRecord's wire shape.
type HistoryRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Command   string        `json:"command"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	ErrorMsg  string        `json:"error_message,omitempty"`
	LogPath   string        `json:"log_path,omitempty"`
}

// QueueInfo mirrors internal/workspace.QueueInfo's wire shape: the
// descriptor fields at the top level and the live counters nested
// under "Status". POST /api/queues returns the descriptor only, so
// Status stays zero in CreateQueue's result.
type QueueInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ConfigPath string `json:"yaml_path"`
	Status     struct {
		AutoRunning  bool
		PendingCount int
		RunningCount int
	} `json:"Status"`
}

// UpdatePreview mirrors internal/queue.UpdatePreview's wire shape.
type UpdatePreview struct {
	Name   string `json:"name"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// QueueStatus is the aggregate response of GET /api/queue-status.
type QueueStatus struct {
	Queues   []QueueStatusEntry `json:"queues"`
	BusyGPUs map[int]string     `json:"busy_gpus"`
}

// QueueStatusEntry is one queue's row within QueueStatus.
type QueueStatusEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AutoRunning  bool   `json:"auto_running"`
	PendingCount int    `json:"pending_count"`
	RunningCount int    `json:"running_count"`
}

// SelectedTask is one task description for LoadSelectedTasks.
type SelectedTask struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Note    string            `json:"note,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Client is a thin, hand-rolled HTTP client for the taskflow control
// API: every call maps directly onto one REST endpoint, with no
// generated transport layer between this package and net/http.
type Client struct {
	baseURL string
	http    *http.Client
	headers map[string]string
	cookie  string
}

// New creates a Client against baseURL (e.g. "http://localhost:8765").
func New(baseURL string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    o.httpClient,
		headers: o.headers,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session_token", Value: c.cookie})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(data)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, apiErr.Message)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// Login authenticates against POST /api/auth/login and stores the
// returned session cookie for subsequent calls.
func (c *Client) Login(ctx context.Context, password string) error {
	// Login sets no client-side cookie jar, so the server's Set-Cookie
	// header has to be captured manually via a raw request.
	data, _ := json.Marshal(map[string]string{"password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed: %d %s", resp.StatusCode, string(body))
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == "session_token" {
			c.cookie = ck.Value
		}
	}
	return nil
}

// Logout clears the local session cookie after calling POST /api/auth/logout.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return err
	}
	c.cookie = ""
	return nil
}

// ListQueues calls GET /api/queues.
func (c *Client) ListQueues(ctx context.Context) ([]QueueInfo, error) {
	var out []QueueInfo
	err := c.do(ctx, http.MethodGet, "/api/queues", nil, &out)
	return out, err
}

// CreateQueue calls POST /api/queues.
func (c *Client) CreateQueue(ctx context.Context, name, yamlPath string) (*QueueInfo, error) {
	var out QueueInfo
	body := map[string]string{"name": name, "yaml_path": yamlPath}
	err := c.do(ctx, http.MethodPost, "/api/queues", body, &out)
	return &out, err
}

// DeleteQueue calls DELETE /api/queues/{qid}.
func (c *Client) DeleteQueue(ctx context.Context, queueID string) error {
	return c.do(ctx, http.MethodDelete, "/api/queues/"+url.PathEscape(queueID), nil, nil)
}

// QueueTasks calls GET /api/queues/{qid}/tasks.
func (c *Client) QueueTasks(ctx context.Context, queueID string) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodGet, "/api/queues/"+url.PathEscape(queueID)+"/tasks", nil, &out)
	return out, err
}

// QueueHistory calls GET /api/queues/{qid}/history.
func (c *Client) QueueHistory(ctx context.Context, queueID string) ([]HistoryRecord, error) {
	var out []HistoryRecord
	err := c.do(ctx, http.MethodGet, "/api/queues/"+url.PathEscape(queueID)+"/history", nil, &out)
	return out, err
}

// RunTask calls POST /api/tasks/{tid}/run.
func (c *Client) RunTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/run", nil, nil)
}

// StopTask calls POST /api/tasks/{tid}/stop.
func (c *Client) StopTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/stop", nil, nil)
}

// RetryTask calls POST /api/tasks/{tid}/retry.
func (c *Client) RetryTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/retry", nil, nil)
}

// TaskLogs calls GET /api/logs/{tid}?lines=n.
func (c *Client) TaskLogs(ctx context.Context, taskID string, lines int) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	path := fmt.Sprintf("/api/logs/%s?lines=%d", url.PathEscape(taskID), lines)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Lines, err
}

// StopAll calls POST /api/stop-all.
func (c *Client) StopAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/stop-all", nil, nil)
}

// StartQueueAuto calls POST /api/start-queue.
func (c *Client) StartQueueAuto(ctx context.Context, queueID string) error {
	return c.do(ctx, http.MethodPost, "/api/start-queue", map[string]string{"queue_id": queueID}, nil)
}

// StopQueueAuto calls POST /api/stop-queue.
func (c *Client) StopQueueAuto(ctx context.Context, queueID string) error {
	return c.do(ctx, http.MethodPost, "/api/stop-queue", map[string]string{"queue_id": queueID}, nil)
}

// GetQueueStatus calls GET /api/queue-status.
func (c *Client) GetQueueStatus(ctx context.Context) (*QueueStatus, error) {
	var out QueueStatus
	err := c.do(ctx, http.MethodGet, "/api/queue-status", nil, &out)
	return &out, err
}

// MainLog calls GET /api/main-log?lines=n.
func (c *Client) MainLog(ctx context.Context, lines int) ([]string, error) {
	var out struct {
		Lines []string `json:"lines"`
	}
	path := "/api/main-log?lines=" + strconv.Itoa(lines)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Lines, err
}

// Reload calls POST /api/reload.
func (c *Client) Reload(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, "/api/reload", nil, &out)
	return out, err
}

// CheckYAML calls GET /api/check-yaml?queue_id=.
func (c *Client) CheckYAML(ctx context.Context, queueID string) ([]UpdatePreview, error) {
	var out []UpdatePreview
	path := "/api/check-yaml?queue_id=" + url.QueryEscape(queueID)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// LoadNewTasks calls POST /api/load-new-tasks.
func (c *Client) LoadNewTasks(ctx context.Context, queueID string) (added, rejected []string, err error) {
	var out struct {
		Added    []string `json:"added"`
		Rejected []string `json:"rejected"`
	}
	err = c.do(ctx, http.MethodPost, "/api/load-new-tasks", map[string]string{"queue_id": queueID}, &out)
	return out.Added, out.Rejected, err
}

// LoadSelectedTasks calls POST /api/load-selected-tasks.
func (c *Client) LoadSelectedTasks(ctx context.Context, queueID string, tasks []SelectedTask) (added, rejected []string, err error) {
	var out struct {
		Added    []string `json:"added"`
		Rejected []string `json:"rejected"`
	}
	body := map[string]any{"queue_id": queueID, "tasks": tasks}
	err = c.do(ctx, http.MethodPost, "/api/load-selected-tasks", body, &out)
	return out.Added, out.Rejected, err
}
