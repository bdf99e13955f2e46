package taskdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskdesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// User represents the API user model.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	AssigneeID  string  `json:"assignee_id"`
	DueDate     string  `json:"due_date"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// ActionStep is an item in a task's checklist.
type ActionStep struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// WeeklyReport is a frozen board snapshot.
type WeeklyReport struct {
	ID              string `json:"id"`
	WeekStart       string `json:"week_start"`
	WeekEnd         string `json:"week_end"`
	Summary         string `json:"summary"`
	CompletedCount  int    `json:"completed_count"`
	InProgressCount int    `json:"in_progress_count"`
	OverdueCount    int    `json:"overdue_count"`
	TodoCount       int    `json:"todo_count"`
}

// ActionSummary is the per-employee completion aggregate.
type ActionSummary struct {
	TotalStepsCompleted  int `json:"total_steps_completed"`
	TotalStepsIncomplete int `json:"total_steps_incomplete"`
	CompletionPercentage int `json:"completion_percentage"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login authenticates and stores the returned bearer token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "v0/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "v0/me", nil, &resp)
	return resp.User, err
}

// ActionSummary returns the caller's step completion aggregate.
func (c *Client) ActionSummary(ctx context.Context) (ActionSummary, error) {
	var resp struct {
		Summary ActionSummary `json:"summary"`
	}
	err := c.do(ctx, http.MethodGet, "v0/me/action-summary", nil, &resp)
	return resp.Summary, err
}

// Tasks lists the tasks visible to the caller, optionally by status.
func (c *Client) Tasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := "v0/tasks"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// CreateTask creates a task (admin).
func (c *Client) CreateTask(ctx context.Context, title, assigneeID, dueDate string, steps []string) (Task, error) {
	body := map[string]any{
		"title":       title,
		"assignee_id": assigneeID,
		"due_date":    dueDate,
	}
	if len(steps) > 0 {
		body["action_steps"] = steps
	}
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, "v0/tasks", body, &resp)
	return resp.Task, err
}

// SetTaskStatus moves a task's status.
func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	endpoint := "v0/tasks/" + url.PathEscape(id)
	err := c.do(ctx, http.MethodPut, endpoint, map[string]string{"status": status}, &resp)
	return resp.Task, err
}

// ToggleActionStep sets a step's completion flag.
func (c *Client) ToggleActionStep(ctx context.Context, taskID, stepID string, completed bool) (ActionStep, error) {
	var resp struct {
		ActionStep ActionStep `json:"action_step"`
	}
	endpoint := fmt.Sprintf("v0/tasks/%s/action-steps/%s", url.PathEscape(taskID), url.PathEscape(stepID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]bool{"completed": completed}, &resp)
	return resp.ActionStep, err
}

// AddProgressNote appends a note to a task.
func (c *Client) AddProgressNote(ctx context.Context, taskID, content string) error {
	endpoint := fmt.Sprintf("v0/tasks/%s/notes", url.PathEscape(taskID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]string{"content": content}, nil)
}

// Reports lists the stored weekly reports, newest first.
func (c *Client) Reports(ctx context.Context) ([]WeeklyReport, error) {
	var resp struct {
		Reports []WeeklyReport `json:"reports"`
	}
	err := c.do(ctx, http.MethodGet, "v0/reports", nil, &resp)
	return resp.Reports, err
}

// CreateReport snapshots the board into a weekly report (admin).
func (c *Client) CreateReport(ctx context.Context, summary string) (WeeklyReport, error) {
	var resp struct {
		Report WeeklyReport `json:"report"`
	}
	err := c.do(ctx, http.MethodPost, "v0/reports", map[string]string{"summary": summary}, &resp)
	return resp.Report, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
