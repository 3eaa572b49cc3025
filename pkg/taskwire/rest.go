package taskwire

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

// APIError is a non-2xx REST response. Mutation failures perform no local
// state change; the caller surfaces the error to the initiating action only.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// REST is the HTTP client for the taskwire REST API. Every successful
// mutation returns the same fully populated entity shape that the server
// broadcasts to the project's room.
type REST struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewREST creates a REST client with the given bearer token.
func NewREST(baseURL, token string) *REST {
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Login exchanges credentials for a bearer token.
func Login(ctx context.Context, baseURL, username, password string) (string, error) {
	r := NewREST(baseURL, "")
	var resp struct {
		Token string `json:"token"`
	}
	err := r.do(ctx, http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Register creates an account and returns a bearer token.
func Register(ctx context.Context, baseURL, username, password string) (string, error) {
	r := NewREST(baseURL, "")
	var resp struct {
		Token string `json:"token"`
	}
	err := r.do(ctx, http.MethodPost, "/api/register", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// FetchProject loads a project and its current tasks in one call.
func (r *REST) FetchProject(ctx context.Context, projectID int64) (*Project, []Task, error) {
	var resp struct {
		Project Project `json:"project"`
		Tasks   []Task  `json:"tasks"`
	}
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/api/projects/%d", projectID), nil, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.Project, resp.Tasks, nil
}

// ListProjects returns the caller's projects.
func (r *REST) ListProjects(ctx context.Context) ([]ProjectRef, error) {
	var resp []ProjectRef
	if err := r.do(ctx, http.MethodGet, "/api/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateProject makes a new project and returns it populated.
func (r *REST) CreateProject(ctx context.Context, name, color string) (*Project, error) {
	var project Project
	err := r.do(ctx, http.MethodPost, "/api/projects", map[string]string{
		"name":  name,
		"color": color,
	}, &project)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// CreateTaskInput holds fields for task creation.
type CreateTaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
}

// UpdateTaskInput holds fields for task update; nil fields are left as is.
type UpdateTaskInput struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	ClearDue    bool       `json:"clear_due,omitempty"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	Unassign    bool       `json:"unassign,omitempty"`
}

// CreateTask adds a task and returns it populated.
func (r *REST) CreateTask(ctx context.Context, projectID int64, input CreateTaskInput) (*Task, error) {
	var task Task
	if err := r.do(ctx, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), input, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask changes a task and returns it populated.
func (r *REST) UpdateTask(ctx context.Context, taskID int64, input UpdateTaskInput) (*Task, error) {
	var task Task
	if err := r.do(ctx, http.MethodPut, fmt.Sprintf("/api/tasks/%d", taskID), input, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes a task.
func (r *REST) DeleteTask(ctx context.Context, taskID int64) (*TaskDeleted, error) {
	var deleted TaskDeleted
	if err := r.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", taskID), nil, &deleted); err != nil {
		return nil, err
	}
	return &deleted, nil
}

// AddMember adds a user to a project and returns the updated project.
func (r *REST) AddMember(ctx context.Context, projectID, userID int64) (*Project, error) {
	var project Project
	err := r.do(ctx, http.MethodPost, fmt.Sprintf("/api/projects/%d/members", projectID), map[string]int64{
		"user_id": userID,
	}, &project)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// RemoveMember removes a user from a project and returns the updated project.
func (r *REST) RemoveMember(ctx context.Context, projectID, userID int64) (*Project, error) {
	var project Project
	err := r.do(ctx, http.MethodDelete, fmt.Sprintf("/api/projects/%d/members/%d", projectID, userID), nil, &project)
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *REST) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
