package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Project represents a shared task board.
type Project struct {
	ID        int64
	Name      string
	Color     string
	OwnerID   int64
	CreatedAt time.Time
}

// ProjectMember represents project membership.
type ProjectMember struct {
	ProjectID int64
	UserID    int64
	AddedAt   time.Time
}

// TaskStatus defines the workflow state of a task.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// ValidTaskStatus reports whether s is a known workflow state.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// TaskPriority defines task urgency.
type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// ValidTaskPriority reports whether p is a known priority.
func ValidTaskPriority(p TaskPriority) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// Task represents a persisted task row.
type Task struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
	AssigneeID  *int64
	CreatedByID int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectDetail is a project with its owner and member list resolved.
// It is the authoritative shape returned by mutations and carried in events.
type ProjectDetail struct {
	Project
	Owner   User
	Members []User
}

// TaskDetail is a task with its project summary, assignee and creator resolved.
type TaskDetail struct {
	Task
	ProjectName  string
	ProjectColor string
	Assignee     *User
	CreatedBy    User
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username prefix.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// ProjectStore handles project and membership persistence.
type ProjectStore interface {
	// CreateProject creates a project and adds the owner as its first member.
	CreateProject(ctx context.Context, name, color string, ownerID int64) (*Project, error)

	// GetProjectByID retrieves a project by ID.
	GetProjectByID(ctx context.Context, id int64) (*Project, error)

	// GetProjectDetail retrieves a project with owner and members resolved.
	GetProjectDetail(ctx context.Context, id int64) (*ProjectDetail, error)

	// UpdateProject updates name and color of a project.
	UpdateProject(ctx context.Context, id int64, name, color string) error

	// DeleteProject removes a project, its membership rows and its tasks.
	DeleteProject(ctx context.Context, id int64) error

	// ListProjects lists projects the user owns or is a member of.
	ListProjects(ctx context.Context, userID int64) ([]*Project, error)

	// AddMember adds a user to a project. Adding an existing member is a no-op.
	AddMember(ctx context.Context, projectID, userID int64) error

	// RemoveMember removes a user from a project.
	RemoveMember(ctx context.Context, projectID, userID int64) error

	// IsMember checks if user is a member of the project.
	IsMember(ctx context.Context, projectID, userID int64) (bool, error)

	// ListMembers lists all members of a project.
	ListMembers(ctx context.Context, projectID int64) ([]*User, error)
}

// TaskStore handles task persistence.
type TaskStore interface {
	// CreateTask persists a new task and returns it with generated fields set.
	CreateTask(ctx context.Context, task *Task) (*Task, error)

	// GetTaskByID retrieves a task by ID.
	GetTaskByID(ctx context.Context, id int64) (*Task, error)

	// GetTaskDetail retrieves a task with project, assignee and creator resolved.
	GetTaskDetail(ctx context.Context, id int64) (*TaskDetail, error)

	// UpdateTask overwrites the mutable fields of a task.
	UpdateTask(ctx context.Context, task *Task) error

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, id int64) error

	// ListTasks lists tasks of a project, newest first.
	ListTasks(ctx context.Context, projectID int64) ([]*Task, error)

	// ListTaskDetails lists tasks of a project with references resolved, newest first.
	ListTaskDetails(ctx context.Context, projectID int64) ([]*TaskDetail, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ProjectStore
	TaskStore

	// Close closes the underlying database connection.
	Close() error
}
