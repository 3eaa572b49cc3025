// Package taskwire is the Go client SDK for the taskwire server: a push-channel
// connection with automatic rejoin, a per-connection event bus and a view
// reconciler that folds REST responses and pushed events into one consistent,
// duplicate-free task list.
package taskwire

import "time"

// EventKind identifies a push-channel event.
type EventKind string

const (
	EventTaskCreated    EventKind = "task-created"
	EventTaskUpdated    EventKind = "task-updated"
	EventTaskDeleted    EventKind = "task-deleted"
	EventProjectCreated EventKind = "project-created"
	EventProjectUpdated EventKind = "project-updated"
	EventProjectDeleted EventKind = "project-deleted"
	EventMemberAdded    EventKind = "project-member-added"
	EventMemberRemoved  EventKind = "project-member-removed"
)

// User is the public user shape.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ProjectRef is the compact project summary embedded in tasks.
type ProjectRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Task is the fully populated task entity, identical for REST responses and
// pushed events.
type Task struct {
	ID          int64      `json:"id"`
	Project     ProjectRef `json:"project"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Assignee    *User      `json:"assignee,omitempty"`
	CreatedBy   User       `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Project is the fully populated project entity, member list included.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Owner     User      `json:"owner"`
	Members   []User    `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskDeleted carries identifiers of a removed task.
type TaskDeleted struct {
	TaskID    int64 `json:"task_id"`
	ProjectID int64 `json:"project_id"`
}

// ProjectDeleted carries the identifier of a removed project.
type ProjectDeleted struct {
	ProjectID int64 `json:"project_id"`
}

// MemberAdded carries the updated project and the new member.
type MemberAdded struct {
	Project   Project `json:"project"`
	NewMember User    `json:"new_member"`
}

// MemberRemoved carries the updated project and the removed member's ID.
type MemberRemoved struct {
	Project         Project `json:"project"`
	RemovedMemberID int64   `json:"removed_member_id"`
}

// Event is the tagged union delivered to bus listeners. Kind selects which
// payload field is set.
type Event struct {
	Kind EventKind

	Task           *Task
	TaskDeleted    *TaskDeleted
	Project        *Project
	ProjectDeleted *ProjectDeleted
	MemberAdded    *MemberAdded
	MemberRemoved  *MemberRemoved
}

// ProjectID returns the project the event is scoped to.
func (e *Event) ProjectID() int64 {
	switch {
	case e.Task != nil:
		return e.Task.Project.ID
	case e.TaskDeleted != nil:
		return e.TaskDeleted.ProjectID
	case e.Project != nil:
		return e.Project.ID
	case e.ProjectDeleted != nil:
		return e.ProjectDeleted.ProjectID
	case e.MemberAdded != nil:
		return e.MemberAdded.Project.ID
	case e.MemberRemoved != nil:
		return e.MemberRemoved.Project.ID
	}
	return 0
}
