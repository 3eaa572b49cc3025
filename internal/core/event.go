package core

import "github.com/taskwire/taskwire-server/internal/store"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventTaskCreated notifies room members about a new task.
	EventTaskCreated EventKind = iota
	// EventTaskUpdated notifies room members about a changed task.
	EventTaskUpdated
	// EventTaskDeleted notifies room members that a task is gone.
	EventTaskDeleted
	// EventProjectCreated notifies room members about a new project.
	EventProjectCreated
	// EventProjectUpdated notifies room members about changed project fields.
	EventProjectUpdated
	// EventProjectDeleted notifies room members that the project is gone.
	EventProjectDeleted
	// EventMemberAdded notifies room members that a user joined the project.
	EventMemberAdded
	// EventMemberRemoved notifies room members that a user left the project.
	EventMemberRemoved
)

// Event describes a committed mutation. Payloads carry the fully populated
// entity; deletions carry identifiers only, since the entity no longer exists.
// Events are immutable once published.
type Event struct {
	Kind      EventKind
	ProjectID int64

	// Task is set for EventTaskCreated and EventTaskUpdated.
	Task *store.TaskDetail
	// TaskID is set for EventTaskDeleted.
	TaskID int64

	// Project is set for project and membership events.
	Project *store.ProjectDetail
	// Member is set for EventMemberAdded.
	Member *store.User
	// MemberID is set for EventMemberRemoved.
	MemberID int64
}
