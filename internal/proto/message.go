package proto

import (
	"encoding/json"
	"time"

	"github.com/taskwire/taskwire-server/internal/store"
)

// Inbound is the envelope for control messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoinProject  = "join-project"
	InboundTypeLeaveProject = "leave-project"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Push-channel event names. One per mutation kind; payloads always carry the
// fully populated entity, or identifiers for deletions.
const (
	EventTaskCreated    = "task-created"
	EventTaskUpdated    = "task-updated"
	EventTaskDeleted    = "task-deleted"
	EventProjectCreated = "project-created"
	EventProjectUpdated = "project-updated"
	EventProjectDeleted = "project-deleted"
	EventMemberAdded    = "project-member-added"
	EventMemberRemoved  = "project-member-removed"
)

// RoomData identifies the project room a control message targets.
type RoomData struct {
	ProjectID int64 `json:"project_id"`
}

// Outbound is the envelope for messages pushed to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// UserPayload is the public user shape.
type UserPayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ProjectRef is the compact project summary embedded in task payloads.
type ProjectRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TaskPayload is the fully populated task shape. The REST response for a task
// mutation and the broadcast echo of the same mutation both serialize this
// struct, so the two representations are structurally identical.
type TaskPayload struct {
	ID          int64        `json:"id"`
	Project     ProjectRef   `json:"project"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Priority    string       `json:"priority"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	Assignee    *UserPayload `json:"assignee,omitempty"`
	CreatedBy   UserPayload  `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ProjectPayload is the fully populated project shape, member list included,
// so clients recompute assignee-selection UI without a follow-up fetch.
type ProjectPayload struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Color     string        `json:"color"`
	Owner     UserPayload   `json:"owner"`
	Members   []UserPayload `json:"members"`
	CreatedAt time.Time     `json:"created_at"`
}

// TaskDeletedPayload carries identifiers only; the task itself is gone.
type TaskDeletedPayload struct {
	TaskID    int64 `json:"task_id"`
	ProjectID int64 `json:"project_id"`
}

// ProjectDeletedPayload carries the deleted project's identifier.
type ProjectDeletedPayload struct {
	ProjectID int64 `json:"project_id"`
}

// MemberAddedPayload carries the updated project and the new member.
type MemberAddedPayload struct {
	Project   ProjectPayload `json:"project"`
	NewMember UserPayload    `json:"new_member"`
}

// MemberRemovedPayload carries the updated project and the removed member's ID.
type MemberRemovedPayload struct {
	Project         ProjectPayload `json:"project"`
	RemovedMemberID int64          `json:"removed_member_id"`
}

// UserFrom maps a store user to its public shape.
func UserFrom(u *store.User) UserPayload {
	return UserPayload{ID: u.ID, Username: u.Username}
}

// TaskFrom maps a resolved task to its wire shape.
func TaskFrom(d *store.TaskDetail) TaskPayload {
	payload := TaskPayload{
		ID: d.ID,
		Project: ProjectRef{
			ID:    d.ProjectID,
			Name:  d.ProjectName,
			Color: d.ProjectColor,
		},
		Title:       d.Title,
		Description: d.Description,
		Status:      string(d.Status),
		Priority:    string(d.Priority),
		DueDate:     d.DueDate,
		CreatedBy:   UserFrom(&d.CreatedBy),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Assignee != nil {
		assignee := UserFrom(d.Assignee)
		payload.Assignee = &assignee
	}
	return payload
}

// ProjectFrom maps a resolved project to its wire shape.
func ProjectFrom(d *store.ProjectDetail) ProjectPayload {
	members := make([]UserPayload, 0, len(d.Members))
	for i := range d.Members {
		members = append(members, UserFrom(&d.Members[i]))
	}
	return ProjectPayload{
		ID:        d.ID,
		Name:      d.Name,
		Color:     d.Color,
		Owner:     UserFrom(&d.Owner),
		Members:   members,
		CreatedAt: d.CreatedAt,
	}
}
