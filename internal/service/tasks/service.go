package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/taskwire/taskwire-server/internal/core"
	"github.com/taskwire/taskwire-server/internal/store"
)

var (
	// ErrNotMember is returned when the acting user is not a project member.
	ErrNotMember = errors.New("not a project member")
	// ErrAssigneeNotMember is returned when the assignee is not a project member.
	ErrAssigneeNotMember = errors.New("assignee must be a project member")
	// ErrInvalidTitle is returned when the task title is empty or too long.
	ErrInvalidTitle = errors.New("invalid title")
	// ErrInvalidStatus is returned for an unknown workflow state.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidPriority is returned for an unknown priority.
	ErrInvalidPriority = errors.New("invalid priority")
)

// Service is the task mutation pipeline: it authorizes the operation, commits
// the write, re-reads the fully populated entity and publishes it to the
// owning project's room before returning. The returned entity and the
// broadcast payload are the same struct.
type Service struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewService creates a task service.
func NewService(st store.Store, hub *core.Hub, logger *zerolog.Logger) *Service {
	return &Service{store: st, hub: hub, log: logger}
}

// CreateInput holds fields for task creation.
type CreateInput struct {
	Title       string
	Description string
	Status      store.TaskStatus
	Priority    store.TaskPriority
	DueDate     *time.Time
	AssigneeID  *int64
}

// UpdateInput holds fields for task update. Nil pointers leave the field as is.
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *store.TaskStatus
	Priority    *store.TaskPriority
	DueDate     *time.Time
	ClearDue    bool
	AssigneeID  *int64
	Unassign    bool
}

// Create adds a task to a project and broadcasts task-created.
func (s *Service) Create(ctx context.Context, userID, projectID int64, input CreateInput) (*store.TaskDetail, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > 200 {
		return nil, ErrInvalidTitle
	}
	if input.Status == "" {
		input.Status = store.TaskStatusTodo
	}
	if !store.ValidTaskStatus(input.Status) {
		return nil, ErrInvalidStatus
	}
	if input.Priority == "" {
		input.Priority = store.TaskPriorityMedium
	}
	if !store.ValidTaskPriority(input.Priority) {
		return nil, ErrInvalidPriority
	}
	if input.AssigneeID != nil {
		if err := s.requireAssignee(ctx, projectID, *input.AssigneeID); err != nil {
			return nil, err
		}
	}

	task, err := s.store.CreateTask(ctx, &store.Task{
		ProjectID:   projectID,
		Title:       title,
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
		AssigneeID:  input.AssigneeID,
		CreatedByID: userID,
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	detail, err := s.store.GetTaskDetail(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load task detail: %w", err)
	}

	s.hub.Publish(projectID, &core.Event{
		Kind:      core.EventTaskCreated,
		ProjectID: projectID,
		Task:      detail,
	})

	s.log.Info().
		Int64("task_id", detail.ID).
		Int64("project_id", projectID).
		Int64("user_id", userID).
		Msg("task created")
	return detail, nil
}

// Update changes a task's mutable fields and broadcasts task-updated.
func (s *Service) Update(ctx context.Context, userID, taskID int64, input UpdateInput) (*store.TaskDetail, error) {
	task, err := s.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, task.ProjectID, userID); err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > 200 {
			return nil, ErrInvalidTitle
		}
		task.Title = title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Status != nil {
		if !store.ValidTaskStatus(*input.Status) {
			return nil, ErrInvalidStatus
		}
		task.Status = *input.Status
	}
	if input.Priority != nil {
		if !store.ValidTaskPriority(*input.Priority) {
			return nil, ErrInvalidPriority
		}
		task.Priority = *input.Priority
	}
	if input.ClearDue {
		task.DueDate = nil
	} else if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if input.Unassign {
		task.AssigneeID = nil
	} else if input.AssigneeID != nil {
		if err := s.requireAssignee(ctx, task.ProjectID, *input.AssigneeID); err != nil {
			return nil, err
		}
		task.AssigneeID = input.AssigneeID
	}

	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	detail, err := s.store.GetTaskDetail(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("load task detail: %w", err)
	}

	s.hub.Publish(task.ProjectID, &core.Event{
		Kind:      core.EventTaskUpdated,
		ProjectID: task.ProjectID,
		Task:      detail,
	})

	s.log.Info().
		Int64("task_id", detail.ID).
		Int64("project_id", task.ProjectID).
		Int64("user_id", userID).
		Msg("task updated")
	return detail, nil
}

// Delete removes a task and broadcasts task-deleted with identifiers only.
func (s *Service) Delete(ctx context.Context, userID, taskID int64) (projectID int64, err error) {
	task, err := s.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if err := s.requireMember(ctx, task.ProjectID, userID); err != nil {
		return 0, err
	}

	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return 0, fmt.Errorf("delete task: %w", err)
	}

	s.hub.Publish(task.ProjectID, &core.Event{
		Kind:      core.EventTaskDeleted,
		ProjectID: task.ProjectID,
		TaskID:    taskID,
	})

	s.log.Info().
		Int64("task_id", taskID).
		Int64("project_id", task.ProjectID).
		Int64("user_id", userID).
		Msg("task deleted")
	return task.ProjectID, nil
}

// List returns the tasks of a project with references resolved.
func (s *Service) List(ctx context.Context, userID, projectID int64) ([]*store.TaskDetail, error) {
	if err := s.requireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.store.ListTaskDetails(ctx, projectID)
}

func (s *Service) requireMember(ctx context.Context, projectID, userID int64) error {
	ok, err := s.store.IsMember(ctx, projectID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}

func (s *Service) requireAssignee(ctx context.Context, projectID, assigneeID int64) error {
	ok, err := s.store.IsMember(ctx, projectID, assigneeID)
	if err != nil {
		return fmt.Errorf("check assignee membership: %w", err)
	}
	if !ok {
		return ErrAssigneeNotMember
	}
	return nil
}
