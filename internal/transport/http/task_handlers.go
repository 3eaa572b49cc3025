package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/taskwire/taskwire-server/internal/proto"
	"github.com/taskwire/taskwire-server/internal/service/tasks"
	"github.com/taskwire/taskwire-server/internal/store"
)

// TaskHandlers provides HTTP handlers for task endpoints.
type TaskHandlers struct {
	tasks *tasks.Service
	log   *zerolog.Logger
}

// NewTaskHandlers creates a new task handlers instance.
func NewTaskHandlers(taskService *tasks.Service, logger *zerolog.Logger) *TaskHandlers {
	return &TaskHandlers{
		tasks: taskService,
		log:   logger,
	}
}

// CreateTaskRequest represents the create task request body.
type CreateTaskRequest struct {
	Title       string     `json:"title" binding:"required,min=1,max=200"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	AssigneeID  *int64     `json:"assignee_id"`
}

// UpdateTaskRequest represents the update task request body.
// Omitted fields are left untouched; Unassign and ClearDue reset fields.
type UpdateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	ClearDue    bool       `json:"clear_due"`
	AssigneeID  *int64     `json:"assignee_id"`
	Unassign    bool       `json:"unassign"`
}

// ListTasks handles listing a project's tasks.
// GET /api/projects/:id/tasks
func (h *TaskHandlers) ListTasks(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	list, err := h.tasks.List(c.Request.Context(), userID, projectID)
	if err != nil {
		h.taskError(c, err, "failed to list tasks")
		return
	}

	response := make([]proto.TaskPayload, 0, len(list))
	for _, t := range list {
		response = append(response, proto.TaskFrom(t))
	}
	c.JSON(http.StatusOK, response)
}

// CreateTask handles task creation.
// POST /api/projects/:id/tasks
func (h *TaskHandlers) CreateTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create task request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	detail, err := h.tasks.Create(c.Request.Context(), userID, projectID, tasks.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      store.TaskStatus(req.Status),
		Priority:    store.TaskPriority(req.Priority),
		DueDate:     req.DueDate,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		h.taskError(c, err, "failed to create task")
		return
	}

	c.JSON(http.StatusCreated, proto.TaskFrom(detail))
}

// UpdateTask handles task update.
// PUT /api/tasks/:id
func (h *TaskHandlers) UpdateTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update task request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	input := tasks.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		ClearDue:    req.ClearDue,
		AssigneeID:  req.AssigneeID,
		Unassign:    req.Unassign,
	}
	if req.Status != nil {
		status := store.TaskStatus(*req.Status)
		input.Status = &status
	}
	if req.Priority != nil {
		priority := store.TaskPriority(*req.Priority)
		input.Priority = &priority
	}

	detail, err := h.tasks.Update(c.Request.Context(), userID, taskID, input)
	if err != nil {
		h.taskError(c, err, "failed to update task")
		return
	}

	c.JSON(http.StatusOK, proto.TaskFrom(detail))
}

// DeleteTask handles task deletion.
// DELETE /api/tasks/:id
func (h *TaskHandlers) DeleteTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	taskID, ok := pathID(c, "id")
	if !ok {
		return
	}

	projectID, err := h.tasks.Delete(c.Request.Context(), userID, taskID)
	if err != nil {
		h.taskError(c, err, "failed to delete task")
		return
	}

	c.JSON(http.StatusOK, proto.TaskDeletedPayload{TaskID: taskID, ProjectID: projectID})
}

func (h *TaskHandlers) taskError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, tasks.ErrNotMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a project member"})
	case errors.Is(err, tasks.ErrAssigneeNotMember):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "assignee must be a project member"})
	case errors.Is(err, tasks.ErrInvalidTitle):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid title"})
	case errors.Is(err, tasks.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})
	case errors.Is(err, tasks.ErrInvalidPriority):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid priority"})
	default:
		h.log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
