package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/taskwire/taskwire-server/internal/proto"
	"github.com/taskwire/taskwire-server/internal/service/projects"
	"github.com/taskwire/taskwire-server/internal/service/tasks"
	"github.com/taskwire/taskwire-server/internal/store"
)

// ProjectHandlers provides HTTP handlers for project endpoints.
type ProjectHandlers struct {
	projects *projects.Service
	tasks    *tasks.Service
	log      *zerolog.Logger
}

// NewProjectHandlers creates a new project handlers instance.
func NewProjectHandlers(projectService *projects.Service, taskService *tasks.Service, logger *zerolog.Logger) *ProjectHandlers {
	return &ProjectHandlers{
		projects: projectService,
		tasks:    taskService,
		log:      logger,
	}
}

// ProjectRequest represents the create/update project request body.
type ProjectRequest struct {
	Name  string `json:"name" binding:"required,min=1,max=100"`
	Color string `json:"color"`
}

// AddMemberRequest represents the add member request body.
type AddMemberRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// ProjectWithTasksResponse is the project view payload: the populated project
// plus its current task list in one fetch.
type ProjectWithTasksResponse struct {
	Project proto.ProjectPayload `json:"project"`
	Tasks   []proto.TaskPayload  `json:"tasks"`
}

// ProjectSummary is the compact shape used in project listings.
type ProjectSummary struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	OwnerID   int64  `json:"owner_id"`
	CreatedAt string `json:"created_at"`
}

// ListProjects handles listing the user's projects.
// GET /api/projects
func (h *ProjectHandlers) ListProjects(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	list, err := h.projects.List(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list projects")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ProjectSummary, 0, len(list))
	for _, p := range list {
		response = append(response, ProjectSummary{
			ID:        p.ID,
			Name:      p.Name,
			Color:     p.Color,
			OwnerID:   p.OwnerID,
			CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	c.JSON(http.StatusOK, response)
}

// CreateProject handles project creation.
// POST /api/projects
func (h *ProjectHandlers) CreateProject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create project request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	detail, err := h.projects.Create(c.Request.Context(), userID, req.Name, req.Color)
	if err != nil {
		h.projectError(c, err, "failed to create project")
		return
	}

	c.JSON(http.StatusCreated, proto.ProjectFrom(detail))
}

// GetProject handles fetching one project with its tasks.
// GET /api/projects/:id
func (h *ProjectHandlers) GetProject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.projects.Get(c.Request.Context(), userID, projectID)
	if err != nil {
		h.projectError(c, err, "failed to get project")
		return
	}

	taskList, err := h.tasks.List(c.Request.Context(), userID, projectID)
	if err != nil {
		h.projectError(c, err, "failed to list project tasks")
		return
	}

	response := ProjectWithTasksResponse{
		Project: proto.ProjectFrom(detail),
		Tasks:   make([]proto.TaskPayload, 0, len(taskList)),
	}
	for _, t := range taskList {
		response.Tasks = append(response.Tasks, proto.TaskFrom(t))
	}
	c.JSON(http.StatusOK, response)
}

// UpdateProject handles project rename/recolor.
// PUT /api/projects/:id
func (h *ProjectHandlers) UpdateProject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update project request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	detail, err := h.projects.Update(c.Request.Context(), userID, projectID, req.Name, req.Color)
	if err != nil {
		h.projectError(c, err, "failed to update project")
		return
	}

	c.JSON(http.StatusOK, proto.ProjectFrom(detail))
}

// DeleteProject handles project deletion.
// DELETE /api/projects/:id
func (h *ProjectHandlers) DeleteProject(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.projects.Delete(c.Request.Context(), userID, projectID); err != nil {
		h.projectError(c, err, "failed to delete project")
		return
	}

	c.JSON(http.StatusOK, proto.ProjectDeletedPayload{ProjectID: projectID})
}

// AddMember handles adding a user to a project.
// POST /api/projects/:id/members
func (h *ProjectHandlers) AddMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid add member request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	detail, err := h.projects.AddMember(c.Request.Context(), userID, projectID, req.UserID)
	if err != nil {
		h.projectError(c, err, "failed to add member")
		return
	}

	c.JSON(http.StatusOK, proto.ProjectFrom(detail))
}

// RemoveMember handles removing a user from a project.
// DELETE /api/projects/:id/members/:userID
func (h *ProjectHandlers) RemoveMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	detail, err := h.projects.RemoveMember(c.Request.Context(), userID, projectID, memberID)
	if err != nil {
		h.projectError(c, err, "failed to remove member")
		return
	}

	c.JSON(http.StatusOK, proto.ProjectFrom(detail))
}

func (h *ProjectHandlers) projectError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, projects.ErrNotMember), errors.Is(err, tasks.ErrNotMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a project member"})
	case errors.Is(err, projects.ErrNotOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not the project owner"})
	case errors.Is(err, projects.ErrOwnerRemoval):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot remove the project owner"})
	case errors.Is(err, projects.ErrInvalidName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid project name"})
	default:
		h.log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// pathID parses an int64 path parameter, writing a 400 response on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}
