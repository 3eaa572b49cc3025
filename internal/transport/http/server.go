package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/taskwire/taskwire-server/internal/auth"
	"github.com/taskwire/taskwire-server/internal/config"
	"github.com/taskwire/taskwire-server/internal/core"
	"github.com/taskwire/taskwire-server/internal/service/projects"
	"github.com/taskwire/taskwire-server/internal/service/tasks"
	"github.com/taskwire/taskwire-server/internal/store"
)

// NewServer builds the HTTP server with REST and WebSocket routes.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	projectService *projects.Service,
	taskService *tasks.Service,
	st store.Store,
	cfg config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, st, logger)
	projectHandlers := NewProjectHandlers(projectService, taskService, logger)
	taskHandlers := NewTaskHandlers(taskService, logger)

	router.POST("/api/register", apiHandlers.Register)
	router.POST("/api/login", apiHandlers.Login)

	authorized := router.Group("/api")
	authorized.Use(AuthMiddleware(authService, logger))
	{
		authorized.GET("/users/search", apiHandlers.SearchUsers)

		authorized.GET("/projects", projectHandlers.ListProjects)
		authorized.POST("/projects", projectHandlers.CreateProject)
		authorized.GET("/projects/:id", projectHandlers.GetProject)
		authorized.PUT("/projects/:id", projectHandlers.UpdateProject)
		authorized.DELETE("/projects/:id", projectHandlers.DeleteProject)
		authorized.POST("/projects/:id/members", projectHandlers.AddMember)
		authorized.DELETE("/projects/:id/members/:userID", projectHandlers.RemoveMember)

		authorized.GET("/projects/:id/tasks", taskHandlers.ListTasks)
		authorized.POST("/projects/:id/tasks", taskHandlers.CreateTask)
		authorized.PUT("/tasks/:id", taskHandlers.UpdateTask)
		authorized.DELETE("/tasks/:id", taskHandlers.DeleteTask)
	}

	// The WebSocket handshake authenticates itself: browser clients cannot set
	// headers on the upgrade request, so the token may arrive as a query param.
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
