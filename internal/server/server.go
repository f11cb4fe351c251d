package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"organizer/internal/auth"
	"organizer/internal/blob"
	"organizer/internal/models"
	"organizer/internal/recurrence"
	"organizer/internal/service"
	"organizer/internal/storage"
)

const requestIDHeader = "X-Request-Id"

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Store          storage.Store
	Auth           *auth.Service
	Blobs          *blob.Store
	Logger         *slog.Logger
	StaticDir      string
	MaxUploadBytes int64
	MaxRangeDays   int
	// Now defaults to time.Now; tests pin it to get stable "today" cells.
	Now func() time.Time
}

// Server provides the JSON API of the organizer and serves the frontend.
type Server struct {
	engine    *gin.Engine
	store     storage.Store
	auth      *auth.Service
	tasks     *service.Tasks
	calendar  *service.Calendar
	notes     *service.Notes
	uiStates  *service.UIStates
	files     *service.Files
	settings  *service.Settings
	logger    *slog.Logger
	staticDir string
	maxUpload int64
	now       func() time.Time
}

// New constructs the HTTP server with routes and middleware configured.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	expander := recurrence.Expander{MaxDays: deps.MaxRangeDays}
	srv := &Server{
		engine:    router,
		store:     deps.Store,
		auth:      deps.Auth,
		tasks:     service.NewTasks(deps.Store, expander),
		calendar:  service.NewCalendar(deps.Store, expander),
		notes:     service.NewNotes(deps.Store),
		uiStates:  service.NewUIStates(deps.Store),
		files:     service.NewFiles(deps.Store, deps.Blobs, logger),
		settings:  service.NewSettings(deps.Store, deps.Blobs),
		logger:    logger,
		staticDir: deps.StaticDir,
		maxUpload: maxUpload,
		now:       now,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires the API and static handlers together.
func (s *Server) registerRoutes() {
	s.engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	api := s.engine.Group("/api")
	api.GET("/healthz", s.handleHealth)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/logout", s.auth.RequireSession(), s.handleLogout)
		authGroup.GET("/session", s.auth.RequireSession(), s.handleSession)
	}

	private := api.Group("", s.auth.RequireSession())
	{
		private.GET("/tasks", s.handleListTasks)
		private.POST("/tasks", s.handleCreateTask)
		private.PUT("/tasks", s.handleUpdateTask)
		private.DELETE("/tasks", s.handleDeleteTask)
		private.GET("/tasks/:id/ics", s.handleTaskICS)

		private.GET("/occurrences", s.handleOccurrences)
		private.GET("/calendar", s.handleCalendar)

		private.GET("/notes", s.handleListNotes)
		private.POST("/notes", s.handleCreateNote)
		private.PUT("/notes", s.handleUpdateNote)
		private.DELETE("/notes", s.handleDeleteNote)

		private.GET("/ui-state", s.handleGetUIState)
		private.PUT("/ui-state", s.handleSaveUIState)

		private.GET("/files", s.handleListFiles)
		private.POST("/files", s.handleUploadFile)
		private.POST("/files/folders", s.handleCreateFolder)
		private.GET("/files/:id/content", s.handleFileContent)
		private.DELETE("/files", s.handleDeleteFile)

		private.GET("/settings", s.handleGetSettings)
		private.PUT("/settings", s.handleUpdateSettings)
		private.DELETE("/settings/account", s.handleDeleteAccount)
	}

	s.mountStatic()
}

// requestID tags every request with an id, reusing the caller's when given.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// handleHealth reports whether the backing store answers.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ownerID is the id of the signed-in user. Only valid behind RequireSession.
func ownerID(c *gin.Context) string {
	sess, _ := auth.SessionFromContext(c.Request.Context())
	return sess.User.ID
}

// requireQuery reads a mandatory query parameter.
func requireQuery(c *gin.Context, name string) (string, error) {
	v := c.Query(name)
	if v == "" {
		return "", fmt.Errorf("%s is required: %w", name, models.ErrValidation)
	}
	return v, nil
}

// bindJSON decodes the body, classifying decode failures as validation errors.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	return nil
}

// respondError maps err onto a status code. Internal failures are logged and
// answered with a generic message.
func (s *Server) respondError(c *gin.Context, err error) {
	var status int
	var msg string
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, models.ErrInvalidCredentials):
		status, msg = http.StatusUnauthorized, models.ErrInvalidCredentials.Error()
	case errors.Is(err, models.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, models.ErrDuplicateEmail):
		status, msg = http.StatusBadRequest, "User already exists"
	case errors.As(err, &tooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "upload too large"
	case errors.Is(err, models.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "service unavailable"
	default:
		status, msg = http.StatusInternalServerError, "internal server error"
	}

	attrs := []any{
		slog.String("path", c.FullPath()),
		slog.String("request_id", c.GetString(requestIDHeader)),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Debug("request rejected", attrs...)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// respondSuccess writes payload as JSON, or only the status when it is nil.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

var deleted = gin.H{"success": true}
