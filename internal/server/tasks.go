package server

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"organizer/internal/models"
)

type updateTaskRequest struct {
	ID string `json:"id"`
	models.TaskInput
}

// handleListTasks returns the caller's task templates, not their occurrences.
func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.tasks.List(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	respondSuccess(c, http.StatusOK, tasks)
}

// handleCreateTask validates and stores a new task.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req models.TaskInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	task, err := s.tasks.Create(c.Request.Context(), ownerID(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, task)
}

// handleUpdateTask replaces every editable field of the task named in the body.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	task, err := s.tasks.Update(c.Request.Context(), ownerID(c), req.ID, req.TaskInput)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, task)
}

// handleDeleteTask removes a task.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, err := requireQuery(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.tasks.Delete(c.Request.Context(), ownerID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, deleted)
}

// handleTaskICS exports one task as an iCalendar attachment.
func (s *Server) handleTaskICS(c *gin.Context) {
	id := c.Param("id")
	body, err := s.tasks.TaskICS(c.Request.Context(), ownerID(c), id, s.now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "task-" + id + ".ics"}))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}
