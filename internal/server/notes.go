package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"organizer/internal/models"
)

type noteRequest struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// handleListNotes returns the user's notes.
func (s *Server) handleListNotes(c *gin.Context) {
	notes, err := s.notes.List(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if notes == nil {
		notes = []models.Note{}
	}
	respondSuccess(c, http.StatusOK, notes)
}

// handleCreateNote adds a note.
func (s *Server) handleCreateNote(c *gin.Context) {
	var req noteRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	note, err := s.notes.Create(c.Request.Context(), ownerID(c), req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, note)
}

// handleUpdateNote edits the content of a note.
func (s *Server) handleUpdateNote(c *gin.Context) {
	var req noteRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	note, err := s.notes.Update(c.Request.Context(), ownerID(c), req.ID, req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, note)
}

// handleDeleteNote removes a note and closes it in the saved UI state.
func (s *Server) handleDeleteNote(c *gin.Context) {
	id, err := requireQuery(c, "id")
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.notes.Delete(c.Request.Context(), ownerID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, deleted)
}

// handleGetUIState returns which notes are open.
func (s *Server) handleGetUIState(c *gin.Context) {
	state, err := s.uiStates.Get(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if state.OpenNoteIDs == nil {
		state.OpenNoteIDs = []string{}
	}
	respondSuccess(c, http.StatusOK, state)
}

// handleSaveUIState stores which notes are open.
func (s *Server) handleSaveUIState(c *gin.Context) {
	var req models.UIState
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	state, err := s.uiStates.Save(c.Request.Context(), ownerID(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if state.OpenNoteIDs == nil {
		state.OpenNoteIDs = []string{}
	}
	respondSuccess(c, http.StatusOK, state)
}
