package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"organizer/internal/auth"
	"organizer/internal/service"
)

// handleGetSettings returns the current profile.
func (s *Server) handleGetSettings(c *gin.Context) {
	user, err := s.settings.Get(c.Request.Context(), ownerID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, user)
}

// handleUpdateSettings applies a partial profile update.
func (s *Server) handleUpdateSettings(c *gin.Context) {
	var req service.SettingsInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	user, err := s.settings.Update(c.Request.Context(), ownerID(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, user)
}

// handleDeleteAccount drops the account with all of its data and revokes the
// token used for the request.
func (s *Server) handleDeleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.settings.DeleteAccount(ctx, ownerID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.auth.Logout(ctx, auth.BearerToken(c.Request)); err != nil {
		s.logger.Warn("revoke token after account deletion", "error", err)
	}
	respondSuccess(c, http.StatusOK, deleted)
}
