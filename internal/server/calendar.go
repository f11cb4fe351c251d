package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"organizer/internal/models"
	"organizer/internal/recurrence"
)

// handleOccurrences expands tasks over ?from=&to=, keyed by day.
func (s *Server) handleOccurrences(c *gin.Context) {
	window, err := recurrence.ParseRange(c.Query("from"), c.Query("to"))
	if err != nil {
		s.respondError(c, fmt.Errorf("%w: %w", models.ErrValidation, err))
		return
	}
	days, err := s.calendar.Occurrences(c.Request.Context(), ownerID(c), window)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if days == nil {
		days = recurrence.Days{}
	}
	respondSuccess(c, http.StatusOK, days)
}

// handleCalendar renders ?month=YYYY-MM, defaulting to the current month.
func (s *Server) handleCalendar(c *gin.Context) {
	now := s.now().In(recurrence.Location)
	year, month := now.Year(), now.Month()
	if raw := c.Query("month"); raw != "" {
		t, err := time.ParseInLocation("2006-01", raw, recurrence.Location)
		if err != nil {
			s.respondError(c, fmt.Errorf("month %q: %w", raw, models.ErrValidation))
			return
		}
		year, month = t.Year(), t.Month()
	}
	view, err := s.calendar.Month(c.Request.Context(), ownerID(c), year, month, now)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, view)
}
