package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"organizer/internal/models"
)

type ctxKey string

const sessionContextKey ctxKey = "organizer.auth.session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext reports the session stored by WithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(Session)
	return s, ok
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireSession rejects requests without a valid bearer token with 401 and
// stores the session in the request context otherwise.
func (s *Service) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.CurrentSession(c.Request.Context(), BearerToken(c.Request))
		if err != nil {
			if errors.Is(err, models.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			status := http.StatusInternalServerError
			msg := "internal server error"
			if errors.Is(err, models.ErrUnavailable) {
				status = http.StatusServiceUnavailable
				msg = "service unavailable"
			}
			s.logger.Error("session lookup failed", slog.Any("error", err))
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), sess))
		c.Next()
	}
}
