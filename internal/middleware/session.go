package middleware

import (
	"net/http"

	"captcha-trainer/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// SessionCookie carries the session id between requests
	SessionCookie = "captcha_session"
	// SessionHeader lets API clients pick their session without cookies
	SessionHeader = "X-Session-ID"
	// SessionKey is the gin context key of the session id
	SessionKey = "session_id"
)

// SessionMiddleware resolves the caller's session id, issuing a new one when
// the request carries none or an invalid one.
func SessionMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(SessionHeader)
		if id == "" {
			id, _ = c.Cookie(SessionCookie)
		}

		if _, err := uuid.Parse(id); err != nil {
			id = service.NewID()
			logger.Debug("New session issued", zap.String("session", id))
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, id, 0, "/", "", false, true)
		c.Header(SessionHeader, id)
		c.Set(SessionKey, id)

		c.Next()
	}
}

// SessionID returns the id stored by SessionMiddleware
func SessionID(c *gin.Context) string {
	return c.GetString(SessionKey)
}
