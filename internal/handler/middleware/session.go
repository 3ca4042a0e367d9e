package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/service"
	"go.uber.org/zap"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	sessionContextKey   = "session"
)

// SessionMiddleware accepts the session cookie or an Authorization bearer token.
func SessionMiddleware(sessions *service.SessionService, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("SessionMiddleware")
	return func(c *gin.Context) {
		token, _ := c.Cookie(cookieName)
		if token == "" {
			if h := c.GetHeader(authorizationHeader); strings.HasPrefix(h, bearerPrefix) {
				token = strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
			}
		}
		if token == "" {
			log.Debug("Session token is missing")
			_ = c.Error(ierr.ErrInvalidSession)
			c.Abort()
			return
		}

		sess, err := sessions.Authenticate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Set(sessionContextKey, *sess)
		c.Next()
	}
}

// GetSession returns the session set by SessionMiddleware.
func GetSession(c *gin.Context) (service.Session, bool) {
	value, exists := c.Get(sessionContextKey)
	if !exists {
		return service.Session{}, false
	}
	sess, ok := value.(service.Session)
	return sess, ok
}
