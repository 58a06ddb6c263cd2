package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"traffic-profile-service/internal/session"
)

const credentialsKey = "session_credentials"

// Session requires a valid session token and parks the decoded database
// credentials on the request context. Requests without a database selection
// are rejected before reaching the handler.
func Session(manager *session.Manager, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no database assigned"})
			return
		}

		creds, err := manager.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("rejected session token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no database assigned"})
			return
		}

		c.Set(credentialsKey, creds)
		c.Next()
	}
}

// Credentials returns the database selection stored by Session.
func Credentials(c *gin.Context) (*session.Credentials, bool) {
	v, ok := c.Get(credentialsKey)
	if !ok {
		return nil, false
	}
	creds, ok := v.(*session.Credentials)
	return creds, ok
}
