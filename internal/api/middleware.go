package api

import (
	"net/http"

	"example.com/cargomarket/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity headers set by the authenticating edge
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// SessionMiddleware extracts the caller identity forwarded by the edge
// and attaches it to the request context. Requests without a valid user
// ID are rejected.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := c.GetHeader(HeaderUserID)
		if rawID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		userID, err := uuid.Parse(rawID)
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}

		sess := session.Session{
			UserID: userID,
			Email:  c.GetHeader(HeaderUserEmail),
		}

		ctx := session.WithSession(c.Request.Context(), sess)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
