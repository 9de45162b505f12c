package handlers

import (
	"net/http"

	"example.com/cargomarket/internal/errs"
	"example.com/cargomarket/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// statusForError maps error kinds onto HTTP statuses
func statusForError(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

// sessionFrom pulls the authenticated session out of the request context.
// The middleware guarantees it, but a handler reached without it still
// fails closed.
func sessionFrom(c *gin.Context) (session.Session, bool) {
	sess, err := session.FromContext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated session"})
		return session.Session{}, false
	}
	return sess, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
