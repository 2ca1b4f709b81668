package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booksync/internal/auth"
	"github.com/mrlokans/booksync/internal/booksync"
)

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// requestContext carries the authenticated user into coordinator calls.
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if userID := auth.GetUserID(c); userID != "" {
		ctx = booksync.WithUser(ctx, userID)
	}
	return ctx
}

// statusForError maps coordinator errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, booksync.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, booksync.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booksync.ErrInvalidBook):
		return http.StatusBadRequest
	case errors.Is(err, booksync.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError sends the mapped status. Internal errors are logged and not
// exposed to the client.
func respondError(c *gin.Context, err error, context string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error (%s): %v", context, err)
		c.JSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// boolQuery reads a boolean query parameter, false when absent or malformed.
func boolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}

// intQuery reads a positive integer query parameter clamped to max.
func intQuery(c *gin.Context, name string, def, max int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
