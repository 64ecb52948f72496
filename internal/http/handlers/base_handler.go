// README: Base handler utilities (JSON helpers, caller identity, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vrent/internal/apperr"
	"vrent/internal/http/middleware"
	"vrent/internal/logger"
	"vrent/internal/modules/booking"
	"vrent/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeAppError maps the error kind to a status; internal failures never
// leak their message.
func writeAppError(c *gin.Context, err error) {
	if errors.Is(err, apperr.ErrForbidden) {
		writeJSON(c, http.StatusForbidden, errorResponse{Error: err.Error(), Code: apperr.CodeOf(err)})
		return
	}
	var status int
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindPolicy:
		status = http.StatusUnprocessableEntity
	case apperr.KindExternal:
		status = http.StatusBadGateway
	default:
		_ = c.Error(err)
		logger.ErrorContext(c.Request.Context(), "unhandled error", "path", c.FullPath(), "error", err)
		writeJSON(c, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "INTERNAL"})
		return
	}
	var e *apperr.Error
	msg := err.Error()
	if errors.As(err, &e) {
		msg = e.Message
	}
	if status == http.StatusBadGateway {
		_ = c.Error(err)
	}
	writeJSON(c, status, errorResponse{Error: msg, Code: apperr.CodeOf(err)})
}

// actor builds the booking actor from the authenticated caller. Unknown role
// claims fall back to renter.
func actor(c *gin.Context) booking.Actor {
	role := booking.Role(middleware.CallerRole(c))
	switch role {
	case booking.RoleAgent, booking.RoleAdmin:
	default:
		role = booking.RoleRenter
	}
	return booking.Actor{ID: types.ID(middleware.CallerUID(c)), Role: role}
}

// pathID reads and validates a path parameter; it writes 400 and returns
// false when the value is unusable.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !types.ValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Code: "BAD_REQUEST"})
		return false
	}
	return true
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// timeRange parses RFC3339 from/to query values; missing bounds default to
// the last 24 hours.
func timeRange(c *gin.Context, now time.Time) (from, to time.Time, ok bool) {
	to, from = now, now.Add(-24*time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid from")
			return from, to, false
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid to")
			return from, to, false
		}
		to = t
	}
	return from, to, true
}
