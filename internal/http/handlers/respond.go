package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/http/middlewares"
	"github.com/geocoder89/eventconnect/internal/store"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if s := ctx.GetString(string(middlewares.CtxRequestID)); s != "" {
		return s
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message, nil)
}

func RespondUnavailable(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusServiceUnavailable, "store_unavailable", message, nil)
}

// RespondDomainError maps the error taxonomy onto HTTP statuses.
func RespondDomainError(ctx *gin.Context, err error) {
	var se *store.StoreError
	var ce *store.ConnectionError

	switch {
	case errors.Is(err, event.ErrNotFound):
		RespondNotFound(ctx, "Event not found")
	case errors.Is(err, attendee.ErrNotFound):
		RespondNotFound(ctx, "Attendee not found")
	case errors.Is(err, event.ErrAlreadyCompleted):
		RespondConflict(ctx, "already_completed", "This event has already been marked as completed")
	case errors.Is(err, attendee.ErrAlreadyRegistered):
		RespondConflict(ctx, "already_registered", "You have already registered for this event")
	case errors.Is(err, event.ErrCodeTaken):
		RespondConflict(ctx, "code_taken", "Event code already in use")
	case errors.As(err, &se), errors.As(err, &ce):
		RespondUnavailable(ctx, "Data store unavailable")
	default:
		RespondInternal(ctx, "Something went wrong")
	}
}
