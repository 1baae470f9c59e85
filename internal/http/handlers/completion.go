package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/geocoder89/eventconnect/internal/completion"
	"github.com/geocoder89/eventconnect/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type EventCompleter interface {
	Complete(ctx context.Context, eventID string) (completion.Report, error)
}

type CompleteEventRequest struct {
	EventID string `json:"eventId" binding:"required"`
}

type CompletionHandler struct {
	completer EventCompleter
}

func NewCompletionHandler(completer EventCompleter) *CompletionHandler {
	return &CompletionHandler{completer: completer}
}

// CompleteEvent handles POST /api/complete-event.
func (h *CompletionHandler) CompleteEvent(ctx *gin.Context) {
	var req CompleteEventRequest
	if !BindJSON(ctx, &req) {
		return
	}
	ctx.Set(string(middlewares.CtxEventID), req.EventID)

	report, err := h.completer.Complete(ctx.Request.Context(), req.EventID)
	if err != nil {
		RespondDomainError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message":   completionMessage(report),
		"report":    report,
		"requestId": requestIDFrom(ctx),
	})
}

func completionMessage(r completion.Report) string {
	if r.TotalAttendees == 0 {
		return "Event marked as completed, but no attendees were found to send emails to"
	}
	if r.Failed == 0 {
		return fmt.Sprintf("Event marked as completed and %d follow-up emails sent", r.Sent)
	}
	return fmt.Sprintf("Event marked as completed; %d follow-up emails sent, %d failed", r.Sent, r.Failed)
}
