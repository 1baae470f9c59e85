package completion

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/notifications"
	"github.com/geocoder89/eventconnect/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Acquirer hands out a live store handle. *store.Broker implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (store.Handle, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, e event.Event, attendees []attendee.Attendee) notifications.DispatchResult
}

// Publisher announces a finished completion to other services.
type Publisher interface {
	PublishCompletion(ctx context.Context, report Report) error
}

type Metrics interface {
	ObserveCompletion(outcome string)
}

// Report summarizes one completion. Failures is never nil.
type Report struct {
	EventID        string                          `json:"eventId"`
	EventName      string                          `json:"eventName"`
	TotalAttendees int                             `json:"totalAttendees"`
	Attempted      int                             `json:"attempted"`
	Sent           int                             `json:"sent"`
	Failed         int                             `json:"failed"`
	Skipped        int                             `json:"skipped"`
	Failures       []notifications.DispatchFailure `json:"failures"`
}

type Config struct {
	Broker     Acquirer
	Dispatcher Dispatcher
	// Publisher is optional.
	Publisher Publisher
	Metrics   Metrics
	Logger    *slog.Logger
}

type Workflow struct {
	broker     Acquirer
	dispatcher Dispatcher
	publisher  Publisher
	metrics    Metrics
	log        *slog.Logger
	tracer     trace.Tracer
}

func NewWorkflow(cfg Config) *Workflow {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Workflow{
		broker:     cfg.Broker,
		dispatcher: cfg.Dispatcher,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		log:        log.With("component", "completion_workflow"),
		tracer:     otel.Tracer("github.com/geocoder89/eventconnect/internal/completion"),
	}
}

// Complete marks the event completed and notifies its attendees. An event
// is completed at most once; every later call gets event.ErrAlreadyCompleted.
func (w *Workflow) Complete(ctx context.Context, eventID string) (Report, error) {
	ctx, span := w.tracer.Start(ctx, "completion.complete",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	report, err := w.complete(ctx, eventID)

	outcome := outcomeOf(err)
	if w.metrics != nil {
		w.metrics.ObserveCompletion(outcome)
	}
	span.SetAttributes(attribute.String("completion.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		if outcome == "store_error" || outcome == "error" {
			span.SetStatus(codes.Error, "completion failed")
		}
		return Report{}, err
	}

	return report, nil
}

func (w *Workflow) complete(ctx context.Context, eventID string) (Report, error) {
	h, err := w.broker.Acquire(ctx)
	if err != nil {
		return Report{}, &store.StoreError{Op: "acquire", Err: err}
	}

	e, err := h.FindEventByID(ctx, eventID)
	if err != nil {
		return Report{}, err
	}
	if e.Completed {
		return Report{}, event.ErrAlreadyCompleted
	}

	// the conditional update decides the winner when two callers race here
	if err := h.MarkCompleted(ctx, e.ID); err != nil {
		return Report{}, err
	}
	e.Completed = true

	w.log.InfoContext(ctx, "event marked completed", "event_id", e.ID, "event_code", e.Code)

	report := Report{
		EventID:   e.ID,
		EventName: e.Name,
		Failures:  []notifications.DispatchFailure{},
	}

	attendees, err := h.ListAttendees(ctx, store.AttendeeFilter{EventID: e.ID})
	if err != nil {
		return Report{}, store.Wrap("list_attendees", err)
	}
	report.TotalAttendees = len(attendees)

	if len(attendees) > 0 {
		res := w.dispatcher.Dispatch(ctx, e, attendees)
		report.Attempted = res.Attempted
		report.Sent = res.Succeeded
		report.Failed = res.Failed
		report.Skipped = res.Skipped
		if len(res.Failures) > 0 {
			report.Failures = res.Failures
		}
	} else {
		w.log.InfoContext(ctx, "no attendees to notify", "event_id", e.ID)
	}

	w.publish(ctx, report)

	return report, nil
}

func (w *Workflow) publish(ctx context.Context, report Report) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishCompletion(ctx, report); err != nil {
		w.log.WarnContext(ctx, "publish completion failed", "event_id", report.EventID, "err", err)
	}
}

func outcomeOf(err error) string {
	var se *store.StoreError
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, event.ErrNotFound):
		return "not_found"
	case errors.Is(err, event.ErrAlreadyCompleted):
		return "already_completed"
	case errors.As(err, &se):
		return "store_error"
	default:
		return "error"
	}
}
