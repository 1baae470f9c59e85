package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultBatchSize = 10

// DispatchMetrics receives dispatcher observations. observability.Prom implements it.
type DispatchMetrics interface {
	ObserveNotification(result string)
	ObserveDispatchBatch(d time.Duration)
}

type DispatchConfig struct {
	// BatchSize bounds how many sends are in flight at once.
	BatchSize int
	// Template is the message template sent to every attendee.
	Template string
	// Sender is shown in the message footer.
	Sender  string
	Logger  *slog.Logger
	Metrics DispatchMetrics
}

type DispatchFailure struct {
	AttendeeID string `json:"attendeeId"`
	Email      string `json:"email"`
	Error      string `json:"error"`
}

// DispatchResult always satisfies Attempted == Succeeded + Failed.
type DispatchResult struct {
	Attempted int               `json:"attempted"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Failures  []DispatchFailure `json:"failures"`
}

type Dispatcher struct {
	notifier Notifier
	renderer Renderer
	cfg      DispatchConfig
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewDispatcher(notifier Notifier, renderer Renderer, cfg DispatchConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Template == "" {
		cfg.Template = TemplateFollowup
	}
	if cfg.Sender == "" {
		cfg.Sender = "EVENT CONNECT"
	}
	if renderer == nil {
		renderer = NewTemplateRenderer()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		notifier: notifier,
		renderer: renderer,
		cfg:      cfg,
		log:      log.With("component", "notification_dispatcher"),
		tracer:   otel.Tracer("github.com/geocoder89/eventconnect/internal/notifications"),
	}
}

// Dispatch sends one message to every attendee with an address. Individual
// failures are recorded in the result and never stop the remaining sends.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.Event, attendees []attendee.Attendee) DispatchResult {
	result := DispatchResult{Failures: []DispatchFailure{}}
	if len(attendees) == 0 {
		return result
	}

	ctx, span := d.tracer.Start(ctx, "notifications.dispatch",
		trace.WithAttributes(
			attribute.String("event.id", e.ID),
			attribute.Int("dispatch.attendees", len(attendees)),
			attribute.Int("dispatch.batch_size", d.cfg.BatchSize),
		),
	)
	defer span.End()

	targets := make([]attendee.Attendee, 0, len(attendees))
	for _, a := range attendees {
		if !a.HasAddress() {
			result.Skipped++
			d.observe("skipped")
			continue
		}
		targets = append(targets, a)
	}

	// errs is indexed by position so failures come out in attendee order
	errs := make([]error, len(targets))

	for start := 0; start < len(targets); start += d.cfg.BatchSize {
		end := min(start+d.cfg.BatchSize, len(targets))
		d.runBatch(ctx, e, targets[start:end], errs[start:end])
	}

	for i, a := range targets {
		result.Attempted++
		if errs[i] == nil {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Failures = append(result.Failures, DispatchFailure{
			AttendeeID: a.ID,
			Email:      a.Email,
			Error:      errs[i].Error(),
		})
	}

	span.SetAttributes(
		attribute.Int("dispatch.succeeded", result.Succeeded),
		attribute.Int("dispatch.failed", result.Failed),
		attribute.Int("dispatch.skipped", result.Skipped),
	)

	d.log.InfoContext(ctx, "notifications dispatched",
		"event_id", e.ID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)

	return result
}

// runBatch returns once every send in the batch has settled.
func (d *Dispatcher) runBatch(ctx context.Context, e event.Event, batch []attendee.Attendee, errs []error) {
	start := time.Now()

	var g errgroup.Group
	for i, a := range batch {
		g.Go(func() error {
			errs[i] = d.sendOne(ctx, e, a)
			return nil
		})
	}
	_ = g.Wait()

	if d.cfg.Metrics != nil {
		d.cfg.Metrics.ObserveDispatchBatch(time.Since(start))
	}
}

func (d *Dispatcher) sendOne(ctx context.Context, e event.Event, a attendee.Attendee) error {
	subject, body, err := d.renderer.Render(d.cfg.Template, NewTemplateData(e, a, d.cfg.Sender))
	if err != nil {
		d.observe("render_error")
		return fmt.Errorf("render %s: %w", d.cfg.Template, err)
	}

	if err := d.notifier.Send(ctx, a.Email, subject, body); err != nil {
		d.observe("failed")
		d.log.WarnContext(ctx, "notification send failed",
			"event_id", e.ID,
			"attendee_id", a.ID,
			"err", err,
		)
		return err
	}

	d.observe("sent")
	return nil
}

func (d *Dispatcher) observe(result string) {
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.ObserveNotification(result)
	}
}
