package registration

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/eventconnect/internal/cache"
	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/notifications"
	"github.com/geocoder89/eventconnect/internal/store"
)

const (
	maxCodeAttempts = 5
	refCacheTTL     = 30 * time.Second
)

type Acquirer interface {
	Acquire(ctx context.Context) (store.Handle, error)
}

type Config struct {
	Broker Acquirer
	// Notifier and Renderer are optional; when both are set a confirmation
	// is sent to every attendee that registers with an address.
	Notifier notifications.Notifier
	Renderer notifications.Renderer
	Sender   string
	Logger   *slog.Logger
}

type Service struct {
	broker   Acquirer
	notifier notifications.Notifier
	renderer notifications.Renderer
	sender   string
	refs     *cache.Cache[string, string]
	log      *slog.Logger
}

func NewService(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		broker:   cfg.Broker,
		notifier: cfg.Notifier,
		renderer: cfg.Renderer,
		sender:   cfg.Sender,
		refs:     cache.New[string, string](refCacheTTL),
		log:      log.With("component", "registration"),
	}
}

func (s *Service) handle(ctx context.Context) (store.Handle, error) {
	h, err := s.broker.Acquire(ctx)
	if err != nil {
		return nil, &store.StoreError{Op: "acquire", Err: err}
	}
	return h, nil
}

// CreateEvent stores a new event. A generated code that collides is
// replaced and retried; a caller-chosen code that collides is an error.
func (s *Service) CreateEvent(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return event.Event{}, err
	}

	e := event.NewFromCreateRequest(req)
	chosen := strings.TrimSpace(req.Code) != ""

	for attempt := 1; ; attempt++ {
		err := h.InsertEvent(ctx, e)
		if err == nil {
			s.log.InfoContext(ctx, "event created", "event_id", e.ID, "event_code", e.Code)
			return e, nil
		}
		if !errors.Is(err, event.ErrCodeTaken) || chosen || attempt >= maxCodeAttempts {
			return event.Event{}, err
		}
		s.log.DebugContext(ctx, "event code collision, regenerating", "event_code", e.Code, "attempt", attempt)
		e.Code = event.NewCode()
	}
}

// GetEvent looks ref up as an event id, then as an event code.
func (s *Service) GetEvent(ctx context.Context, ref string) (event.Event, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return event.Event{}, err
	}
	return s.resolve(ctx, h, ref)
}

// ListEvents returns the events matching filter, earliest date first.
func (s *Service) ListEvents(ctx context.Context, filter event.Filter) ([]event.Event, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	return h.FindEvents(ctx, filter)
}

// UpdateEvent edits the descriptive fields of the event ref names.
func (s *Service) UpdateEvent(ctx context.Context, ref string, req event.UpdateEventRequest) (event.Event, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return event.Event{}, err
	}

	e, err := s.resolve(ctx, h, ref)
	if err != nil {
		return event.Event{}, err
	}

	e = event.ApplyUpdate(e, req)
	if err := h.UpdateEvent(ctx, e); err != nil {
		return event.Event{}, err
	}

	s.log.InfoContext(ctx, "event updated", "event_id", e.ID)
	return e, nil
}

// Register resolves ref as an event id, then as an event code, and stores
// the attendee against the event's id.
func (s *Service) Register(ctx context.Context, req attendee.RegisterRequest) (attendee.Attendee, event.Event, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return attendee.Attendee{}, event.Event{}, err
	}

	e, err := s.resolve(ctx, h, req.EventRef)
	if err != nil {
		return attendee.Attendee{}, event.Event{}, err
	}

	a := attendee.New(e.ID, req)
	if err := h.InsertAttendee(ctx, a); err != nil {
		if errors.Is(err, event.ErrNotFound) {
			// the event vanished after it was resolved
			s.refs.Delete(strings.TrimSpace(req.EventRef))
		}
		return attendee.Attendee{}, event.Event{}, err
	}

	s.log.InfoContext(ctx, "attendee registered", "event_id", e.ID, "attendee_id", a.ID)
	s.confirm(ctx, e, a)

	return a, e, nil
}

// ListAttendees returns the event's attendees, most recent registration first.
func (s *Service) ListAttendees(ctx context.Context, ref string) ([]attendee.Attendee, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}

	e, err := s.resolve(ctx, h, ref)
	if err != nil {
		return nil, err
	}

	return h.ListAttendees(ctx, store.AttendeeFilter{EventID: e.ID, NewestFirst: true})
}

func (s *Service) resolve(ctx context.Context, h store.Handle, ref string) (event.Event, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return event.Event{}, event.ErrNotFound
	}

	if id, ok := s.refs.Get(ref); ok {
		e, err := h.FindEventByID(ctx, id)
		if err == nil {
			return e, nil
		}
		s.refs.Delete(ref)
		if !errors.Is(err, event.ErrNotFound) {
			return event.Event{}, err
		}
	}

	e, err := h.FindEventByID(ctx, ref)
	if errors.Is(err, event.ErrNotFound) {
		e, err = h.FindEventByCode(ctx, ref)
	}
	if err != nil {
		return event.Event{}, err
	}

	s.refs.Set(ref, e.ID)
	return e, nil
}

func (s *Service) confirm(ctx context.Context, e event.Event, a attendee.Attendee) {
	if s.notifier == nil || s.renderer == nil || !a.HasAddress() {
		return
	}

	subject, body, err := s.renderer.Render(notifications.TemplateConfirmation, notifications.NewTemplateData(e, a, s.sender))
	if err == nil {
		err = s.notifier.Send(ctx, a.Email, subject, body)
	}
	if err != nil {
		s.log.WarnContext(ctx, "registration confirmation failed", "attendee_id", a.ID, "err", err)
	}
}
