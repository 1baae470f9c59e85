package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/store"
)

var _ store.Handle = (*Store)(nil)

// Store is a map-backed store.Handle with the same constraints as the SQL
// stores. It is meant for tests and local tooling.
type Store struct {
	mu        sync.RWMutex
	events    map[string]event.Event // {"id": event}
	attendees map[string]attendee.Attendee
	closed    bool
	pingErr   error
}

func NewStore() *Store {
	return &Store{
		events:    make(map[string]event.Event),
		attendees: make(map[string]attendee.Attendee),
	}
}

// FailPing makes subsequent liveness checks return err; nil restores them.
func (s *Store) FailPing(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return s.pingErr
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) FindEventByID(_ context.Context, id string) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return e, nil
}

func (s *Store) FindEventByCode(_ context.Context, code string) (event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code = strings.ToUpper(code)
	for _, e := range s.events {
		if e.Code == code {
			return e, nil
		}
	}
	return event.Event{}, event.ErrNotFound
}

func (s *Store) FindEvents(_ context.Context, filter event.Filter) ([]event.Event, error) {
	s.mu.RLock()
	out := make([]event.Event, 0, len(s.events))
	for _, e := range s.events {
		if filter.Organizer != nil && e.Organizer != *filter.Organizer {
			continue
		}
		if filter.Completed != nil && e.Completed != *filter.Completed {
			continue
		}
		if filter.From != nil && e.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Date.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) InsertEvent(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.events {
		if existing.Code == e.Code {
			return event.ErrCodeTaken
		}
	}
	s.events[e.ID] = e
	return nil
}

func (s *Store) UpdateEvent(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[e.ID]
	if !ok {
		return event.ErrNotFound
	}
	for id, existing := range s.events {
		if id != e.ID && existing.Code == e.Code {
			return event.ErrCodeTaken
		}
	}

	e.Completed = current.Completed || e.Completed
	e.CreatedAt = current.CreatedAt
	s.events[e.ID] = e
	return nil
}

func (s *Store) MarkCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return event.ErrNotFound
	}
	if e.Completed {
		return event.ErrAlreadyCompleted
	}
	e.Completed = true
	s.events[id] = e
	return nil
}

func matches(a attendee.Attendee, filter store.AttendeeFilter) bool {
	if filter.ID != "" && a.ID != filter.ID {
		return false
	}
	if filter.EventID != "" && a.EventID != filter.EventID {
		return false
	}
	if filter.Email != "" && a.Email != attendee.NormalizeEmail(filter.Email) {
		return false
	}
	return true
}

func (s *Store) ListAttendees(_ context.Context, filter store.AttendeeFilter) ([]attendee.Attendee, error) {
	s.mu.RLock()
	out := make([]attendee.Attendee, 0)
	for _, a := range s.attendees {
		if matches(a, filter) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			if filter.NewestFirst {
				return out[i].RegisteredAt.After(out[j].RegisteredAt)
			}
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		if filter.NewestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (s *Store) FindAttendee(ctx context.Context, filter store.AttendeeFilter) (attendee.Attendee, error) {
	list, _ := s.ListAttendees(ctx, filter)
	if len(list) == 0 {
		return attendee.Attendee{}, attendee.ErrNotFound
	}
	return list[0], nil
}

func (s *Store) InsertAttendee(_ context.Context, a attendee.Attendee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[a.EventID]; !ok {
		return event.ErrNotFound
	}

	a.Email = attendee.NormalizeEmail(a.Email)
	if a.Email != "" {
		for _, existing := range s.attendees {
			if existing.EventID == a.EventID && existing.Email == a.Email {
				return attendee.ErrAlreadyRegistered
			}
		}
	}

	s.attendees[a.ID] = a
	return nil
}
