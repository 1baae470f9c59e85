// Package store defines the record operations shared by every backing store
// and the Broker that hands out a live Handle.
package store

import (
	"context"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
)

// EventStore is the event half of the operation set.
type EventStore interface {
	FindEventByID(ctx context.Context, id string) (event.Event, error)
	FindEventByCode(ctx context.Context, code string) (event.Event, error)
	FindEvents(ctx context.Context, filter event.Filter) ([]event.Event, error)
	InsertEvent(ctx context.Context, e event.Event) error
	// UpdateEvent never clears Completed once it is set.
	UpdateEvent(ctx context.Context, e event.Event) error
	// MarkCompleted flips Completed only if it is still false and returns
	// event.ErrAlreadyCompleted otherwise.
	MarkCompleted(ctx context.Context, id string) error
}

// AttendeeStore is the attendee half of the operation set.
type AttendeeStore interface {
	FindAttendee(ctx context.Context, filter AttendeeFilter) (attendee.Attendee, error)
	ListAttendees(ctx context.Context, filter AttendeeFilter) ([]attendee.Attendee, error)
	// InsertAttendee returns attendee.ErrAlreadyRegistered when the
	// (email, event) pair already exists.
	InsertAttendee(ctx context.Context, a attendee.Attendee) error
}

// Handle is a live connection to one physical store.
type Handle interface {
	EventStore
	AttendeeStore

	// Ping is the liveness check used before a cached handle is reused.
	Ping(ctx context.Context) error
	Close() error
}

// AttendeeFilter matches attendees; empty fields are ignored.
type AttendeeFilter struct {
	ID      string
	EventID string
	Email   string
	// NewestFirst orders by registration time descending.
	NewestFirst bool
}

// Mode reports which physical store backs the cached handle.
type Mode string

const (
	ModeNone     Mode = "none"
	ModeRemote   Mode = "remote"
	ModeEmbedded Mode = "embedded"
)

// State is the broker's connection state.
type State int

const (
	Unconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
