package attendee

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Attendee struct {
	ID           string    `json:"id"`
	EventID      string    `json:"eventId"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	LinkedInURL  string    `json:"linkedinUrl,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// HasAddress reports whether the attendee can be notified.
func (a Attendee) HasAddress() bool {
	return strings.TrimSpace(a.Email) != ""
}

var (
	ErrNotFound          = errors.New("attendee not found")
	ErrAlreadyRegistered = errors.New("attendee already registered for this event")
)

// EventRef may hold either an event id or an event code; it is resolved to
// the canonical id before the attendee is stored.
type RegisterRequest struct {
	EventRef    string `json:"eventId" binding:"required"`
	Name        string `json:"name" binding:"required,min=2,max=120"`
	Email       string `json:"email" binding:"omitempty,email"`
	LinkedInURL string `json:"linkedinUrl" binding:"omitempty,url"`
}

// A factory to build an Attendee once the event has been resolved.
func New(eventID string, req RegisterRequest) Attendee {
	return Attendee{
		ID:           uuid.NewString(),
		EventID:      eventID,
		Name:         strings.TrimSpace(req.Name),
		Email:        NormalizeEmail(req.Email),
		LinkedInURL:  strings.TrimSpace(req.LinkedInURL),
		RegisteredAt: time.Now().UTC(),
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
