package event

import (
	"errors"
	"time"
)

type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Description string    `json:"description,omitempty"`
	Organizer   string    `json:"organizer,omitempty"`
	Code        string    `json:"eventCode"`
	Completed   bool      `json:"isCompleted"`
	CreatedAt   time.Time `json:"createdAt"`
}

// with pointers if optional, it will be nil
type Filter struct {
	Organizer *string
	Completed *bool
	From      *time.Time
	To        *time.Time
	Limit     int
}

var (
	ErrNotFound         = errors.New("event not found")
	ErrAlreadyCompleted = errors.New("event already completed")
	ErrCodeTaken        = errors.New("event code already in use")
)

type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required,min=3,max=120"`
	Date        time.Time `json:"date" binding:"required"`
	Location    string    `json:"location" binding:"required,max=200"`
	Description string    `json:"description" binding:"omitempty,max=2000"`
	Organizer   string    `json:"organizer" binding:"omitempty,max=120"`
	Code        string    `json:"eventCode" binding:"omitempty,alphanum,max=16"`
}

// UpdateEventRequest changes the descriptive fields of an event; nil fields
// are left as they are. The code and completion state are not editable here.
type UpdateEventRequest struct {
	Name        *string    `json:"name" binding:"omitempty,min=3,max=120"`
	Date        *time.Time `json:"date"`
	Location    *string    `json:"location" binding:"omitempty,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=2000"`
	Organizer   *string    `json:"organizer" binding:"omitempty,max=120"`
}
