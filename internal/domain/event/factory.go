package event

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	codePrefix   = "EVT"
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func NewFromCreateRequest(req CreateEventRequest) Event {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		code = NewCode()
	}

	return Event{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Date:        req.Date,
		Location:    strings.TrimSpace(req.Location),
		Description: req.Description,
		Organizer:   strings.TrimSpace(req.Organizer),
		Code:        code,
		CreatedAt:   time.Now().UTC(),
	}
}

// ApplyUpdate returns e with the set fields of req applied.
func ApplyUpdate(e Event, req UpdateEventRequest) Event {
	if req.Name != nil {
		e.Name = strings.TrimSpace(*req.Name)
	}
	if req.Date != nil {
		e.Date = *req.Date
	}
	if req.Location != nil {
		e.Location = strings.TrimSpace(*req.Location)
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.Organizer != nil {
		e.Organizer = strings.TrimSpace(*req.Organizer)
	}
	return e
}

// NewCode returns a short shareable code such as "EVT7K2QXD".
func NewCode() string {
	buf := make([]byte, codeLength)
	_, _ = rand.Read(buf)

	var b strings.Builder
	b.Grow(len(codePrefix) + codeLength)
	b.WriteString(codePrefix)

	for _, c := range buf {
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}

	return b.String()
}
