package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
)

// SeedFile is the layout read by Seed:
//
//	{"events": [{"name": "...", "date": "...", "location": "...",
//	             "attendees": [{"name": "...", "email": "..."}]}]}
type SeedFile struct {
	Events []SeedEvent `json:"events"`
}

type SeedEvent struct {
	event.CreateEventRequest
	Attendees []attendee.RegisterRequest `json:"attendees"`
}

type SeedResult struct {
	Events    int `json:"events"`
	Attendees int `json:"attendees"`
	Skipped   int `json:"skipped"`
}

// Seed loads demo data, typically into the embedded store. Events whose
// code already exists and attendees already registered are skipped.
func (s *Service) Seed(ctx context.Context, r io.Reader) (SeedResult, error) {
	var file SeedFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return SeedResult{}, fmt.Errorf("decode seed file: %w", err)
	}

	var res SeedResult
	for _, se := range file.Events {
		e, err := s.CreateEvent(ctx, se.CreateEventRequest)
		switch {
		case errors.Is(err, event.ErrCodeTaken):
			res.Skipped++
			continue
		case err != nil:
			return res, fmt.Errorf("seed event %q: %w", se.Name, err)
		}
		res.Events++

		for _, req := range se.Attendees {
			req.EventRef = e.ID
			_, _, err := s.Register(ctx, req)
			switch {
			case errors.Is(err, attendee.ErrAlreadyRegistered):
				res.Skipped++
			case err != nil:
				return res, fmt.Errorf("seed attendee %q: %w", req.Name, err)
			default:
				res.Attendees++
			}
		}
	}

	s.log.InfoContext(ctx, "seed loaded", "events", res.Events, "attendees", res.Attendees, "skipped", res.Skipped)
	return res, nil
}
