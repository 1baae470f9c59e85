package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/store"
)

var _ store.Handle = (*Store)(nil)

// Observer times a store operation. observability.Prom implements it.
type Observer interface {
	ObserveDB(op string, fn func() error) error
}

// Store implements store.Handle over a SQLite database it does not own;
// closing the Store only detaches it, the Server closes the database.
type Store struct {
	db     *sql.DB
	obs    Observer
	closed atomic.Bool
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) observe(op string, fn func() error) error {
	if s.obs != nil {
		return s.obs.ObserveDB(op, fn)
	}
	return fn()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

const eventColumns = `id, name, date, location, description, organizer, code, completed, created_at`

func scanEvent(row interface{ Scan(dest ...any) error }) (event.Event, error) {
	var e event.Event
	err := row.Scan(&e.ID, &e.Name, &e.Date, &e.Location, &e.Description, &e.Organizer, &e.Code, &e.Completed, &e.CreatedAt)
	return e, err
}

func (s *Store) FindEventByID(ctx context.Context, id string) (event.Event, error) {
	return s.findEvent(ctx, "sqlite.find_event_by_id", `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
}

func (s *Store) FindEventByCode(ctx context.Context, code string) (event.Event, error) {
	return s.findEvent(ctx, "sqlite.find_event_by_code", `SELECT `+eventColumns+` FROM events WHERE code = ?`, strings.ToUpper(code))
}

func (s *Store) findEvent(ctx context.Context, op, query string, arg string) (event.Event, error) {
	if s.closed.Load() {
		return event.Event{}, store.Wrap(op, store.ErrClosed)
	}

	var e event.Event
	err := s.observe(op, func() error {
		var scanErr error
		e, scanErr = scanEvent(s.db.QueryRowContext(ctx, query, arg))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, store.Wrap(op, err)
	}

	return e, nil
}

func (s *Store) FindEvents(ctx context.Context, filter event.Filter) ([]event.Event, error) {
	const op = "sqlite.find_events"
	if s.closed.Load() {
		return nil, store.Wrap(op, store.ErrClosed)
	}

	var conds []string
	var args []any

	if filter.Organizer != nil {
		conds = append(conds, "organizer = ?")
		args = append(args, *filter.Organizer)
	}
	if filter.Completed != nil {
		conds = append(conds, "completed = ?")
		args = append(args, *filter.Completed)
	}
	if filter.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, filter.To.UTC())
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows *sql.Rows
	err := s.observe(op, func() error {
		var qerr error
		rows, qerr = s.db.QueryContext(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]event.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, store.Wrap(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap(op, err)
	}

	return out, nil
}

func (s *Store) InsertEvent(ctx context.Context, e event.Event) error {
	const op = "sqlite.insert_event"
	if s.closed.Load() {
		return store.Wrap(op, store.ErrClosed)
	}

	err := s.observe(op, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Name, e.Date.UTC(), e.Location, e.Description, e.Organizer, e.Code, e.Completed, e.CreatedAt.UTC(),
		)
		return execErr
	})
	if err != nil {
		if isDuplicateKey(err) && strings.Contains(err.Error(), "events.code") {
			return event.ErrCodeTaken
		}
		return store.Wrap(op, err)
	}

	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, e event.Event) error {
	const op = "sqlite.update_event"
	if s.closed.Load() {
		return store.Wrap(op, store.ErrClosed)
	}

	var res sql.Result
	err := s.observe(op, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `
		UPDATE events
		SET name = ?,
		    date = ?,
		    location = ?,
		    description = ?,
		    organizer = ?,
		    code = ?,
		    completed = (completed OR ?)
		WHERE id = ?`,
			e.Name, e.Date.UTC(), e.Location, e.Description, e.Organizer, e.Code, e.Completed, e.ID,
		)
		return execErr
	})
	if err != nil {
		if isDuplicateKey(err) && strings.Contains(err.Error(), "events.code") {
			return event.ErrCodeTaken
		}
		return store.Wrap(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap(op, err)
	}
	if n == 0 {
		return event.ErrNotFound
	}

	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	const op = "sqlite.mark_completed"
	if s.closed.Load() {
		return store.Wrap(op, store.ErrClosed)
	}

	var res sql.Result
	err := s.observe(op, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `UPDATE events SET completed = 1 WHERE id = ? AND completed = 0`, id)
		return execErr
	})
	if err != nil {
		return store.Wrap(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return store.Wrap(op, err)
	}
	if n == 1 {
		return nil
	}

	// nothing flipped: either the event is gone or someone else completed it
	if _, err := s.FindEventByID(ctx, id); err != nil {
		return err
	}

	return event.ErrAlreadyCompleted
}

const attendeeColumns = `id, event_id, name, email, linkedin_url, registered_at`

func scanAttendee(row interface{ Scan(dest ...any) error }) (attendee.Attendee, error) {
	var a attendee.Attendee
	err := row.Scan(&a.ID, &a.EventID, &a.Name, &a.Email, &a.LinkedInURL, &a.RegisteredAt)
	return a, err
}

func attendeeWhere(filter store.AttendeeFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.ID != "" {
		conds = append(conds, "id = ?")
		args = append(args, filter.ID)
	}
	if filter.EventID != "" {
		conds = append(conds, "event_id = ?")
		args = append(args, filter.EventID)
	}
	if filter.Email != "" {
		conds = append(conds, "email = ?")
		args = append(args, attendee.NormalizeEmail(filter.Email))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func attendeeOrder(filter store.AttendeeFilter) string {
	if filter.NewestFirst {
		return " ORDER BY registered_at DESC, id DESC"
	}
	return " ORDER BY registered_at ASC, id ASC"
}

func (s *Store) FindAttendee(ctx context.Context, filter store.AttendeeFilter) (attendee.Attendee, error) {
	const op = "sqlite.find_attendee"
	if s.closed.Load() {
		return attendee.Attendee{}, store.Wrap(op, store.ErrClosed)
	}

	where, args := attendeeWhere(filter)
	query := `SELECT ` + attendeeColumns + ` FROM attendees` + where + attendeeOrder(filter) + ` LIMIT 1`

	var a attendee.Attendee
	err := s.observe(op, func() error {
		var scanErr error
		a, scanErr = scanAttendee(s.db.QueryRowContext(ctx, query, args...))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attendee.Attendee{}, attendee.ErrNotFound
		}
		return attendee.Attendee{}, store.Wrap(op, err)
	}

	return a, nil
}

func (s *Store) ListAttendees(ctx context.Context, filter store.AttendeeFilter) ([]attendee.Attendee, error) {
	const op = "sqlite.list_attendees"
	if s.closed.Load() {
		return nil, store.Wrap(op, store.ErrClosed)
	}

	where, args := attendeeWhere(filter)
	var rows *sql.Rows
	err := s.observe(op, func() error {
		var qerr error
		rows, qerr = s.db.QueryContext(ctx, `SELECT `+attendeeColumns+` FROM attendees`+where+attendeeOrder(filter), args...)
		return qerr
	})
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]attendee.Attendee, 0)
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, store.Wrap(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap(op, err)
	}

	return out, nil
}

func (s *Store) InsertAttendee(ctx context.Context, a attendee.Attendee) error {
	const op = "sqlite.insert_attendee"
	if s.closed.Load() {
		return store.Wrap(op, store.ErrClosed)
	}

	err := s.observe(op, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO attendees (`+attendeeColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.EventID, a.Name, attendee.NormalizeEmail(a.Email), a.LinkedInURL, a.RegisteredAt.UTC(),
		)
		return execErr
	})
	if err != nil {
		switch {
		case isDuplicateKey(err):
			return attendee.ErrAlreadyRegistered
		case isForeignKey(err):
			return event.ErrNotFound
		}
		return store.Wrap(op, err)
	}

	return nil
}

// isDuplicateKey checks if a SQLite error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
