package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/eventconnect/internal/db"
	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/observability"
	"github.com/geocoder89/eventconnect/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ store.Handle = (*Store)(nil)

const (
	constraintEventCode     = "events_code_uniq"
	constraintAttendeeEmail = "attendees_event_email_uniq"
)

// Connector dials the remote Postgres store and applies the schema.
type Connector struct {
	URL      string
	MaxConns int32
	Prom     *observability.Prom
}

func (c Connector) Connect(ctx context.Context) (store.Handle, error) {
	pool, err := db.NewPool(ctx, c.URL, c.MaxConns)
	if err != nil {
		return nil, err
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return NewStore(pool, c.Prom), nil
}

type Store struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewStore(pool *pgxpool.Pool, prom *observability.Prom) *Store {
	return &Store{
		pool: pool,
		prom: prom,
	}
}

func (s *Store) observe(op string, fn func() error) error {
	if s.prom != nil {
		return s.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

const eventColumns = `id, name, date, location, description, organizer, code, completed, created_at`

func scanEvent(row pgx.Row) (event.Event, error) {
	var e event.Event
	err := row.Scan(&e.ID, &e.Name, &e.Date, &e.Location, &e.Description, &e.Organizer, &e.Code, &e.Completed, &e.CreatedAt)
	return e, err
}

func (s *Store) FindEventByID(ctx context.Context, id string) (event.Event, error) {
	return s.findEvent(ctx, "events.find_by_id", `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

func (s *Store) FindEventByCode(ctx context.Context, code string) (event.Event, error) {
	return s.findEvent(ctx, "events.find_by_code", `SELECT `+eventColumns+` FROM events WHERE code = $1`, strings.ToUpper(code))
}

func (s *Store) findEvent(ctx context.Context, op, query, arg string) (event.Event, error) {
	var e event.Event

	err := s.observe(op, func() error {
		var scanErr error
		e, scanErr = scanEvent(s.pool.QueryRow(ctx, query, arg))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, store.Wrap(op, err)
	}

	return e, nil
}

func (s *Store) FindEvents(ctx context.Context, filter event.Filter) ([]event.Event, error) {
	const op = "events.find_matching"

	var conds []string
	var args []any

	argsPosition := 1

	if filter.Organizer != nil {
		conds = append(conds, fmt.Sprintf("organizer = $%d", argsPosition))
		args = append(args, *filter.Organizer)
		argsPosition++
	}
	if filter.Completed != nil {
		conds = append(conds, fmt.Sprintf("completed = $%d", argsPosition))
		args = append(args, *filter.Completed)
		argsPosition++
	}
	if filter.From != nil {
		conds = append(conds, fmt.Sprintf("date >= $%d", argsPosition))
		args = append(args, *filter.From)
		argsPosition++
	}
	if filter.To != nil {
		conds = append(conds, fmt.Sprintf("date <= $%d", argsPosition))
		args = append(args, *filter.To)
		argsPosition++
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// stable ordering
	query += " ORDER BY date ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argsPosition)
		args = append(args, filter.Limit)
	}

	var rows pgx.Rows
	err := s.observe(op, func() error {
		var qerr error
		rows, qerr = s.pool.Query(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer rows.Close()

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
	const op = "events.insert"

	err := s.observe(op, func() error {
		_, execErr := s.pool.Exec(ctx,
			`INSERT INTO events (`+eventColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			e.ID, e.Name, e.Date, e.Location, e.Description, e.Organizer, e.Code, e.Completed, e.CreatedAt,
		)
		return execErr
	})
	if err != nil {
		if IsUniqueViolation(err, constraintEventCode) {
			return event.ErrCodeTaken
		}
		return store.Wrap(op, err)
	}

	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, e event.Event) error {
	const op = "events.update"

	var tag pgconn.CommandTag
	err := s.observe(op, func() error {
		var execErr error
		tag, execErr = s.pool.Exec(ctx, `
			UPDATE events
			SET name = $2,
			    date = $3,
			    location = $4,
			    description = $5,
			    organizer = $6,
			    code = $7,
			    completed = completed OR $8
			WHERE id = $1`,
			e.ID, e.Name, e.Date, e.Location, e.Description, e.Organizer, e.Code, e.Completed,
		)
		return execErr
	})
	if err != nil {
		if IsUniqueViolation(err, constraintEventCode) {
			return event.ErrCodeTaken
		}
		return store.Wrap(op, err)
	}

	if tag.RowsAffected() == 0 {
		return event.ErrNotFound
	}

	return nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	const op = "events.mark_completed"

	var tag pgconn.CommandTag
	err := s.observe(op, func() error {
		var execErr error
		tag, execErr = s.pool.Exec(ctx, `UPDATE events SET completed = TRUE WHERE id = $1 AND NOT completed`, id)
		return execErr
	})
	if err != nil {
		return store.Wrap(op, err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	// nothing flipped: either the event is gone or someone else completed it
	if _, err := s.FindEventByID(ctx, id); err != nil {
		return err
	}

	return event.ErrAlreadyCompleted
}

const attendeeColumns = `id, event_id, name, email, linkedin_url, registered_at`

func scanAttendee(row pgx.Row) (attendee.Attendee, error) {
	var a attendee.Attendee
	err := row.Scan(&a.ID, &a.EventID, &a.Name, &a.Email, &a.LinkedInURL, &a.RegisteredAt)
	return a, err
}

func attendeeQuery(filter store.AttendeeFilter) (string, []any) {
	var conds []string
	var args []any

	argsPosition := 1

	if filter.ID != "" {
		conds = append(conds, fmt.Sprintf("id = $%d", argsPosition))
		args = append(args, filter.ID)
		argsPosition++
	}
	if filter.EventID != "" {
		conds = append(conds, fmt.Sprintf("event_id = $%d", argsPosition))
		args = append(args, filter.EventID)
		argsPosition++
	}
	if filter.Email != "" {
		conds = append(conds, fmt.Sprintf("email = $%d", argsPosition))
		args = append(args, attendee.NormalizeEmail(filter.Email))
	}

	query := `SELECT ` + attendeeColumns + ` FROM attendees`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if filter.NewestFirst {
		query += " ORDER BY registered_at DESC, id DESC"
	} else {
		query += " ORDER BY registered_at ASC, id ASC"
	}

	return query, args
}

func (s *Store) FindAttendee(ctx context.Context, filter store.AttendeeFilter) (attendee.Attendee, error) {
	const op = "attendees.find_matching"

	query, args := attendeeQuery(filter)

	var a attendee.Attendee
	err := s.observe(op, func() error {
		var scanErr error
		a, scanErr = scanAttendee(s.pool.QueryRow(ctx, query+" LIMIT 1", args...))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendee.Attendee{}, attendee.ErrNotFound
		}
		return attendee.Attendee{}, store.Wrap(op, err)
	}

	return a, nil
}

func (s *Store) ListAttendees(ctx context.Context, filter store.AttendeeFilter) ([]attendee.Attendee, error) {
	const op = "attendees.list_matching"

	query, args := attendeeQuery(filter)

	var rows pgx.Rows
	err := s.observe(op, func() error {
		var qerr error
		rows, qerr = s.pool.Query(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer rows.Close()

	out := make([]attendee.Attendee, 0)
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, store.Wrap(op, err)
		}
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		if s.prom != nil {
			s.prom.DbErrorsTotal.WithLabelValues(op, "rows_err").Inc()
		}
		return nil, store.Wrap(op, err)
	}

	return out, nil
}

func (s *Store) InsertAttendee(ctx context.Context, a attendee.Attendee) error {
	const op = "attendees.insert"

	err := s.observe(op, func() error {
		_, execErr := s.pool.Exec(ctx,
			`INSERT INTO attendees (`+attendeeColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
			a.ID, a.EventID, a.Name, attendee.NormalizeEmail(a.Email), a.LinkedInURL, a.RegisteredAt,
		)
		return execErr
	})
	if err != nil {
		switch {
		case IsUniqueViolation(err, constraintAttendeeEmail):
			return attendee.ErrAlreadyRegistered
		case isForeignKeyViolation(err):
			return event.ErrNotFound
		}
		return store.Wrap(op, err)
	}

	return nil
}
