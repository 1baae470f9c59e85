package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/repo/sqlite"
	"github.com/geocoder89/eventconnect/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return sqlite.NewStore(db), mock
}

func TestStore_DriverErrorsBecomeStoreErrors(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM events WHERE id = ?").
		WithArgs("e1").
		WillReturnError(errors.New("database is locked"))

	_, err := s.FindEventByID(context.Background(), "e1")

	var se *store.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "sqlite.find_event_by_id", se.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NoRowsIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM events WHERE code = ?").
		WithArgs("EVTNONE").
		WillReturnError(sql.ErrNoRows)

	_, err := s.FindEventByCode(context.Background(), "evtnone")
	assert.ErrorIs(t, err, event.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkCompletedLostRace(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE events SET completed = 1 WHERE id = \\? AND completed = 0").
		WithArgs("e1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"id", "name", "date", "location", "description", "organizer", "code", "completed", "created_at"}).
		AddRow("e1", "Go Meetup", time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC), "Lagos", "", "", "EVT1", true, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	mock.ExpectQuery("SELECT (.+) FROM events WHERE id = ?").WithArgs("e1").WillReturnRows(rows)

	err := s.MarkCompleted(context.Background(), "e1")
	assert.ErrorIs(t, err, event.ErrAlreadyCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertAttendeeConstraintMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate", errors.New("constraint failed: UNIQUE constraint failed: attendees.event_id, attendees.email (2067)"), attendee.ErrAlreadyRegistered},
		{"foreign key", errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), event.ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectExec("INSERT INTO attendees").WillReturnError(tc.err)

			err := s.InsertAttendee(context.Background(), attendee.New("e1", attendee.RegisterRequest{Name: "Ada", Email: "ada@example.com"}))
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
