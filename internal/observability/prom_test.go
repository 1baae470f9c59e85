package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetStoreMode_OnlyActiveModeIsSet(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.SetStoreMode("embedded")

	if got := testutil.ToFloat64(p.StoreMode.WithLabelValues("embedded")); got != 1 {
		t.Fatalf("expected embedded=1, got %v", got)
	}
	if got := testutil.ToFloat64(p.StoreMode.WithLabelValues("remote")); got != 0 {
		t.Fatalf("expected remote=0, got %v", got)
	}

	p.SetStoreMode("none")
	if got := testutil.ToFloat64(p.StoreMode.WithLabelValues("embedded")); got != 0 {
		t.Fatalf("expected embedded=0 after reset, got %v", got)
	}
}

func TestObserveStoreConnect(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.ObserveStoreConnect("remote", "timeout", 15*time.Second)
	p.ObserveStoreConnect("embedded", "ok", 10*time.Millisecond)

	if got := testutil.ToFloat64(p.StoreConnectTotal.WithLabelValues("remote", "timeout")); got != 1 {
		t.Fatalf("expected one remote timeout, got %v", got)
	}
	if got := testutil.CollectAndCount(p.StoreConnectDuration); got != 2 {
		t.Fatalf("expected two duration series, got %d", got)
	}
}

func TestObserveDB_ClassifiesErrors(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("events.find_by_id", func() error { return pgx.ErrNoRows })
	_ = p.ObserveDB("attendees.insert", func() error { return &pgconn.PgError{Code: "23505"} })
	_ = p.ObserveDB("attendees.insert", func() error { return errors.New("dial tcp: connection refused") })

	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("attendees.insert", "unique_violation")); got != 1 {
		t.Fatalf("expected unique_violation=1, got %v", got)
	}
	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("attendees.insert", "connection")); got != 1 {
		t.Fatalf("expected connection=1, got %v", got)
	}
	if got := testutil.CollectAndCount(p.DbErrorsTotal); got != 2 {
		t.Fatalf("a miss must not count as an error, got %d series", got)
	}
}

func TestClassifyDBErr_SQLite(t *testing.T) {
	cases := []struct{ msg, want string }{
		{"constraint failed: UNIQUE constraint failed: events.code (2067)", "unique_violation"},
		{"constraint failed: FOREIGN KEY constraint failed (787)", "foreign_key_violation"},
		{"database is locked (5) (SQLITE_BUSY)", "locked"},
		{"sql: database is closed", "connection"},
	}
	for _, tc := range cases {
		if got := classifyDBErr(errors.New(tc.msg)); got != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.msg, tc.want, got)
		}
	}
}
