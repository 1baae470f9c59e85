// Package sqlite is the embedded, in-process fallback store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/geocoder89/eventconnect/internal/store"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var _ store.Embedded = (*Server)(nil)

// Server owns an in-memory SQLite database. The pool is pinned to a single
// connection because every new connection to ":memory:" is a fresh database.
type Server struct {
	mu  sync.Mutex
	dsn string
	db  *sql.DB
	log *slog.Logger
	obs Observer
}

type Option func(*Server)

// WithDSN points the server at a file instead of memory.
func WithDSN(dsn string) Option {
	return func(s *Server) {
		s.dsn = dsn
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithObserver times every store operation served by this database.
func WithObserver(obs Observer) Option {
	return func(s *Server) {
		s.obs = obs
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		dsn: ":memory:",
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts the database on first use and hands out a new Store over it.
// A running database that still answers pings is reused.
func (s *Server) Open(ctx context.Context) (store.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err == nil {
			return s.newStore(), nil
		}
		s.log.WarnContext(ctx, "embedded store stopped answering, restarting")
		_ = s.db.Close()
		s.db = nil
	}

	db, err := sql.Open(driverName, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open embedded store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.db = db
	s.log.InfoContext(ctx, "embedded store started", "dsn", s.dsn)

	return s.newStore(), nil
}

func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.log.Info("embedded store stopped")

	return err
}

// newStore must be called with mu held.
func (s *Server) newStore() *Store {
	st := NewStore(s.db)
	st.obs = s.obs
	return st
}
