package store

import (
	"errors"
	"fmt"
)

var (
	ErrConnectTimeout = errors.New("store connect timed out")
	ErrReleased       = errors.New("broker released during connect")
	ErrClosed         = errors.New("store handle closed")
	ErrNoEmbedded     = errors.New("no embedded store configured")
)

// ConnectionError means neither the remote nor the embedded store could be
// reached. Remote is nil when no remote address was configured.
type ConnectionError struct {
	Remote   error
	Embedded error
}

func (e *ConnectionError) Error() string {
	switch {
	case e.Remote != nil && e.Embedded != nil:
		return fmt.Sprintf("store connection failed: remote: %v; embedded: %v", e.Remote, e.Embedded)
	case e.Embedded != nil:
		return fmt.Sprintf("store connection failed: embedded: %v", e.Embedded)
	case e.Remote != nil:
		return fmt.Sprintf("store connection failed: remote: %v", e.Remote)
	default:
		return "store connection failed"
	}
}

func (e *ConnectionError) Unwrap() []error {
	var errs []error
	if e.Remote != nil {
		errs = append(errs, e.Remote)
	}
	if e.Embedded != nil {
		errs = append(errs, e.Embedded)
	}
	return errs
}

// StoreError wraps any store failure that is not a business-rule error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *StoreError for op unless it is nil or a sentinel
// the caller should see untouched.
func Wrap(op string, err error, passthrough ...error) error {
	if err == nil {
		return nil
	}
	for _, p := range passthrough {
		if errors.Is(err, p) {
			return err
		}
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
