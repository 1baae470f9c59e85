package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("notifier circuit open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

type ProtectedNotifierConfig struct {
	// Timeout bounds a single send.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failed sends that
	// opens the circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects sends before it lets
	// trial sends through.
	Cooldown         time.Duration
	HalfOpenMaxCalls int
	// OnStateChange, if set, is called outside the lock after every
	// transition.
	OnStateChange func(from, to string)
}

// ProtectedNotifier bounds every send by a timeout and stops calling a
// provider that keeps failing. A rejected send is an ordinary error to the
// caller, so a dispatch records it as one more failed recipient.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig
	now   func() time.Time

	mu               sync.Mutex
	state            circuitState
	failures         int
	openedAt         time.Time
	halfOpenInFlight int
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &ProtectedNotifier{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: circuitClosed,
	}
}

func (n *ProtectedNotifier) Send(ctx context.Context, to, subject, body string) error {
	if !n.admit() {
		return fmt.Errorf("send to %s: %w", to, ErrCircuitOpen)
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	err := n.inner.Send(sendCtx, to, subject, body)
	if err == nil && sendCtx.Err() != nil {
		// the provider ignored cancellation and returned late
		err = fmt.Errorf("send to %s: %w", to, sendCtx.Err())
	}

	// a caller that gave up says nothing about the provider
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		n.release()
		return err
	}

	n.record(err)
	return err
}

// State is "closed", "open" or "half_open".
func (n *ProtectedNotifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return string(n.state)
}

func (n *ProtectedNotifier) admit() bool {
	n.mu.Lock()

	from := n.state
	ok := true

	switch n.state {
	case circuitOpen:
		if n.now().Sub(n.openedAt) < n.cfg.Cooldown {
			ok = false
			break
		}
		n.state = circuitHalfOpen
		n.halfOpenInFlight = 1
	case circuitHalfOpen:
		if n.halfOpenInFlight >= n.cfg.HalfOpenMaxCalls {
			ok = false
			break
		}
		n.halfOpenInFlight++
	}

	to := n.state
	n.mu.Unlock()

	n.notify(from, to)
	return ok
}

func (n *ProtectedNotifier) release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == circuitHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}
}

func (n *ProtectedNotifier) record(err error) {
	n.mu.Lock()

	from := n.state
	if n.state == circuitHalfOpen && n.halfOpenInFlight > 0 {
		n.halfOpenInFlight--
	}

	switch {
	case err == nil && n.state == circuitOpen:
		// admitted before a sibling tripped the circuit; the trip stands
	case err == nil:
		n.failures = 0
		n.state = circuitClosed
	case n.state == circuitHalfOpen:
		n.failures++
		n.trip()
	default:
		n.failures++
		if n.failures >= n.cfg.FailureThreshold {
			n.trip()
		}
	}

	to := n.state
	n.mu.Unlock()

	n.notify(from, to)
}

// trip must be called with mu held.
func (n *ProtectedNotifier) trip() {
	n.state = circuitOpen
	n.openedAt = n.now()
	n.halfOpenInFlight = 0
}

func (n *ProtectedNotifier) notify(from, to circuitState) {
	if from != to && n.cfg.OnStateChange != nil {
		n.cfg.OnStateChange(string(from), string(to))
	}
}
