package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	flightKey = "connect"

	defaultConnectTimeout = 15 * time.Second
	defaultPingTimeout    = 2 * time.Second
)

// Connector opens a connection to a remote store.
type Connector interface {
	Connect(ctx context.Context) (Handle, error)
}

type ConnectorFunc func(ctx context.Context) (Handle, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Handle, error) { return f(ctx) }

// Embedded is an in-process store that is started on demand.
type Embedded interface {
	// Open starts the store if it is not running and returns a handle to it.
	// A running instance is reused so its records survive reconnects.
	Open(ctx context.Context) (Handle, error)
	// Stop is safe to call on a stopped store.
	Stop() error
}

// Metrics receives broker observations. observability.Prom implements it.
type Metrics interface {
	ObserveStoreConnect(target, result string, d time.Duration)
	SetStoreMode(mode string)
}

type BrokerConfig struct {
	// Remote is nil when no remote address is configured.
	Remote         Connector
	Embedded       Embedded
	ConnectTimeout time.Duration
	PingTimeout    time.Duration
	Logger         *slog.Logger
	Metrics        Metrics
}

// Broker owns the process-wide connection state. At most one physical
// connection procedure runs at a time; only success is cached.
type Broker struct {
	cfg    BrokerConfig
	log    *slog.Logger
	tracer trace.Tracer
	flight singleflight.Group

	mu     sync.Mutex
	state  State
	mode   Mode
	handle Handle
	// gen is bumped by Release; a connect attempt that started under an
	// older gen must not install its handle.
	gen             uint64
	embeddedStarted bool
	// retired holds handles that failed a liveness check. Other callers may
	// still be using them, so they are closed on Release, not on retirement.
	retired []Handle
}

type connectResult struct {
	h   Handle
	gen uint64
}

func NewBroker(cfg BrokerConfig) *Broker {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Broker{
		cfg:    cfg,
		log:    log.With("component", "store_broker"),
		tracer: otel.Tracer("github.com/geocoder89/eventconnect/internal/store"),
		state:  Unconnected,
		mode:   ModeNone,
	}
}

func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Broker) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Acquire returns the cached handle when it passes the liveness check, or
// joins the single in-flight connection procedure. A caller whose own ctx
// ends gets the wrapped ctx error and never disturbs the cached handle.
func (b *Broker) Acquire(ctx context.Context) (Handle, error) {
	ctx, span := b.tracer.Start(ctx, "store.acquire")
	defer span.End()

	if h := b.cached(); h != nil {
		err := b.ping(ctx, h)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("store acquire: %w", ctx.Err())
		}
		if err == nil {
			span.SetAttributes(attribute.Bool("store.cached", true))
			return h, nil
		}
		b.log.WarnContext(ctx, "cached store handle failed liveness check", "err", err)
		b.retire(h)
	}

	for {
		joined := b.generation()

		ch := b.flight.DoChan(flightKey, func() (any, error) {
			return b.connect()
		})

		select {
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(connectResult).h, nil
			}
			// the flight started before a Release this caller never saw
			if r, ok := res.Val.(connectResult); ok && r.gen < joined && errors.Is(res.Err, ErrReleased) {
				continue
			}
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "acquire failed")
			return nil, res.Err
		case <-ctx.Done():
			return nil, fmt.Errorf("store acquire: %w", ctx.Err())
		}
	}
}

// Release closes the cached handle, any retired handles, and stops the
// embedded store. It is a no-op when nothing is connected. An attempt still
// in flight is discarded when it finishes; callers that joined it before
// Release get a ConnectionError wrapping ErrReleased, callers that joined
// after wait for a fresh attempt.
func (b *Broker) Release(ctx context.Context) error {
	b.mu.Lock()
	b.gen++
	h := b.handle
	started := b.embeddedStarted
	retired := b.retired
	b.handle = nil
	b.retired = nil
	b.state = Unconnected
	b.mode = ModeNone
	b.embeddedStarted = false
	b.mu.Unlock()

	if h == nil && !started && len(retired) == 0 {
		return nil
	}

	var errs []error
	closed := make(map[Handle]bool, len(retired)+1)
	for _, rh := range append(retired, h) {
		if rh == nil || closed[rh] {
			continue
		}
		closed[rh] = true
		if err := rh.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store handle: %w", err))
		}
	}
	if started && b.cfg.Embedded != nil {
		if err := b.cfg.Embedded.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop embedded store: %w", err))
		}
	}

	b.setModeMetric(ModeNone)
	b.log.InfoContext(ctx, "store released")

	return errors.Join(errs...)
}

func (b *Broker) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

func (b *Broker) cached() Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Connected {
		return nil
	}
	return b.handle
}

func (b *Broker) ping(ctx context.Context, h Handle) error {
	pctx, cancel := context.WithTimeout(ctx, b.cfg.PingTimeout)
	defer cancel()
	return h.Ping(pctx)
}

// retire uncaches h if it is still the cached handle. It stays open until
// Release because concurrent holders may still be mid-operation on it.
func (b *Broker) retire(h Handle) {
	b.mu.Lock()
	if b.handle != h {
		b.mu.Unlock()
		return
	}
	b.handle = nil
	b.state = Unconnected
	b.mode = ModeNone
	b.retired = append(b.retired, h)
	b.mu.Unlock()

	b.setModeMetric(ModeNone)
}

// connect runs inside the singleflight group, on a broker-owned context so
// that one waiter giving up does not fail the others.
func (b *Broker) connect() (connectResult, error) {
	b.mu.Lock()
	gen := b.gen
	if b.state == Connected && b.handle != nil {
		h := b.handle
		b.mu.Unlock()
		return connectResult{h: h, gen: gen}, nil
	}
	b.state = Connecting
	b.mu.Unlock()

	ctx, span := b.tracer.Start(context.Background(), "store.connect")
	defer span.End()

	var remoteErr error
	if b.cfg.Remote != nil {
		h, err := b.race(ctx, string(ModeRemote), b.cfg.Remote.Connect)
		if err == nil {
			return b.install(ctx, gen, h, ModeRemote)
		}
		remoteErr = err
		b.log.WarnContext(ctx, "remote store unavailable, falling back to embedded store", "err", err)
	}

	var embeddedErr error
	if b.cfg.Embedded == nil {
		embeddedErr = ErrNoEmbedded
	} else {
		b.mu.Lock()
		if b.gen == gen {
			b.embeddedStarted = true
		}
		b.mu.Unlock()

		h, err := b.race(ctx, string(ModeEmbedded), b.cfg.Embedded.Open)
		if err == nil {
			return b.install(ctx, gen, h, ModeEmbedded)
		}
		embeddedErr = err
	}

	connErr := &ConnectionError{Remote: remoteErr, Embedded: embeddedErr}
	span.RecordError(connErr)
	span.SetStatus(codes.Error, "connect failed")

	b.mu.Lock()
	if b.gen == gen {
		b.state = Failed
	}
	b.mu.Unlock()

	b.log.ErrorContext(ctx, "store connection failed", "err", connErr)

	// failure is not cached; the next Acquire starts from scratch
	b.mu.Lock()
	if b.gen == gen {
		b.state = Unconnected
		b.mode = ModeNone
	}
	b.mu.Unlock()

	return connectResult{gen: gen}, connErr
}

type dialResult struct {
	h   Handle
	err error
}

// race bounds dial by the connect timeout. A dial that loses the race is
// drained in the background and its handle closed.
func (b *Broker) race(parent context.Context, target string, dial func(context.Context) (Handle, error)) (Handle, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(parent, b.cfg.ConnectTimeout)
	defer cancel()

	results := make(chan dialResult, 1)
	go func() {
		h, err := dial(ctx)
		results <- dialResult{h: h, err: err}
	}()

	timer := time.NewTimer(b.cfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case r := <-results:
		if r.err == nil && r.h == nil {
			r.err = fmt.Errorf("%s store returned no handle", target)
		}
		b.observe(target, r.err, start)
		return r.h, r.err
	case <-timer.C:
		go b.reap(target, results)
		err := fmt.Errorf("%s: %w after %s", target, ErrConnectTimeout, b.cfg.ConnectTimeout)
		b.observe(target, err, start)
		return nil, err
	}
}

func (b *Broker) reap(target string, results <-chan dialResult) {
	r := <-results
	if r.h == nil {
		return
	}
	_ = r.h.Close()
	b.log.Warn("discarded late store handle", "target", target)
}

func (b *Broker) install(ctx context.Context, gen uint64, h Handle, mode Mode) (connectResult, error) {
	b.mu.Lock()
	if b.gen != gen {
		_ = h.Close()
		// under mu, so a newer generation cannot start the embedded store
		// between the check and the stop
		if mode == ModeEmbedded && b.cfg.Embedded != nil && !b.embeddedStarted {
			_ = b.cfg.Embedded.Stop()
		}
		b.mu.Unlock()

		b.log.WarnContext(ctx, "discarded store handle from stale connect attempt", "mode", mode)

		if mode == ModeRemote {
			return connectResult{gen: gen}, &ConnectionError{Remote: ErrReleased}
		}
		return connectResult{gen: gen}, &ConnectionError{Embedded: ErrReleased}
	}
	b.handle = h
	b.state = Connected
	b.mode = mode
	b.mu.Unlock()

	b.setModeMetric(mode)
	b.log.InfoContext(ctx, "store connected", "mode", mode)

	return connectResult{h: h, gen: gen}, nil
}

func (b *Broker) observe(target string, err error, start time.Time) {
	if b.cfg.Metrics == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrConnectTimeout), errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	b.cfg.Metrics.ObserveStoreConnect(target, result, time.Since(start))
}

func (b *Broker) setModeMetric(mode Mode) {
	if b.cfg.Metrics != nil {
		b.cfg.Metrics.SetStoreMode(string(mode))
	}
}
