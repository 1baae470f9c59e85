package notifications

import (
	"context"
	"log/slog"
)

// Notifier transmits one message to one address.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

type NotifierFunc func(ctx context.Context, to, subject, body string) error

func (f NotifierFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

type Config struct {
	// Provider is "ses" or "log"; anything else falls back to log.
	Provider    string
	FromAddress string
	FromName    string
	SES         SESConfig
	Protect     ProtectedNotifierConfig
}

// New builds the configured notifier, wrapped in a ProtectedNotifier so
// every send is bounded by a timeout and a circuit breaker.
func New(cfg Config, log *slog.Logger) (Notifier, error) {
	var inner Notifier

	switch cfg.Provider {
	case "ses":
		n, err := NewSESNotifier(cfg.SES, cfg.FromAddress, cfg.FromName)
		if err != nil {
			return nil, err
		}
		inner = n
	case "log", "":
		inner = NewLogNotifier(log)
	default:
		log.Warn("unknown notifier provider, using log", "provider", cfg.Provider)
		inner = NewLogNotifier(log)
	}

	return NewProtectedNotifier(inner, cfg.Protect), nil
}
