package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, to, subject, body string) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	n.log.InfoContext(ctx, "notification.sent",
		"to", to,
		"subject", subject,
		"body_bytes", len(body),
	)
	return nil
}
