package notifications_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/eventconnect/internal/domain/attendee"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/notifications"
)

// recordingNotifier tracks peak concurrency and fails addresses listed in failFor.
type recordingNotifier struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	sent     []string
	failFor  map[string]bool
	delay    time.Duration
}

func (n *recordingNotifier) Send(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	n.inFlight++
	if n.inFlight > n.peak {
		n.peak = n.inFlight
	}
	n.mu.Unlock()

	if n.delay > 0 {
		time.Sleep(n.delay)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.inFlight--
	if n.failFor[to] {
		return fmt.Errorf("mailbox unavailable: %s", to)
	}
	n.sent = append(n.sent, to)
	return nil
}

type fakeDispatchMetrics struct {
	mu      sync.Mutex
	results map[string]int
	batches int
}

func (m *fakeDispatchMetrics) ObserveNotification(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]int)
	}
	m.results[result]++
}

func (m *fakeDispatchMetrics) ObserveDispatchBatch(time.Duration) {
	m.mu.Lock()
	m.batches++
	m.mu.Unlock()
}

func testEvent() event.Event {
	return event.Event{
		ID:       "evt-1",
		Name:     "Go Meetup",
		Location: "Lagos",
		Code:     "EVTGO0001",
		Date:     time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
	}
}

func makeAttendees(n int) []attendee.Attendee {
	out := make([]attendee.Attendee, n)
	for i := range n {
		out[i] = attendee.Attendee{
			ID:      fmt.Sprintf("att-%02d", i),
			EventID: "evt-1",
			Name:    fmt.Sprintf("Attendee %d", i),
			Email:   fmt.Sprintf("a%02d@example.com", i),
		}
	}
	return out
}

func TestDispatch_EmptyListNeverCallsNotifier(t *testing.T) {
	called := false
	d := notifications.NewDispatcher(notifications.NotifierFunc(func(context.Context, string, string, string) error {
		called = true
		return nil
	}), nil, notifications.DispatchConfig{})

	res := d.Dispatch(context.Background(), testEvent(), nil)

	if called {
		t.Fatalf("notifier must not be called for an empty list")
	}
	if res.Attempted != 0 || res.Succeeded != 0 || res.Failed != 0 || len(res.Failures) != 0 {
		t.Fatalf("expected zero result, got %+v", res)
	}
}

func TestDispatch_TwelveAttendeesTwoFailures(t *testing.T) {
	attendees := makeAttendees(12)
	n := &recordingNotifier{
		failFor: map[string]bool{
			attendees[10].Email: true,
			attendees[3].Email:  true,
		},
	}
	metrics := &fakeDispatchMetrics{}
	d := notifications.NewDispatcher(n, nil, notifications.DispatchConfig{BatchSize: 10, Metrics: metrics})

	res := d.Dispatch(context.Background(), testEvent(), attendees)

	if res.Attempted != 12 || res.Succeeded != 10 || res.Failed != 2 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.Attempted != res.Succeeded+res.Failed {
		t.Fatalf("attempted must equal succeeded+failed: %+v", res)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("expected two failures, got %d", len(res.Failures))
	}
	// ordered by attendee position, not completion order
	if res.Failures[0].AttendeeID != "att-03" || res.Failures[1].AttendeeID != "att-10" {
		t.Fatalf("failures out of order: %+v", res.Failures)
	}
	if !strings.Contains(res.Failures[0].Error, "mailbox unavailable") {
		t.Fatalf("failure should carry the cause, got %q", res.Failures[0].Error)
	}
	if metrics.batches != 2 {
		t.Fatalf("expected 2 batches, got %d", metrics.batches)
	}
	if metrics.results["sent"] != 10 || metrics.results["failed"] != 2 {
		t.Fatalf("unexpected metric results: %v", metrics.results)
	}
}

func TestDispatch_ConcurrencyBoundedByBatchSize(t *testing.T) {
	n := &recordingNotifier{delay: 20 * time.Millisecond}
	d := notifications.NewDispatcher(n, nil, notifications.DispatchConfig{BatchSize: 4})

	res := d.Dispatch(context.Background(), testEvent(), makeAttendees(11))

	if res.Succeeded != 11 {
		t.Fatalf("expected all 11 sent, got %+v", res)
	}
	if n.peak > 4 {
		t.Fatalf("peak concurrency %d exceeds batch size 4", n.peak)
	}
	if n.peak < 2 {
		t.Fatalf("sends inside a batch should overlap, peak=%d", n.peak)
	}
}

func TestDispatch_SkipsAttendeesWithoutAddress(t *testing.T) {
	attendees := makeAttendees(3)
	attendees[1].Email = "   "

	n := &recordingNotifier{}
	d := notifications.NewDispatcher(n, nil, notifications.DispatchConfig{})

	res := d.Dispatch(context.Background(), testEvent(), attendees)

	if res.Skipped != 1 || res.Attempted != 2 || res.Succeeded != 2 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	if res.Attempted != len(attendees)-res.Skipped {
		t.Fatalf("attempted must exclude skipped: %+v", res)
	}
	for _, to := range n.sent {
		if strings.TrimSpace(to) == "" {
			t.Fatalf("sent to an empty address")
		}
	}
}

type failingRenderer struct{}

func (failingRenderer) Render(string, any) (string, string, error) {
	return "", "", errors.New("template missing")
}

func TestDispatch_RenderFailureIsRecorded(t *testing.T) {
	n := &recordingNotifier{}
	d := notifications.NewDispatcher(n, failingRenderer{}, notifications.DispatchConfig{})

	res := d.Dispatch(context.Background(), testEvent(), makeAttendees(2))

	if res.Failed != 2 || res.Succeeded != 0 {
		t.Fatalf("expected both renders to fail, got %+v", res)
	}
	if len(n.sent) != 0 {
		t.Fatalf("nothing should be sent when rendering fails")
	}
}

func TestDispatch_PersonalizesFollowup(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]string{}
	subjects := map[string]string{}

	d := notifications.NewDispatcher(notifications.NotifierFunc(func(_ context.Context, to, subject, body string) error {
		mu.Lock()
		defer mu.Unlock()
		bodies[to] = body
		subjects[to] = subject
		return nil
	}), nil, notifications.DispatchConfig{})

	attendees := makeAttendees(2)
	d.Dispatch(context.Background(), testEvent(), attendees)

	if subjects[attendees[0].Email] != "Thank you for attending Go Meetup" {
		t.Fatalf("unexpected subject %q", subjects[attendees[0].Email])
	}
	if !strings.Contains(bodies[attendees[1].Email], "Hello Attendee 1,") {
		t.Fatalf("body not personalized: %s", bodies[attendees[1].Email])
	}
}
