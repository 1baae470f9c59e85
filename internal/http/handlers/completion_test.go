package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/eventconnect/internal/completion"
	"github.com/geocoder89/eventconnect/internal/domain/event"
	"github.com/geocoder89/eventconnect/internal/http/handlers"
	"github.com/geocoder89/eventconnect/internal/store"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCompleter struct {
	completeFn func(ctx context.Context, eventID string) (completion.Report, error)
	calls      int
}

func (f *fakeCompleter) Complete(ctx context.Context, eventID string) (completion.Report, error) {
	f.calls++
	if f.completeFn != nil {
		return f.completeFn(ctx, eventID)
	}
	return completion.Report{EventID: eventID}, nil
}

func newCompletionRouter(c handlers.EventCompleter) *gin.Engine {
	r := gin.New()
	h := handlers.NewCompletionHandler(c)
	r.POST("/api/complete-event", h.CompleteEvent)
	return r
}

func postComplete(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/complete-event", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCompleteEvent_OK(t *testing.T) {
	fc := &fakeCompleter{
		completeFn: func(_ context.Context, id string) (completion.Report, error) {
			return completion.Report{EventID: id, TotalAttendees: 3, Attempted: 3, Sent: 3, Failures: nil}, nil
		},
	}
	w := postComplete(newCompletionRouter(fc), `{"eventId":"e1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Message string            `json:"message"`
		Report  completion.Report `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Report.EventID != "e1" || resp.Report.Sent != 3 {
		t.Fatalf("unexpected report: %+v", resp.Report)
	}
	if resp.Message != "Event marked as completed and 3 follow-up emails sent" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestCompleteEvent_MissingEventID(t *testing.T) {
	fc := &fakeCompleter{}
	w := postComplete(newCompletionRouter(fc), `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if fc.calls != 0 {
		t.Fatalf("completer should not be called on a bad request")
	}
}

func TestCompleteEvent_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", event.ErrNotFound, http.StatusNotFound},
		{"already completed", event.ErrAlreadyCompleted, http.StatusConflict},
		{"store error", &store.StoreError{Op: "acquire", Err: &store.ConnectionError{Embedded: errors.New("boom")}}, http.StatusServiceUnavailable},
		{"other", errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeCompleter{
				completeFn: func(context.Context, string) (completion.Report, error) {
					return completion.Report{}, tc.err
				},
			}
			w := postComplete(newCompletionRouter(fc), `{"eventId":"e1"}`)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d body=%s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestReadyz(t *testing.T) {
	r := gin.New()
	mode := "embedded"
	var probeErr error
	h := handlers.NewHealthHandler(func(context.Context) (string, error) { return mode, probeErr }, 0)
	r.GET("/readyz", h.Readyz)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"store":"embedded"`)) {
		t.Fatalf("expected ready on embedded, got %d %s", w.Code, w.Body.String())
	}

	probeErr = errors.New("no store")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
