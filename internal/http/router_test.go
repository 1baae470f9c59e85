package http_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/eventconnect/internal/completion"
	httpx "github.com/geocoder89/eventconnect/internal/http"
	"github.com/geocoder89/eventconnect/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type completerFunc func(ctx context.Context, id string) (completion.Report, error)

func (f completerFunc) Complete(ctx context.Context, id string) (completion.Report, error) {
	return f(ctx, id)
}

func TestRouter_CompleteEventAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	r := httpx.NewRouter(httpx.RouterDeps{
		Env:      "dev",
		Prom:     observability.NewProm(reg),
		Gatherer: reg,
		Completer: completerFunc(func(_ context.Context, id string) (completion.Report, error) {
			return completion.Report{EventID: id}, nil
		}),
		Ready: func(context.Context) (string, error) { return "embedded", nil },
	})

	req := httptest.NewRequest(http.MethodPost, "/api/complete-event", bytes.NewBufferString(`{"eventId":"e1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `eventconnect_http_requests_total{method="POST",route="/api/complete-event",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", w.Body.String())
	}
}

func TestRouter_RejectsNonJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httpx.NewRouter(httpx.RouterDeps{Env: "dev"})

	req := httptest.NewRequest(http.MethodPost, "/api/complete-event", strings.NewReader("eventId=e1"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
}
