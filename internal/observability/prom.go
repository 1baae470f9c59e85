package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec
	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Store broker
	StoreConnectTotal    *prometheus.CounterVec
	StoreConnectDuration *prometheus.HistogramVec
	StoreMode            *prometheus.GaugeVec

	// Notifications
	NotificationsTotal    *prometheus.CounterVec
	DispatchBatchDuration prometheus.Histogram
	CompletionsTotal      *prometheus.CounterVec
}

var storeModes = []string{"none", "remote", "embedded"}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventconnect",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventconnect",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eventconnect",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventconnect",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventconnect",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		StoreConnectTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventconnect",
				Subsystem: "store",
				Name:      "connect_attempts_total",
				Help:      "Physical store connection attempts by target and result.",
			},
			[]string{"target", "result"}, // result=ok|error|timeout
		),
		StoreConnectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventconnect",
				Subsystem: "store",
				Name:      "connect_duration_seconds",
				Help:      "Store connection attempt latency by target.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"target"},
		),
		StoreMode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "eventconnect",
				Subsystem: "store",
				Name:      "mode",
				Help:      "1 for the store mode currently backing the cached handle.",
			},
			[]string{"mode"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventconnect",
				Subsystem: "notifications",
				Name:      "total",
				Help:      "Notification sends by result.",
			},
			[]string{"result"}, // result=sent|failed|skipped|render_error
		),
		DispatchBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "eventconnect",
				Subsystem: "notifications",
				Name:      "batch_duration_seconds",
				Help:      "Time for one dispatch batch to settle.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		CompletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventconnect",
				Subsystem: "events",
				Name:      "completions_total",
				Help:      "Event completion requests by outcome.",
			},
			[]string{"outcome"}, // outcome=completed|not_found|already_completed|store_error
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.StoreConnectTotal, p.StoreConnectDuration, p.StoreMode,
		p.NotificationsTotal, p.DispatchBatchDuration, p.CompletionsTotal,
	)

	return p
}

func (p *Prom) ObserveStoreConnect(target, result string, d time.Duration) {
	p.StoreConnectTotal.WithLabelValues(target, result).Inc()
	p.StoreConnectDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *Prom) SetStoreMode(mode string) {
	for _, m := range storeModes {
		v := 0.0
		if m == mode {
			v = 1
		}
		p.StoreMode.WithLabelValues(m).Set(v)
	}
}

func (p *Prom) ObserveNotification(result string) {
	p.NotificationsTotal.WithLabelValues(result).Inc()
}

func (p *Prom) ObserveDispatchBatch(d time.Duration) {
	p.DispatchBatchDuration.Observe(d.Seconds())
}

func (p *Prom) ObserveCompletion(outcome string) {
	p.CompletionsTotal.WithLabelValues(outcome).Inc()
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		// route template is only available after routing; best effort:
		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}
