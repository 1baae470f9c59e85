package http

import (
	"log/slog"

	"github.com/geocoder89/eventconnect/internal/http/handlers"
	"github.com/geocoder89/eventconnect/internal/http/middlewares"
	"github.com/geocoder89/eventconnect/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

type RouterDeps struct {
	Env         string
	ServiceName string
	Log         *slog.Logger
	// Prom and Gatherer are optional; /metrics is mounted when Gatherer is set.
	Prom      *observability.Prom
	Gatherer  prometheus.Gatherer
	Completer handlers.EventCompleter
	Ready     handlers.ReadyProbe
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.ServiceName == "" {
		deps.ServiceName = "eventconnect-api"
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(deps.ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(deps.Log))
	r.Use(middlewares.SecurityHeaders())
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	h := handlers.NewHealthHandler(deps.Ready, 0)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	api := r.Group("/api")
	api.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	api.Use(middlewares.RequireJSON())

	completionHandler := handlers.NewCompletionHandler(deps.Completer)
	api.POST("/complete-event", completionHandler.CompleteEvent)

	return r
}
