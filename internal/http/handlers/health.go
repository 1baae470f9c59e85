package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadyProbe reports which store backs the service, or why none is reachable.
type ReadyProbe func(ctx context.Context) (mode string, err error)

type HealthHandler struct {
	probe   ReadyProbe
	timeout time.Duration
}

func NewHealthHandler(probe ReadyProbe, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthHandler{probe: probe, timeout: timeout}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.probe == nil {
		ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	c, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	mode, err := h.probe(c)
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "store": mode})
}
