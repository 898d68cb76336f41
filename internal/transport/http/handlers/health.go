package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck probes a downstream dependency.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler exposes liveness and readiness information.
type HealthHandler struct {
	startedAt time.Time
	checks    map[string]ReadinessCheck
	order     []string
	timeout   time.Duration
}

// HealthHandlerOption configures optional HealthHandler behaviour.
type HealthHandlerOption func(*HealthHandler)

// WithReadinessCheck registers a named dependency probe for the readiness endpoint.
func WithReadinessCheck(name string, check ReadinessCheck) HealthHandlerOption {
	return func(h *HealthHandler) {
		if name == "" || check == nil {
			return
		}
		if _, exists := h.checks[name]; !exists {
			h.order = append(h.order, name)
		}
		h.checks[name] = check
	}
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(opts ...HealthHandlerOption) *HealthHandler {
	handler := &HealthHandler{
		startedAt: time.Now().UTC(),
		checks:    make(map[string]ReadinessCheck),
		timeout:   2 * time.Second,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// Status godoc
// @Summary Service health check
// @Description Returns the status and start time of the service.
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		StartedAt: h.startedAt,
		Timestamp: time.Now().UTC(),
	})
}

// Readiness godoc
// @Summary Service readiness check
// @Description Probes downstream dependencies and reports per-check results.
// @Tags Health
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	response := ReadyResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
	}

	if len(h.checks) > 0 {
		response.Checks = make(map[string]string, len(h.checks))
	}

	status := http.StatusOK
	for _, name := range h.order {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := h.checks[name](ctx)
		cancel()

		if err != nil {
			response.Checks[name] = err.Error()
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[name] = "ok"
	}

	c.JSON(status, response)
}
