// Package api contains the HTTP handlers for the idea lifecycle service
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/services"
	"ideaflow/backend/pkg/models"
)

const (
	serviceName            = "ideaflow"
	defaultDispatchTimeout = 30 * time.Second
)

// Pinger reports store reachability for the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers for the idea lifecycle REST API
type Handler struct {
	service         services.WorkflowService
	notifier        services.Notifier
	pinger          Pinger
	logger          *logging.Logger
	version         string
	dispatchTimeout time.Duration
	now             func() time.Time

	dispatches sync.WaitGroup
}

// Option customises a Handler.
type Option func(*Handler)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// WithPinger adds a store check to /health.
func WithPinger(p Pinger) Option {
	return func(h *Handler) { h.pinger = p }
}

// WithDispatchTimeout bounds each detached notification dispatch.
func WithDispatchTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.dispatchTimeout = d
		}
	}
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(service services.WorkflowService, notifier services.Notifier, logger *logging.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &Handler{
		service:         service,
		notifier:        notifier,
		logger:          logger,
		version:         "dev",
		dispatchTimeout: defaultDispatchTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterHandlers mounts the versioned API routes on g.
func RegisterHandlers(g *echo.Group, h *Handler) {
	g.PUT("/ideas/:id/status", h.UpdateIdeaStatus)
}

// HandleHealth returns service health. The store check only degrades the
// status; the endpoint always answers 200.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Timestamp: h.now().UTC(),
		Service:   serviceName,
		Version:   h.version,
	}
	if h.pinger != nil {
		status.Checks = map[string]string{"store": "ok"}
		if err := h.pinger.Ping(c.Request().Context()); err != nil {
			status.Status = "degraded"
			status.Checks["store"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, status)
}

// Wait blocks until detached notification dispatches have finished.
func (h *Handler) Wait() {
	h.dispatches.Wait()
}

// dispatch delivers intents off the request path. Delivery failures are
// logged by the notifier and never reach the client.
func (h *Handler) dispatch(ctx context.Context, intents []models.NotificationIntent) {
	if h.notifier == nil || len(intents) == 0 {
		return
	}
	h.dispatches.Add(1)
	go func() {
		defer h.dispatches.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.dispatchTimeout)
		defer cancel()

		failed := 0
		for _, r := range h.notifier.Dispatch(ctx, intents) {
			if !r.Success {
				failed++
			}
		}
		if failed > 0 {
			h.logger.Warn("some notifications were not delivered", "failed", failed, "intents", len(intents))
		}
	}()
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(c echo.Context, status int, title, detail string) error {
	problem := models.ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
		problem.TraceID = sc.TraceID().String()
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, problem)
}

// writeServiceError maps workflow errors onto problem responses.
func (h *Handler) writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return writeError(c, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, services.ErrForbidden):
		return writeError(c, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, services.ErrInvalidStatus):
		return writeError(c, http.StatusBadRequest, "Invalid Status", err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		return writeError(c, http.StatusBadRequest, "Invalid Transition", err.Error())
	default:
		h.logger.Error("request failed", "path", c.Request().URL.Path, "error", err)
		return writeError(c, http.StatusInternalServerError, "Internal Server Error", "the request could not be completed")
	}
}
