package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatsync/internal/healthcheck"
)

type PingHandler struct {
	checker healthcheck.Checker
	logger  *slog.Logger
}

type healthResponse struct {
	Status string                    `json:"status"`
	Checks []healthcheck.CheckResult `json:"checks"`
}

// NewPingHandler creates the liveness and health endpoints. checker may be
// nil, in which case health only reports liveness.
func NewPingHandler(log *slog.Logger, checker healthcheck.Checker) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{checker: checker, logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.PingHead)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health godoc
// @Summary Dependency health
// @Tags system
// @Success 200 {object} healthResponse
// @Failure 503 {object} healthResponse
// @Router /health [get]
func (h *PingHandler) Health(c echo.Context) error {
	resp := h.evaluate(c)
	return c.JSON(statusForHealth(resp.Status), resp)
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(statusForHealth(h.evaluate(c).Status))
}

func (h *PingHandler) evaluate(c echo.Context) healthResponse {
	if h.checker == nil {
		return healthResponse{Status: healthcheck.StatusOK, Checks: []healthcheck.CheckResult{}}
	}
	checks := h.checker.ListChecks(c.Request().Context())
	return healthResponse{Status: healthcheck.Overall(checks), Checks: checks}
}

func statusForHealth(status string) int {
	if status == healthcheck.StatusError {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
