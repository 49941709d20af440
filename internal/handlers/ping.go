package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type PingHandler struct {
	logger *slog.Logger
}

func NewPingHandler(log *slog.Logger) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.GET("/health", h.Ping)
	e.HEAD("/health", h.Head)
}

func (h *PingHandler) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "threadline",
		"version": Version,
	})
}

func (h *PingHandler) Head(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
