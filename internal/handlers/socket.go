package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/threadline/threadline/internal/broadcast"
	"github.com/threadline/threadline/internal/threads"
)

// SocketHandler upgrades clients onto the per-thread broadcast socket.
type SocketHandler struct {
	hub     *broadcast.Hub
	threads *threads.Service
	logger  *slog.Logger
}

func NewSocketHandler(log *slog.Logger, hub *broadcast.Hub, threadService *threads.Service) *SocketHandler {
	return &SocketHandler{
		hub:     hub,
		threads: threadService,
		logger:  log.With(slog.String("handler", "socket")),
	}
}

func (h *SocketHandler) Register(e *echo.Echo) {
	e.GET("/api/threads/:thread_id/socket", h.Serve)
}

func (h *SocketHandler) Serve(c echo.Context) error {
	threadID := threadIDParam(c)
	if _, err := h.threads.GetThread(c.Request().Context(), threadID); err != nil {
		return threadError(err)
	}
	if err := h.hub.Serve(c.Response(), c.Request(), threadID); err != nil {
		h.logger.Debug("socket closed", slog.String("thread_id", threadID), slog.Any("error", err))
	}
	return nil
}
