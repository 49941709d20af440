package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/threadline/threadline/internal/auth"
	"github.com/threadline/threadline/internal/threads"
)

// ThreadsHandler exposes thread and participant management.
type ThreadsHandler struct {
	service *threads.Service
	logger  *slog.Logger
}

type participantPayload struct {
	OwnerID string `json:"owner_id"`
	Admin   bool   `json:"admin"`
}

type chatBotsPayload struct {
	Enabled bool `json:"enabled"`
}

func NewThreadsHandler(log *slog.Logger, service *threads.Service) *ThreadsHandler {
	return &ThreadsHandler{
		service: service,
		logger:  log.With(slog.String("handler", "threads")),
	}
}

func (h *ThreadsHandler) Register(e *echo.Echo) {
	g := e.Group("/api/threads")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:thread_id", h.Get)
	g.POST("/:thread_id/archive", h.Archive)
	g.PUT("/:thread_id/bots", h.SetChatBots)
	g.POST("/:thread_id/participants", h.AddParticipant)
	g.GET("/:thread_id/participants", h.ListParticipants)
}

func (h *ThreadsHandler) Create(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}

	var input threads.CreateThreadInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	thread, err := h.service.CreateThread(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, err := h.service.AddParticipant(c.Request().Context(), thread.ID, ownerID, true); err != nil {
		h.logger.Error("add creator participant", slog.String("thread_id", thread.ID), slog.Any("error", err))
	}
	return c.JSON(http.StatusCreated, thread)
}

func (h *ThreadsHandler) List(c echo.Context) error {
	list, err := h.service.ListThreads(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ThreadsHandler) Get(c echo.Context) error {
	thread, err := h.service.GetThread(c.Request().Context(), threadIDParam(c))
	if err != nil {
		return threadError(err)
	}
	return c.JSON(http.StatusOK, thread)
}

func (h *ThreadsHandler) Archive(c echo.Context) error {
	threadID := threadIDParam(c)
	if err := h.requireThreadAdmin(c, threadID); err != nil {
		return err
	}
	if err := h.service.ArchiveThread(c.Request().Context(), threadID); err != nil {
		return threadError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ThreadsHandler) SetChatBots(c echo.Context) error {
	threadID := threadIDParam(c)
	if err := h.requireThreadAdmin(c, threadID); err != nil {
		return err
	}

	var payload chatBotsPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetChatBots(c.Request().Context(), threadID, payload.Enabled); err != nil {
		return threadError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ThreadsHandler) AddParticipant(c echo.Context) error {
	threadID := threadIDParam(c)
	if err := h.requireThreadAdmin(c, threadID); err != nil {
		return err
	}

	var payload participantPayload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(payload.OwnerID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "owner_id is required")
	}

	participant, err := h.service.AddParticipant(c.Request().Context(), threadID, payload.OwnerID, payload.Admin)
	if err != nil {
		return threadError(err)
	}
	return c.JSON(http.StatusCreated, participant)
}

func (h *ThreadsHandler) ListParticipants(c echo.Context) error {
	list, err := h.service.ListParticipants(c.Request().Context(), threadIDParam(c))
	if err != nil {
		return threadError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *ThreadsHandler) requireThreadAdmin(c echo.Context, threadID string) error {
	if auth.IsAdminFromContext(c) {
		return nil
	}
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	admin, err := h.service.IsAdmin(c.Request().Context(), threadID, ownerID)
	if err != nil {
		return threadError(err)
	}
	if !admin {
		return echo.NewHTTPError(http.StatusForbidden, "thread admin required")
	}
	return nil
}

func threadIDParam(c echo.Context) string {
	return strings.TrimSpace(c.Param("thread_id"))
}

func threadError(err error) error {
	if errors.Is(err, threads.ErrThreadNotFound) || errors.Is(err, threads.ErrMessageNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, threads.ErrNotParticipant) {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
