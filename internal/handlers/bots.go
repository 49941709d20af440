package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/threadline/threadline/internal/auth"
	"github.com/threadline/threadline/internal/bots"
	"github.com/threadline/threadline/internal/threads"
)

// BotsHandler exposes bot and bot action management plus the per-thread
// listing of attachable handlers.
type BotsHandler struct {
	bots     *bots.Service
	threads  *threads.Service
	registry *bots.Registry
	logger   *slog.Logger
}

type handlerInfo struct {
	Alias       string   `json:"alias"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Unique      bool     `json:"unique"`
	Match       string   `json:"match,omitempty"`
	Triggers    []string `json:"triggers,omitempty"`
}

func NewBotsHandler(log *slog.Logger, botService *bots.Service, threadService *threads.Service, registry *bots.Registry) *BotsHandler {
	return &BotsHandler{
		bots:     botService,
		threads:  threadService,
		registry: registry,
		logger:   log.With(slog.String("handler", "bots")),
	}
}

func (h *BotsHandler) Register(e *echo.Echo) {
	e.POST("/api/threads/:thread_id/bots", h.CreateBot)
	e.GET("/api/threads/:thread_id/bots", h.ListBots)
	e.GET("/api/threads/:thread_id/handlers", h.AvailableHandlers)

	e.GET("/api/bots/:bot_id", h.GetBot)
	e.DELETE("/api/bots/:bot_id", h.RemoveBot)
	e.POST("/api/bots/:bot_id/actions", h.StoreAction)
	e.GET("/api/bots/:bot_id/actions", h.ListActions)

	e.GET("/api/actions/:action_id", h.GetAction)
	e.PUT("/api/actions/:action_id", h.UpdateAction)
	e.DELETE("/api/actions/:action_id", h.RemoveAction)
}

func (h *BotsHandler) CreateBot(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	threadID := threadIDParam(c)

	thread, err := h.threads.GetThread(c.Request().Context(), threadID)
	if err != nil {
		return threadError(err)
	}
	if !thread.HasBotsFeature() {
		return echo.NewHTTPError(http.StatusForbidden, "thread does not allow bots")
	}

	var req bots.CreateBotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	bot, err := h.bots.CreateBot(c.Request().Context(), threadID, ownerID, req)
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusCreated, bot)
}

func (h *BotsHandler) ListBots(c echo.Context) error {
	list, err := h.bots.ListBots(c.Request().Context(), threadIDParam(c))
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *BotsHandler) GetBot(c echo.Context) error {
	bot, err := h.bots.GetBot(c.Request().Context(), botIDParam(c))
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, bot)
}

func (h *BotsHandler) RemoveBot(c echo.Context) error {
	if err := h.bots.RemoveBot(c.Request().Context(), botIDParam(c)); err != nil {
		return botError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BotsHandler) StoreAction(c echo.Context) error {
	data := map[string]any{}
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	action, err := h.bots.StoreAction(c.Request().Context(), botIDParam(c), data)
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusCreated, action)
}

func (h *BotsHandler) ListActions(c echo.Context) error {
	list, err := h.bots.ListActions(c.Request().Context(), botIDParam(c))
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *BotsHandler) GetAction(c echo.Context) error {
	action, err := h.bots.GetAction(c.Request().Context(), actionIDParam(c))
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, action)
}

func (h *BotsHandler) UpdateAction(c echo.Context) error {
	data := map[string]any{}
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	action, err := h.bots.UpdateAction(c.Request().Context(), actionIDParam(c), data)
	if err != nil {
		return botError(err)
	}
	return c.JSON(http.StatusOK, action)
}

func (h *BotsHandler) RemoveAction(c echo.Context) error {
	if err := h.bots.RemoveAction(c.Request().Context(), actionIDParam(c)); err != nil {
		return botError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AvailableHandlers lists the handlers the caller may attach to the thread.
func (h *BotsHandler) AvailableHandlers(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}
	thread, err := h.threads.GetThread(c.Request().Context(), threadIDParam(c))
	if err != nil {
		return threadError(err)
	}

	defs := h.registry.Authorized(c.Request().Context(), thread, ownerID)
	out := make([]handlerInfo, 0, len(defs))
	for _, def := range defs {
		info := handlerInfo{
			Alias:       def.Alias,
			Name:        def.Name,
			Description: def.Description,
			Unique:      def.Unique,
			Triggers:    def.Triggers,
		}
		if def.Match != "" {
			info.Match = def.Match.String()
		}
		out = append(out, info)
	}
	return c.JSON(http.StatusOK, out)
}

func botIDParam(c echo.Context) string {
	return strings.TrimSpace(c.Param("bot_id"))
}

func actionIDParam(c echo.Context) string {
	return strings.TrimSpace(c.Param("action_id"))
}

func botError(err error) error {
	var verr *bots.ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"message": "validation failed",
			"errors":  verr.Fields,
		})
	}
	if errors.Is(err, bots.ErrInvalidHandler) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if errors.Is(err, bots.ErrHandlerTaken) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if errors.Is(err, bots.ErrBotNotFound) || errors.Is(err, bots.ErrActionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
