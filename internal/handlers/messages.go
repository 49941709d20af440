package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/threadline/threadline/internal/auth"
	"github.com/threadline/threadline/internal/threads"
)

// MessagesHandler stores and lists thread messages. Storing a text message
// is what feeds the bot subscriber downstream.
type MessagesHandler struct {
	service *threads.Service
	logger  *slog.Logger
}

func NewMessagesHandler(log *slog.Logger, service *threads.Service) *MessagesHandler {
	return &MessagesHandler{
		service: service,
		logger:  log.With(slog.String("handler", "messages")),
	}
}

func (h *MessagesHandler) Register(e *echo.Echo) {
	g := e.Group("/api/threads/:thread_id/messages")
	g.POST("", h.Store)
	g.GET("", h.List)
}

func (h *MessagesHandler) Store(c echo.Context) error {
	ownerID, err := auth.OwnerIDFromContext(c)
	if err != nil {
		return err
	}

	var input threads.StoreMessageInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	input.ThreadID = threadIDParam(c)
	if input.SenderID == "" {
		input.SenderID = ownerID
	}
	// Bot authorship is reserved for handler replies.
	input.FromBot = false

	message, err := h.service.StoreMessage(c.Request().Context(), input)
	if err != nil {
		return threadError(err)
	}
	return c.JSON(http.StatusCreated, message)
}

func (h *MessagesHandler) List(c echo.Context) error {
	list, err := h.service.ListMessages(c.Request().Context(), threadIDParam(c))
	if err != nil {
		return threadError(err)
	}
	return c.JSON(http.StatusOK, list)
}
