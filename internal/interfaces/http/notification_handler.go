package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stockledger-api/internal/application/dto"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// notificationInbox lo implementa *inventory.Dispatcher.
type notificationInbox interface {
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) (*entity.Notification, error)
}

// NotificationHandler bandeja de notificaciones del usuario autenticado.
type NotificationHandler struct {
	inbox notificationInbox
	log   zerolog.Logger
}

// NewNotificationHandler construye el handler.
func NewNotificationHandler(inbox notificationInbox, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, log: log}
}

// List godoc
// @Summary      Notificaciones del usuario
// @Tags         notifications
// @Security     Bearer
// @Produce      json
// @Param        unread  query  bool  false  "sólo las no leídas por el usuario"
// @Param        limit   query  int   false  "Límite (default 50)"
// @Param        offset  query  int   false  "Offset"
// @Success      200  {object}  dto.NotificationListResponse
// @Router       /api/notifications [get]
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userID := GetUserID(c)
	req := dto.ListNotificationsRequest{
		Unread:      c.QueryBool("unread", false),
		PageRequest: dto.PageRequest{Limit: c.QueryInt("limit", 0), Offset: c.QueryInt("offset", 0)},
	}
	if err := validateStruct(req); err != nil {
		return writeError(c, h.log, err)
	}
	req.DefaultPage()

	list, err := h.inbox.ListForUser(c.UserContext(), userID, req.Unread, req.Limit, req.Offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	items := make([]dto.NotificationResponse, 0, len(list))
	for _, n := range list {
		items = append(items, toNotificationResponse(n, userID))
	}
	return c.JSON(dto.NotificationListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: req.Limit, Offset: req.Offset},
	})
}

// MarkRead godoc
// @Summary      Marcar notificación como leída
// @Tags         notifications
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la notificación"
// @Success      200  {object}  dto.NotificationResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := pathID(c, "notificación")
	if err != nil {
		return writeError(c, h.log, err)
	}
	userID := GetUserID(c)
	n, err := h.inbox.MarkRead(c.UserContext(), id, userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toNotificationResponse(n, userID))
}
