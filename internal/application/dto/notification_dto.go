package dto

import "time"

// ListNotificationsRequest filtros de GET /api/notifications.
type ListNotificationsRequest struct {
	Unread bool `query:"unread"`
	PageRequest
}

// NotificationReadResponse lectura registrada.
type NotificationReadResponse struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// NotificationResponse notificación vista por un destinatario.
type NotificationResponse struct {
	ID            string                     `json:"id"`
	Message       string                     `json:"message"`
	Type          string                     `json:"type"`
	RelatedEntity string                     `json:"related_entity"`
	EntityType    string                     `json:"entity_type"`
	IsRead        bool                       `json:"is_read"`
	ReadByMe      bool                       `json:"read_by_me"`
	ReadBy        []NotificationReadResponse `json:"read_by"`
	CreatedBy     string                     `json:"created_by,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// NotificationListResponse lista paginada de notificaciones.
type NotificationListResponse struct {
	Items []NotificationResponse `json:"items"`
	Page  PageResponse           `json:"page"`
}
