package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// NotificationRepository puerto de persistencia de notificaciones y sus lecturas.
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id string) (*entity.Notification, error)
	// AddRead registra la lectura de userID (idempotente) y recalcula is_read en la misma operación.
	// Devuelve el valor resultante de is_read.
	AddRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error)
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*entity.Notification, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
