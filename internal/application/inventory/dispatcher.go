package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// NotifyInput datos para emitir una notificación.
type NotifyInput struct {
	Message        string
	Type           string
	RelatedEntity  string
	EntityType     string
	RecipientRoles []string // vacío => ADMIN y STAFF
	CreatedBy      string
}

// Dispatcher crea notificaciones y gestiona sus lecturas.
type Dispatcher struct {
	notifRepo repository.NotificationRepository
	userRepo  repository.UserRepository
	metrics   Metrics
	now       func() time.Time
	log       zerolog.Logger
}

// NewDispatcher construye el despachador.
func NewDispatcher(notifRepo repository.NotificationRepository, userRepo repository.UserRepository, metrics Metrics, log zerolog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Dispatcher{
		notifRepo: notifRepo,
		userRepo:  userRepo,
		metrics:   metrics,
		now:       time.Now,
		log:       log,
	}
}

// WithClock reemplaza el reloj.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Notify resuelve los roles a usuarios en este momento y guarda la notificación.
func (d *Dispatcher) Notify(ctx context.Context, in NotifyInput) (*entity.Notification, error) {
	if strings.TrimSpace(in.Message) == "" {
		return nil, domain.NewValidationError("message", "el mensaje es obligatorio")
	}
	switch in.Type {
	case entity.NotificationTypeExpiry, entity.NotificationTypeLowStock, entity.NotificationTypeSystem, entity.NotificationTypeError:
	default:
		return nil, domain.NewValidationError("type", "tipo de notificación inválido")
	}
	switch in.EntityType {
	case "", entity.EntityTypeProduct, entity.EntityTypeBatch, entity.EntityTypeTransaction:
	default:
		return nil, domain.NewValidationError("entityType", "tipo de entidad inválido")
	}

	roles := in.RecipientRoles
	if len(roles) == 0 {
		roles = entity.StaffRoles
	}
	recipients, err := d.userRepo.ListIDsByRoles(ctx, roles)
	if err != nil {
		return nil, err
	}

	n := &entity.Notification{
		ID:            uuid.New().String(),
		Message:       in.Message,
		Type:          in.Type,
		RelatedEntity: in.RelatedEntity,
		EntityType:    in.EntityType,
		Recipients:    recipients,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     d.now(),
	}
	if err := d.notifRepo.Create(ctx, n); err != nil {
		return nil, err
	}
	d.metrics.ObserveNotification(n.Type)
	d.log.Debug().Str("notification_id", n.ID).Str("type", n.Type).Int("recipients", len(recipients)).Msg("notificación creada")
	return n, nil
}

// MarkRead registra la lectura de userID. Sólo los destinatarios originales pueden marcarla.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userID string) (*entity.Notification, error) {
	n, err := d.notifRepo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, domain.NewNotFoundError("notificación", notificationID)
	}
	if !n.IsRecipient(userID) {
		return nil, domain.ErrForbidden
	}
	if n.HasRead(userID) {
		return n, nil
	}
	at := d.now()
	isRead, err := d.notifRepo.AddRead(ctx, notificationID, userID, at)
	if err != nil {
		return nil, err
	}
	n.MarkRead(userID, at)
	n.IsRead = isRead
	return n, nil
}

// ListForUser lista las notificaciones dirigidas a userID, las más recientes primero.
func (d *Dispatcher) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*entity.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return d.notifRepo.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

// Cleanup elimina las notificaciones con más antigüedad que olderThan.
func (d *Dispatcher) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := d.now().Add(-olderThan)
	n, err := d.notifRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("notificaciones antiguas eliminadas")
	}
	return n, nil
}
