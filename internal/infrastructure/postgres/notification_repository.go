package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

var _ repository.NotificationRepository = (*NotificationRepo)(nil)

const notificationColumns = `id, message, type, related_entity, entity_type, recipients, is_read, created_by, created_at`

// NotificationRepo implementación de NotificationRepository sobre PostgreSQL.
// Las lecturas viven en notification_reads (una fila por usuario).
type NotificationRepo struct {
	q Querier
}

// NewNotificationRepository construye el adaptador de notificaciones.
func NewNotificationRepository(q Querier) *NotificationRepo {
	return &NotificationRepo{q: q}
}

// Create inserta la notificación con sus destinatarios ya resueltos.
func (r *NotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	recipients := n.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		n.ID, n.Message, n.Type, n.RelatedEntity, n.EntityType, recipients, n.IsRead, n.CreatedBy, n.CreatedAt,
	)
	if err != nil {
		return domain.NewPersistenceError("insert notification", err)
	}
	return nil
}

// GetByID obtiene la notificación con sus lecturas; nil si no existe.
func (r *NotificationRepo) GetByID(ctx context.Context, id string) (*entity.Notification, error) {
	n, err := scanNotification(r.q.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.NewPersistenceError("get notification", err)
	}
	if err := r.loadReads(ctx, []*entity.Notification{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// AddRead registra la lectura (idempotente) y recalcula is_read: verdadero cuando todos
// los destinatarios originales tienen lectura.
func (r *NotificationRepo) AddRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO notification_reads (notification_id, user_id, read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (notification_id, user_id) DO NOTHING`, notificationID, userID, at)
	if err != nil {
		return false, domain.NewPersistenceError("insert notification read", err)
	}

	var isRead bool
	err = r.q.QueryRow(ctx, `
		UPDATE notifications n
		SET is_read = cardinality(n.recipients) > 0 AND NOT EXISTS (
			SELECT 1 FROM unnest(n.recipients) AS rc(user_id)
			WHERE rc.user_id NOT IN (SELECT nr.user_id FROM notification_reads nr WHERE nr.notification_id = n.id)
		)
		WHERE n.id = $1
		RETURNING n.is_read`, notificationID).Scan(&isRead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.NewNotFoundError("notificación", notificationID)
		}
		return false, domain.NewPersistenceError("update notification is_read", err)
	}
	return isRead, nil
}

// ListForUser notificaciones dirigidas a userID; unreadOnly excluye las que ese usuario ya leyó.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]*entity.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications n
		WHERE $1 = ANY(n.recipients)
		  AND (NOT $2 OR NOT EXISTS (
			SELECT 1 FROM notification_reads nr WHERE nr.notification_id = n.id AND nr.user_id = $1))
		ORDER BY n.created_at DESC, n.id
		LIMIT $3 OFFSET $4`
	rows, err := r.q.Query(ctx, query, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, domain.NewPersistenceError("list notifications", err)
	}
	out := make([]*entity.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			rows.Close()
			return nil, domain.NewPersistenceError("scan notification", err)
		}
		out = append(out, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list notifications", err)
	}
	if err := r.loadReads(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOlderThan elimina las notificaciones creadas antes de cutoff (las lecturas caen en cascada).
func (r *NotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, domain.NewPersistenceError("delete old notifications", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepo) loadReads(ctx context.Context, list []*entity.Notification) error {
	if len(list) == 0 {
		return nil
	}
	byID := make(map[string]*entity.Notification, len(list))
	ids := make([]string, 0, len(list))
	for _, n := range list {
		byID[n.ID] = n
		ids = append(ids, n.ID)
	}
	rows, err := r.q.Query(ctx, `
		SELECT notification_id, user_id, read_at
		FROM notification_reads WHERE notification_id = ANY($1::uuid[])
		ORDER BY read_at, user_id`, ids)
	if err != nil {
		return domain.NewPersistenceError("load notification reads", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var rd entity.NotificationRead
		if err := rows.Scan(&id, &rd.UserID, &rd.ReadAt); err != nil {
			return domain.NewPersistenceError("scan notification read", err)
		}
		byID[id].ReadBy = append(byID[id].ReadBy, rd)
	}
	if err := rows.Err(); err != nil {
		return domain.NewPersistenceError("load notification reads", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (*entity.Notification, error) {
	var n entity.Notification
	err := row.Scan(&n.ID, &n.Message, &n.Type, &n.RelatedEntity, &n.EntityType, &n.Recipients, &n.IsRead, &n.CreatedBy, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
