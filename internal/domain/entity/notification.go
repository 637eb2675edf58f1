package entity

import "time"

// Tipos de notificación.
const (
	NotificationTypeExpiry   = "EXPIRY"
	NotificationTypeLowStock = "LOW_STOCK"
	NotificationTypeSystem   = "SYSTEM"
	NotificationTypeError    = "ERROR"
)

// Tipos de entidad relacionada (referencia polimórfica).
const (
	EntityTypeProduct     = "Product"
	EntityTypeBatch       = "ProductBatch"
	EntityTypeTransaction = "Transaction"
)

// NotificationRead marca de lectura de un destinatario.
type NotificationRead struct {
	UserID string
	ReadAt time.Time
}

// Notification evento del sistema dirigido a usuarios resueltos por rol al momento de crearla.
type Notification struct {
	ID            string
	Message       string
	Type          string
	RelatedEntity string
	EntityType    string
	Recipients    []string
	ReadBy        []NotificationRead
	IsRead        bool
	CreatedBy     string
	CreatedAt     time.Time
}

// IsRecipient indica si userID figura entre los destinatarios originales.
func (n *Notification) IsRecipient(userID string) bool {
	for _, r := range n.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}

// HasRead indica si userID ya registró lectura.
func (n *Notification) HasRead(userID string) bool {
	for _, r := range n.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MarkRead registra la lectura de userID (idempotente) y recalcula IsRead:
// verdadero sólo cuando todos los destinatarios originales leyeron.
func (n *Notification) MarkRead(userID string, at time.Time) {
	if !n.HasRead(userID) {
		n.ReadBy = append(n.ReadBy, NotificationRead{UserID: userID, ReadAt: at})
	}
	n.IsRead = n.allRead()
}

func (n *Notification) allRead() bool {
	if len(n.Recipients) == 0 {
		return false
	}
	for _, r := range n.Recipients {
		if !n.HasRead(r) {
			return false
		}
	}
	return true
}
