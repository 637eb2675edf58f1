package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados y condiciones de lote.
const (
	BatchStatusActive   = "active"
	BatchStatusInactive = "inactive"

	BatchConditionGood    = "good"
	BatchConditionExpired = "expired"
)

// Batch representa un lote recibido en una compra: cantidad original, remanente y vencimiento propios.
// Invariante: 0 <= RemainingStock <= Stock.
type Batch struct {
	ID             string
	BatchNumber    string
	ProductID      string
	SupplierID     string
	TransactionID  string // compra (PURCHASE) que originó el lote
	Stock          int
	RemainingStock int
	ExpiryDate     time.Time
	PurchaseDate   time.Time
	CostPrice      decimal.Decimal
	Status         string
	Condition      string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpiredAt indica si el lote venció en el instante now (vencimiento <= now).
func (b *Batch) IsExpiredAt(now time.Time) bool {
	return !b.ExpiryDate.After(now)
}

// IsEligibleAt indica si el lote puede consumirse en now: activo, en buen estado, con remanente y sin vencer.
func (b *Batch) IsEligibleAt(now time.Time) bool {
	return b.RemainingStock > 0 &&
		b.Status == BatchStatusActive &&
		b.Condition == BatchConditionGood &&
		!b.IsExpiredAt(now)
}

// Headroom devuelve cuántas unidades caben todavía en el lote sin superar Stock.
func (b *Batch) Headroom() int {
	return b.Stock - b.RemainingStock
}

// IsUntouched indica que el lote no fue consumido desde su creación.
func (b *Batch) IsUntouched() bool {
	return b.RemainingStock == b.Stock
}
