package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// BatchRepository puerto de persistencia de lotes. Las implementaciones pueden estar atadas a una tx.
type BatchRepository interface {
	Create(ctx context.Context, b *entity.Batch) error
	GetByID(ctx context.Context, id string) (*entity.Batch, error)
	// ListEligible devuelve los lotes consumibles del producto en now (sin orden garantizado).
	ListEligible(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error)
	// ListRestockable devuelve los lotes activos, en buen estado y sin vencer en now,
	// del más reciente al más antiguo.
	ListRestockable(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error)
	ListByProduct(ctx context.Context, productID string) ([]*entity.Batch, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*entity.Batch, error)
	// ConditionalDecrement descuenta qty sólo si el lote sigue elegible y tiene remanente suficiente.
	// Devuelve false si ninguna fila cumplió la condición.
	ConditionalDecrement(ctx context.Context, batchID string, qty int, now time.Time) (bool, error)
	// Increment suma qty sin superar la cantidad original del lote. Devuelve false si no cabe.
	Increment(ctx context.Context, batchID string, qty int) (bool, error)
	// ForceDecrement resta qty sin condición de elegibilidad (reversa de devoluciones); nunca deja remanente negativo.
	ForceDecrement(ctx context.Context, batchID string, qty int) (bool, error)
	SumRemaining(ctx context.Context, productID string) (int, error)
	// ExpireDue marca expired/inactive los lotes en buen estado vencidos a now y devuelve los afectados.
	// productID vacío aplica a todos los productos.
	ExpireDue(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error)
	SetStatus(ctx context.Context, batchID, status string) error
	DeleteByTransaction(ctx context.Context, transactionID string) error
	// NextSequence devuelve el siguiente consecutivo diario para el número de lote del producto.
	NextSequence(ctx context.Context, productID string, day time.Time) (int, error)
}
