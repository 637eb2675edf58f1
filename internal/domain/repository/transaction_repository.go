package repository

import (
	"context"
	"time"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// TransactionFilter filtros de listado de transacciones.
type TransactionFilter struct {
	Type   string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// TransactionRepository puerto de persistencia de transacciones (ítems y lotes usados incluidos).
type TransactionRepository interface {
	Create(ctx context.Context, t *entity.Transaction) error
	GetByID(ctx context.Context, id string) (*entity.Transaction, error)
	// GetForUpdate obtiene la transacción bloqueando la fila (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, id string) (*entity.Transaction, error)
	// Update reescribe ítems, lotes usados, total y notas; conserva OrderNumber.
	Update(ctx context.Context, t *entity.Transaction) error
	List(ctx context.Context, f TransactionFilter) ([]*entity.Transaction, error)
	ExistsOrderNumber(ctx context.Context, orderNumber string) (bool, error)
}
