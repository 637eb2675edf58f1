package repository

import (
	"context"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// ProductRepository puerto del catálogo de productos. TotalStock sólo se escribe desde el agregador.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	// GetForUpdate obtiene el producto bloqueando la fila (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, id string) (*entity.Product, error)
	ListActive(ctx context.Context) ([]*entity.Product, error)
	UpdateTotalStock(ctx context.Context, id string, total int) error
}
