package repository

import (
	"context"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// SupplierRepository directorio de proveedores (sólo lectura).
type SupplierRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Supplier, error)
}
