package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

var _ repository.ProductRepository = (*ProductRepo)(nil)

const productColumns = `id, name, category, status, total_stock, created_at, updated_at`

// ProductRepo implementación de ProductRepository sobre PostgreSQL (usable con pool o tx).
type ProductRepo struct {
	q Querier
}

// NewProductRepository construye el adaptador de productos. Pasar pool o tx (Querier).
func NewProductRepository(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

// GetByID obtiene un producto por ID; nil si no existe.
func (r *ProductRepo) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// GetForUpdate obtiene el producto y bloquea la fila (SELECT FOR UPDATE).
func (r *ProductRepo) GetForUpdate(ctx context.Context, id string) (*entity.Product, error) {
	return r.get(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProductRepo) get(ctx context.Context, query, id string) (*entity.Product, error) {
	var p entity.Product
	err := r.q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Category, &p.Status, &p.TotalStock, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.NewPersistenceError("get product", err)
	}
	return &p, nil
}

// ListActive lista los productos activos ordenados por nombre.
func (r *ProductRepo) ListActive(ctx context.Context) ([]*entity.Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE status = 'active' ORDER BY name, id`)
	if err != nil {
		return nil, domain.NewPersistenceError("list active products", err)
	}
	defer rows.Close()

	out := make([]*entity.Product, 0)
	for rows.Next() {
		var p entity.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Status, &p.TotalStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, domain.NewPersistenceError("scan product", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list active products", err)
	}
	return out, nil
}

// UpdateTotalStock escribe la caché de stock del producto.
func (r *ProductRepo) UpdateTotalStock(ctx context.Context, id string, total int) error {
	tag, err := r.q.Exec(ctx, `UPDATE products SET total_stock = $2, updated_at = now() WHERE id = $1`, id, total)
	if err != nil {
		return domain.NewPersistenceError("update total stock", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("producto", id)
	}
	return nil
}
