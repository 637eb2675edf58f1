package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

var _ repository.BatchRepository = (*BatchRepo)(nil)

const batchColumns = `id, batch_number, product_id, supplier_id, transaction_id, stock, remaining_stock,
	expiry_date, purchase_date, cost_price, status, condition, created_by, created_at, updated_at`

// BatchRepo implementación de BatchRepository sobre PostgreSQL (usable con pool o tx).
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador de lotes. Pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

// Create inserta un lote. Un número de lote repetido se reporta como conflicto de concurrencia
// (otra compra tomó el mismo consecutivo) para que la operación se reintente.
func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		b.ID, b.BatchNumber, b.ProductID, nullIfEmpty(b.SupplierID), nullIfEmpty(b.TransactionID),
		b.Stock, b.RemainingStock, b.ExpiryDate, b.PurchaseDate, b.CostPrice,
		b.Status, b.Condition, b.CreatedBy, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("número de lote %s en uso: %w", b.BatchNumber, domain.ErrConcurrencyConflict)
		}
		return storeError("insert batch", err)
	}
	return nil
}

// GetByID obtiene un lote por ID; nil si no existe.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*entity.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1`
	b, err := scanBatch(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("get batch", err)
	}
	return b, nil
}

// ListEligible lotes consumibles en now, en orden FIFO como referencia.
func (r *BatchRepo) ListEligible(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE product_id = $1 AND remaining_stock > 0
		  AND status = 'active' AND condition = 'good' AND expiry_date > $2
		ORDER BY purchase_date, created_at, id`
	return r.list(ctx, "list eligible batches", query, productID, now)
}

// ListRestockable lotes activos, en buen estado y sin vencer, del más reciente al más antiguo.
// Un lote vencido pero aún no barrido no recibe devoluciones.
func (r *BatchRepo) ListRestockable(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	query := `
		SELECT ` + batchColumns + `
		FROM batches
		WHERE product_id = $1 AND status = 'active' AND condition = 'good' AND expiry_date > $2
		ORDER BY created_at DESC, id DESC`
	return r.list(ctx, "list restockable batches", query, productID, now)
}

// ListByProduct todos los lotes del producto.
func (r *BatchRepo) ListByProduct(ctx context.Context, productID string) ([]*entity.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE product_id = $1 ORDER BY purchase_date, created_at, id`
	return r.list(ctx, "list batches by product", query, productID)
}

// ListByTransaction lotes creados por una compra.
func (r *BatchRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*entity.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE transaction_id = $1 ORDER BY created_at, id`
	return r.list(ctx, "list batches by transaction", query, transactionID)
}

// ConditionalDecrement descuenta sólo si el lote sigue elegible y alcanza; nunca deja remanente negativo.
func (r *BatchRepo) ConditionalDecrement(ctx context.Context, batchID string, qty int, now time.Time) (bool, error) {
	query := `
		UPDATE batches
		SET remaining_stock = remaining_stock - $2, updated_at = now()
		WHERE id = $1 AND remaining_stock >= $2
		  AND status = 'active' AND condition = 'good' AND expiry_date > $3`
	tag, err := r.q.Exec(ctx, query, batchID, qty, now)
	if err != nil {
		return false, storeError("decrement batch", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Increment suma qty sin superar stock.
func (r *BatchRepo) Increment(ctx context.Context, batchID string, qty int) (bool, error) {
	query := `
		UPDATE batches
		SET remaining_stock = remaining_stock + $2, updated_at = now()
		WHERE id = $1 AND remaining_stock + $2 <= stock`
	tag, err := r.q.Exec(ctx, query, batchID, qty)
	if err != nil {
		return false, storeError("increment batch", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ForceDecrement resta qty sin exigir elegibilidad.
func (r *BatchRepo) ForceDecrement(ctx context.Context, batchID string, qty int) (bool, error) {
	query := `
		UPDATE batches
		SET remaining_stock = remaining_stock - $2, updated_at = now()
		WHERE id = $1 AND remaining_stock >= $2`
	tag, err := r.q.Exec(ctx, query, batchID, qty)
	if err != nil {
		return false, storeError("force decrement batch", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SumRemaining suma el remanente de todos los lotes del producto, incluidos inactivos y vencidos.
func (r *BatchRepo) SumRemaining(ctx context.Context, productID string) (int, error) {
	var total int
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(remaining_stock), 0) FROM batches WHERE product_id = $1`, productID).Scan(&total)
	if err != nil {
		return 0, storeError("sum remaining stock", err)
	}
	return total, nil
}

// ExpireDue vence en una sola sentencia los lotes good con expiry_date <= now y devuelve los afectados.
func (r *BatchRepo) ExpireDue(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	query := `
		UPDATE batches
		SET condition = 'expired', status = 'inactive', updated_at = now()
		WHERE condition = 'good' AND expiry_date <= $1`
	args := []any{now}
	if productID != "" {
		query += ` AND product_id = $2`
		args = append(args, productID)
	}
	query += ` RETURNING ` + batchColumns
	return r.list(ctx, "expire due batches", query, args...)
}

// SetStatus cambia el estado manual del lote.
func (r *BatchRepo) SetStatus(ctx context.Context, batchID, status string) error {
	tag, err := r.q.Exec(ctx, `UPDATE batches SET status = $2, updated_at = now() WHERE id = $1`, batchID, status)
	if err != nil {
		return storeError("set batch status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("lote", batchID)
	}
	return nil
}

// DeleteByTransaction elimina los lotes creados por una compra (corrección de compra).
func (r *BatchRepo) DeleteByTransaction(ctx context.Context, transactionID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM batches WHERE transaction_id = $1`, transactionID); err != nil {
		return storeError("delete batches by transaction", err)
	}
	return nil
}

// NextSequence siguiente consecutivo del día para el producto (máximo usado + 1).
func (r *BatchRepo) NextSequence(ctx context.Context, productID string, day time.Time) (int, error) {
	prefix := inventory.BatchNumberPrefix(productID, day)
	query := `
		SELECT COALESCE(MAX(substr(batch_number, $2::int)::int), 0)
		FROM batches
		WHERE product_id = $1 AND batch_number LIKE $3`
	var last int
	if err := r.q.QueryRow(ctx, query, productID, len(prefix)+1, prefix+"%").Scan(&last); err != nil {
		return 0, storeError("next batch sequence", err)
	}
	return last + 1, nil
}

func (r *BatchRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Batch, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, storeError(op, err)
	}
	defer rows.Close()

	out := make([]*entity.Batch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, storeError(op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(op, err)
	}
	return out, nil
}

func scanBatch(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	var supplierID, transactionID *string
	err := row.Scan(
		&b.ID, &b.BatchNumber, &b.ProductID, &supplierID, &transactionID, &b.Stock, &b.RemainingStock,
		&b.ExpiryDate, &b.PurchaseDate, &b.CostPrice, &b.Status, &b.Condition, &b.CreatedBy,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.SupplierID = derefString(supplierID)
	b.TransactionID = derefString(transactionID)
	return &b, nil
}
