package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

var _ repository.TransactionRepository = (*TransactionRepo)(nil)

const transactionColumns = `id, order_number, type, return_kind, total_amount, supplier_id, notes,
	transaction_date, created_by, created_at, updated_at`

// TransactionRepo implementación de TransactionRepository sobre PostgreSQL (usable con pool o tx).
// Los ítems y los lotes usados viven en transaction_items y transaction_batches.
type TransactionRepo struct {
	q Querier
}

// NewTransactionRepository construye el adaptador de transacciones. Pasar pool o tx (Querier).
func NewTransactionRepository(q Querier) *TransactionRepo {
	return &TransactionRepo{q: q}
}

// Create inserta la transacción con sus ítems y lotes usados.
// Un número de orden repetido indica una carrera con otra tx y se reporta como conflicto de concurrencia.
func (r *TransactionRepo) Create(ctx context.Context, t *entity.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, query,
		t.ID, t.OrderNumber, t.Type, nullIfEmpty(t.ReturnKind), t.TotalAmount, nullIfEmpty(t.SupplierID),
		t.Notes, t.TransactionDate, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("número de orden %s en uso: %w", t.OrderNumber, domain.ErrConcurrencyConflict)
		}
		return domain.NewPersistenceError("insert transaction", err)
	}
	return r.insertLines(ctx, t)
}

// Update reescribe ítems, lotes usados, total, proveedor, notas y fecha. OrderNumber no cambia.
func (r *TransactionRepo) Update(ctx context.Context, t *entity.Transaction) error {
	query := `
		UPDATE transactions
		SET total_amount = $2, supplier_id = $3, notes = $4, transaction_date = $5, updated_at = $6
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, t.ID, t.TotalAmount, nullIfEmpty(t.SupplierID), t.Notes, t.TransactionDate, t.UpdatedAt)
	if err != nil {
		return domain.NewPersistenceError("update transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("transacción", t.ID)
	}
	b := &pgx.Batch{}
	b.Queue(`DELETE FROM transaction_items WHERE transaction_id = $1`, t.ID)
	b.Queue(`DELETE FROM transaction_batches WHERE transaction_id = $1`, t.ID)
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return domain.NewPersistenceError("clear transaction lines", err)
	}
	return r.insertLines(ctx, t)
}

func (r *TransactionRepo) insertLines(ctx context.Context, t *entity.Transaction) error {
	b := &pgx.Batch{}
	for i, it := range t.Items {
		b.Queue(`
			INSERT INTO transaction_items (transaction_id, line, product_id, quantity, unit_price, expiry_date)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, i+1, it.ProductID, it.Quantity, it.UnitPrice, it.ExpiryDate)
	}
	for i, u := range t.BatchesUsed {
		b.Queue(`
			INSERT INTO transaction_batches (transaction_id, line, batch_id, product_id, quantity_used)
			VALUES ($1, $2, $3, $4, $5)`,
			t.ID, i+1, u.BatchID, u.ProductID, u.QuantityUsed)
	}
	if b.Len() == 0 {
		return nil
	}
	if err := r.q.SendBatch(ctx, b).Close(); err != nil {
		return domain.NewPersistenceError("insert transaction lines", err)
	}
	return nil
}

// GetByID obtiene una transacción completa; nil si no existe.
func (r *TransactionRepo) GetByID(ctx context.Context, id string) (*entity.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

// GetForUpdate igual que GetByID bloqueando la fila (SELECT FOR UPDATE).
func (r *TransactionRepo) GetForUpdate(ctx context.Context, id string) (*entity.Transaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (r *TransactionRepo) getOne(ctx context.Context, query, id string) (*entity.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.NewPersistenceError("get transaction", err)
	}
	if err := r.loadLines(ctx, []*entity.Transaction{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// List filtra por tipo y rango de fechas (inclusive), las más recientes primero.
func (r *TransactionRepo) List(ctx context.Context, f repository.TransactionFilter) ([]*entity.Transaction, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.From != nil {
		add("transaction_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("transaction_date <= $%d", *f.To)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY transaction_date DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewPersistenceError("list transactions", err)
	}
	out := make([]*entity.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, domain.NewPersistenceError("scan transaction", err)
		}
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list transactions", err)
	}
	if err := r.loadLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExistsOrderNumber indica si la referencia ya está tomada.
func (r *TransactionRepo) ExistsOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE order_number = $1)`, orderNumber).Scan(&exists)
	if err != nil {
		return false, domain.NewPersistenceError("check order number", err)
	}
	return exists, nil
}

// loadLines completa Items y BatchesUsed de las transacciones dadas con dos consultas.
func (r *TransactionRepo) loadLines(ctx context.Context, txns []*entity.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	byID := make(map[string]*entity.Transaction, len(txns))
	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := r.q.Query(ctx, `
		SELECT transaction_id, product_id, quantity, unit_price, expiry_date
		FROM transaction_items WHERE transaction_id = ANY($1::uuid[])
		ORDER BY transaction_id, line`, ids)
	if err != nil {
		return domain.NewPersistenceError("load transaction items", err)
	}
	for rows.Next() {
		var txID string
		var it entity.TransactionItem
		var expiry *time.Time
		if err := rows.Scan(&txID, &it.ProductID, &it.Quantity, &it.UnitPrice, &expiry); err != nil {
			rows.Close()
			return domain.NewPersistenceError("scan transaction item", err)
		}
		it.ExpiryDate = expiry
		byID[txID].Items = append(byID[txID].Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.NewPersistenceError("load transaction items", err)
	}

	rows, err = r.q.Query(ctx, `
		SELECT transaction_id, batch_id, product_id, quantity_used
		FROM transaction_batches WHERE transaction_id = ANY($1::uuid[])
		ORDER BY transaction_id, line`, ids)
	if err != nil {
		return domain.NewPersistenceError("load transaction batches", err)
	}
	defer rows.Close()
	for rows.Next() {
		var txID string
		var u entity.BatchUsage
		if err := rows.Scan(&txID, &u.BatchID, &u.ProductID, &u.QuantityUsed); err != nil {
			return domain.NewPersistenceError("scan transaction batch", err)
		}
		byID[txID].BatchesUsed = append(byID[txID].BatchesUsed, u)
	}
	if err := rows.Err(); err != nil {
		return domain.NewPersistenceError("load transaction batches", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*entity.Transaction, error) {
	var t entity.Transaction
	var returnKind, supplierID *string
	err := row.Scan(
		&t.ID, &t.OrderNumber, &t.Type, &returnKind, &t.TotalAmount, &supplierID, &t.Notes,
		&t.TransactionDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.ReturnKind = derefString(returnKind)
	t.SupplierID = derefString(supplierID)
	return &t, nil
}
