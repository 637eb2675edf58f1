package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

var _ inventory.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Run inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
func (r *TxRunner) Run(ctx context.Context, fn func(
	batchRepo repository.BatchRepository,
	txRepo repository.TransactionRepository,
	productRepo repository.ProductRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.NewPersistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewBatchRepository(tx), NewTransactionRepository(tx), NewProductRepository(tx)); err != nil {
		if isRetryable(err) && !errors.Is(err, domain.ErrConcurrencyConflict) {
			return fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storeError("commit transaction", err)
	}
	return nil
}
