package inventory

import (
	"context"

	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// Si fn devuelve error se hace Rollback de todo lo escrito en la tx.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		batchRepo repository.BatchRepository,
		txRepo repository.TransactionRepository,
		productRepo repository.ProductRepository,
	) error) error
}

// Metrics puerto de observabilidad del libro de stock.
type Metrics interface {
	ObserveTransaction(txType, result string)
	ObserveShortfall(txType string)
	ObserveExpired(n int)
	ObserveNotification(notificationType string)
	ObserveRetry(op string)
}

// NopMetrics descarta todas las observaciones.
type NopMetrics struct{}

func (NopMetrics) ObserveTransaction(string, string) {}
func (NopMetrics) ObserveShortfall(string)           {}
func (NopMetrics) ObserveExpired(int)                {}
func (NopMetrics) ObserveNotification(string)        {}
func (NopMetrics) ObserveRetry(string)               {}
