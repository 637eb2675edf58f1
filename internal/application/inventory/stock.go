package inventory

import (
	"context"
	"fmt"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// ProductStock vista del stock de un producto con sus lotes.
type ProductStock struct {
	Product *entity.Product
	Batches []*entity.Batch
	Change  StockChange
}

// ProductStock recalcula el total del producto y devuelve sus lotes.
func (l *Ledger) ProductStock(ctx context.Context, productID string) (*ProductStock, error) {
	change, err := l.aggregator.Recompute(ctx, productID)
	if err != nil {
		return nil, err
	}
	l.followUp.Do(ctx, "notify_stock", func(ctx context.Context) error {
		return l.aggregator.Publish(ctx, change, "")
	})
	p, err := l.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.NewNotFoundError("producto", productID)
	}
	batches, err := l.batchRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &ProductStock{Product: p, Batches: batches, Change: change}, nil
}

// SetBatchStatus activa o desactiva manualmente un lote. Un lote vencido no puede reactivarse.
func (l *Ledger) SetBatchStatus(ctx context.Context, batchID, status string) (*entity.Batch, error) {
	if status != entity.BatchStatusActive && status != entity.BatchStatusInactive {
		return nil, domain.NewValidationError("status", "el estado debe ser active o inactive")
	}
	b, err := l.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.NewNotFoundError("lote", batchID)
	}
	if b.Condition == entity.BatchConditionExpired && status == entity.BatchStatusActive {
		return nil, fmt.Errorf("el lote %s está vencido: %w", b.BatchNumber, domain.ErrConflict)
	}
	if b.Status == status {
		return b, nil
	}
	if err := l.batchRepo.SetStatus(ctx, batchID, status); err != nil {
		return nil, err
	}
	b.Status = status
	b.UpdatedAt = l.now()
	l.log.Info().Str("batch_id", batchID).Str("status", status).Msg("estado de lote actualizado")
	return b, nil
}
