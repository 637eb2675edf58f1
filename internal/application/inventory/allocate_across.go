package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// Estados del descuento multiproducto.
const (
	DeductStatusFailed   = "failed"
	DeductStatusPartial  = "partial"
	DeductStatusComplete = "complete"
)

// DeductInput pide descontar Quantity de cada producto candidato.
type DeductInput struct {
	ProductIDs []string
	Quantity   int
	UnitPrice  decimal.Decimal
	CreatedBy  string
}

// ProductDeduction resultado de un candidato descontado con éxito.
type ProductDeduction struct {
	ProductID     string
	Deducted      int
	TransactionID string
	OrderNumber   string
}

// DeductResult resumen del descuento multiproducto.
type DeductResult struct {
	Status            string
	Requested         int
	TotalDeducted     int
	RemainingToDeduct int
	Products          []ProductDeduction
	Batches           []entity.BatchUsage
	SupplierIDs       []string
	Attempts          []domain.StockAttempt
	Skipped           []string
}

type candidateOutcome struct {
	deduction *ProductDeduction
	txn       *entity.Transaction
	suppliers []string
	attempt   *domain.StockAttempt
}

// AllocateAcross descuenta la misma cantidad de varios productos. Cada producto es una unidad
// atómica independiente (su propia tx y su propia venta); los inactivos, inexistentes o sin lotes
// elegibles se omiten y los que no alcanzan no aportan nada. Si un candidato falla por otra causa
// se devuelve el error junto con el resultado: las ventas ya confirmadas siguen en Products.
func (l *Ledger) AllocateAcross(ctx context.Context, in DeductInput) (*DeductResult, error) {
	if len(in.ProductIDs) == 0 {
		return nil, domain.NewValidationError("productIds", "debe indicar al menos un producto")
	}
	if in.Quantity < 1 {
		return nil, domain.NewValidationError("quantity", "la cantidad debe ser al menos 1")
	}
	if in.UnitPrice.IsNegative() {
		return nil, domain.NewValidationError("unitPrice", "el precio unitario no puede ser negativo")
	}
	now := l.now()

	result := &DeductResult{}
	candidates := make([]string, 0, len(in.ProductIDs))
	for _, id := range mergeIDs(in.ProductIDs, nil) {
		ok, err := l.isCandidate(ctx, id, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		candidates = append(candidates, id)
	}
	result.Requested = in.Quantity * len(candidates)

	outcomes := make([]candidateOutcome, len(candidates))
	var g errgroup.Group
	g.SetLimit(l.cfg.MaxParallelCandidates)
	for i, productID := range candidates {
		g.Go(func() error {
			out, err := l.deductOne(ctx, productID, in, now)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	groupErr := g.Wait()

	suppliers := make(map[string]struct{})
	for _, out := range outcomes {
		switch {
		case out.deduction != nil:
			result.Products = append(result.Products, *out.deduction)
			result.Batches = append(result.Batches, out.txn.BatchesUsed...)
			result.TotalDeducted += out.deduction.Deducted
			for _, s := range out.suppliers {
				if _, ok := suppliers[s]; !ok && s != "" {
					suppliers[s] = struct{}{}
					result.SupplierIDs = append(result.SupplierIDs, s)
				}
			}
			l.metrics.ObserveTransaction(entity.TransactionTypeSale, "ok")
			l.afterCommit(ctx, out.txn, []string{out.deduction.ProductID}, true)
		case out.attempt != nil:
			result.Attempts = append(result.Attempts, *out.attempt)
			l.metrics.ObserveShortfall(entity.TransactionTypeSale)
		}
	}
	result.RemainingToDeduct = result.Requested - result.TotalDeducted
	switch {
	case result.TotalDeducted == 0:
		result.Status = DeductStatusFailed
	case result.RemainingToDeduct > 0:
		result.Status = DeductStatusPartial
	default:
		result.Status = DeductStatusComplete
	}

	if groupErr != nil {
		l.log.Error().Err(groupErr).
			Int("committed", len(result.Products)).
			Int("deducted", result.TotalDeducted).
			Msg("descuento multiproducto interrumpido")
		return result, groupErr
	}
	if result.Status == DeductStatusFailed {
		err := &domain.InsufficientStockError{
			Requested: result.Requested,
			Shortfall: result.RemainingToDeduct,
			Attempts:  result.Attempts,
		}
		if result.Requested == 0 {
			err.Requested = in.Quantity
			err.Shortfall = in.Quantity
		}
		if len(candidates) == 1 {
			err.ProductID = candidates[0]
		}
		return result, err
	}
	l.log.Info().
		Str("status", result.Status).
		Int("requested", result.Requested).
		Int("deducted", result.TotalDeducted).
		Msg("descuento multiproducto aplicado")
	return result, nil
}

// isCandidate: producto activo con al menos un lote elegible tras vencer los lotes caducados.
func (l *Ledger) isCandidate(ctx context.Context, productID string, now time.Time) (bool, error) {
	p, err := l.productRepo.GetByID(ctx, productID)
	if err != nil {
		return false, err
	}
	if p == nil || !p.IsActive() {
		return false, nil
	}
	if l.sweeper != nil {
		if _, err := l.sweeper.SweepProduct(ctx, productID, now); err != nil {
			l.log.Warn().Err(err).Str("product_id", productID).Msg("barrido de vencimientos previo falló")
		}
	}
	eligible, err := l.batchRepo.ListEligible(ctx, productID, now)
	if err != nil {
		return false, err
	}
	return len(eligible) > 0, nil
}

// deductOne descuenta y registra la venta de un candidato. Un faltante no es error: se reporta como intento.
func (l *Ledger) deductOne(ctx context.Context, productID string, in DeductInput, now time.Time) (candidateOutcome, error) {
	price := in.UnitPrice.Round(2)
	txn := &entity.Transaction{
		ID:   uuid.New().String(),
		Type: entity.TransactionTypeSale,
		Items: []entity.TransactionItem{
			{ProductID: productID, Quantity: in.Quantity, UnitPrice: price},
		},
		TotalAmount:     price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2),
		Notes:           "descuento multiproducto",
		TransactionDate: now,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var alloc Allocation
	err := l.withRetry(ctx, func() error {
		return l.txRunner.Run(ctx, func(
			batchRepo repository.BatchRepository,
			txRepo repository.TransactionRepository,
			_ repository.ProductRepository,
		) error {
			orderNumber, err := l.orderNumbers.Next(ctx, txRepo, txn.Type, now)
			if err != nil {
				return err
			}
			txn.OrderNumber = orderNumber
			alloc, err = l.allocator.Allocate(ctx, batchRepo, productID, in.Quantity, now)
			if err != nil {
				return err
			}
			txn.BatchesUsed = alloc.Usages()
			return txRepo.Create(ctx, txn)
		})
	})

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		attempt := domain.StockAttempt{ProductID: productID, Requested: in.Quantity, Available: in.Quantity - insufficient.Shortfall}
		return candidateOutcome{attempt: &attempt}, nil
	}
	if err != nil {
		return candidateOutcome{}, err
	}

	suppliers := make([]string, 0, len(alloc.Entries))
	for _, e := range alloc.Entries {
		suppliers = append(suppliers, e.SupplierID)
	}
	return candidateOutcome{
		deduction: &ProductDeduction{
			ProductID:     productID,
			Deducted:      alloc.Total(),
			TransactionID: txn.ID,
			OrderNumber:   txn.OrderNumber,
		},
		txn:       txn,
		suppliers: suppliers,
	}, nil
}
