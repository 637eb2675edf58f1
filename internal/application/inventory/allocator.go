package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// Allocation tramos aplicados sobre los lotes de un producto.
type Allocation struct {
	ProductID string
	Entries   []inventory.Entry
	Shortfall int
}

// Usages convierte los tramos al registro de auditoría de la transacción.
func (a Allocation) Usages() []entity.BatchUsage {
	out := make([]entity.BatchUsage, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, entity.BatchUsage{BatchID: e.BatchID, ProductID: a.ProductID, QuantityUsed: e.Amount})
	}
	return out
}

// Total unidades aplicadas.
func (a Allocation) Total() int {
	total := 0
	for _, e := range a.Entries {
		total += e.Amount
	}
	return total
}

// Allocator reparte cantidades sobre lotes. Siempre opera con el BatchRepository de la tx del llamador.
type Allocator struct {
	policy inventory.Policy
}

// NewAllocator construye el asignador con la política de orden dada.
func NewAllocator(policy inventory.Policy) *Allocator {
	return &Allocator{policy: policy}
}

// Policy devuelve la política configurada.
func (a *Allocator) Policy() inventory.Policy {
	return a.policy
}

// Allocate descuenta quantity del producto recorriendo los lotes elegibles según la política.
// Si no alcanza devuelve *domain.InsufficientStockError sin tocar lotes; si un descuento condicional
// no afecta filas devuelve domain.ErrConcurrencyConflict (el llamador debe hacer Rollback y reintentar).
func (a *Allocator) Allocate(ctx context.Context, batchRepo repository.BatchRepository, productID string, quantity int, now time.Time) (Allocation, error) {
	if quantity < 1 {
		return Allocation{}, domain.NewValidationError("quantity", "la cantidad debe ser mayor a cero")
	}
	batches, err := batchRepo.ListEligible(ctx, productID, now)
	if err != nil {
		return Allocation{}, err
	}
	batches = inventory.FilterEligible(batches, productID, now)
	inventory.SortForConsumption(batches, a.policy)

	plan := inventory.PlanConsumption(batches, quantity)
	alloc := Allocation{ProductID: productID, Entries: plan.Entries, Shortfall: plan.Shortfall}
	if plan.Shortfall > 0 {
		return alloc, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Shortfall: plan.Shortfall,
			Attempts:  []domain.StockAttempt{{ProductID: productID, Requested: quantity, Available: plan.Total()}},
		}
	}

	for _, e := range plan.Entries {
		ok, err := batchRepo.ConditionalDecrement(ctx, e.BatchID, e.Amount, now)
		if err != nil {
			return Allocation{}, err
		}
		if !ok {
			return Allocation{}, fmt.Errorf("lote %s: %w", e.BatchID, domain.ErrConcurrencyConflict)
		}
	}
	return alloc, nil
}

// Restock devuelve quantity a los lotes activos y vigentes en now del producto, del más reciente
// al más antiguo, sin que ninguno supere su cantidad original.
func (a *Allocator) Restock(ctx context.Context, batchRepo repository.BatchRepository, productID string, quantity int, now time.Time) (Allocation, error) {
	if quantity < 1 {
		return Allocation{}, domain.NewValidationError("quantity", "la cantidad debe ser mayor a cero")
	}
	batches, err := batchRepo.ListRestockable(ctx, productID, now)
	if err != nil {
		return Allocation{}, err
	}
	inventory.SortForRestock(batches)

	plan := inventory.PlanRestock(batches, quantity)
	if plan.Shortfall > 0 {
		return Allocation{}, domain.NewValidationError("quantity",
			fmt.Sprintf("la devolución excede la capacidad de los lotes del producto %s en %d unidades", productID, plan.Shortfall))
	}
	for _, e := range plan.Entries {
		ok, err := batchRepo.Increment(ctx, e.BatchID, e.Amount)
		if err != nil {
			return Allocation{}, err
		}
		if !ok {
			return Allocation{}, fmt.Errorf("lote %s: %w", e.BatchID, domain.ErrConcurrencyConflict)
		}
	}
	return Allocation{ProductID: productID, Entries: plan.Entries}, nil
}
