package inventory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// StockChange resultado de recalcular el total de un producto.
type StockChange struct {
	ProductID   string
	ProductName string
	Previous    int
	Current     int
	Crossing    inventory.Crossing
}

// Summary contadores del inventario activo.
type Summary struct {
	MinimumStock int `json:"minimum_stock"`
	OutOfStock   int `json:"out_of_stock"`
	TotalItems   int `json:"total_items"`
}

// Aggregator mantiene Product.TotalStock como suma de los remanentes de sus lotes.
// Es el único escritor de ese campo.
type Aggregator struct {
	txRunner    TxRunner
	productRepo repository.ProductRepository
	dispatcher  *Dispatcher
	threshold   int
	log         zerolog.Logger
}

// NewAggregator construye el agregador. threshold <= 0 usa el umbral por defecto.
func NewAggregator(txRunner TxRunner, productRepo repository.ProductRepository, dispatcher *Dispatcher, threshold int, log zerolog.Logger) *Aggregator {
	if threshold <= 0 {
		threshold = inventory.DefaultLowStockThreshold
	}
	return &Aggregator{
		txRunner:    txRunner,
		productRepo: productRepo,
		dispatcher:  dispatcher,
		threshold:   threshold,
		log:         log,
	}
}

// Threshold umbral de stock bajo vigente.
func (a *Aggregator) Threshold() int {
	return a.threshold
}

// Recompute bloquea el producto, suma los remanentes de todos sus lotes y escribe TotalStock.
// No notifica: el cruce detectado se publica con Publish después del commit.
func (a *Aggregator) Recompute(ctx context.Context, productID string) (StockChange, error) {
	var change StockChange
	err := a.txRunner.Run(ctx, func(
		batchRepo repository.BatchRepository,
		_ repository.TransactionRepository,
		productRepo repository.ProductRepository,
	) error {
		p, err := productRepo.GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.NewNotFoundError("producto", productID)
		}
		total, err := batchRepo.SumRemaining(ctx, productID)
		if err != nil {
			return err
		}
		if total != p.TotalStock {
			if err := productRepo.UpdateTotalStock(ctx, productID, total); err != nil {
				return err
			}
		}
		change = StockChange{
			ProductID:   productID,
			ProductName: p.Name,
			Previous:    p.TotalStock,
			Current:     total,
			Crossing:    inventory.DetectCrossing(p.TotalStock, total, a.threshold),
		}
		return nil
	})
	if err != nil {
		return StockChange{}, err
	}
	return change, nil
}

// Publish emite la notificación del cruce, si lo hay.
func (a *Aggregator) Publish(ctx context.Context, change StockChange, createdBy string) error {
	var msg string
	switch change.Crossing {
	case inventory.CrossingLowStock:
		msg = fmt.Sprintf("Stock bajo: %s tiene %d unidades", displayName(change), change.Current)
	case inventory.CrossingOutOfStock:
		msg = fmt.Sprintf("Producto agotado: %s no tiene unidades disponibles", displayName(change))
	default:
		return nil
	}
	_, err := a.dispatcher.Notify(ctx, NotifyInput{
		Message:       msg,
		Type:          entity.NotificationTypeLowStock,
		RelatedEntity: change.ProductID,
		EntityType:    entity.EntityTypeProduct,
		CreatedBy:     createdBy,
	})
	return err
}

// RecomputeAll recalcula y publica para todos los productos activos. Sigue con el resto si uno falla.
func (a *Aggregator) RecomputeAll(ctx context.Context) ([]StockChange, error) {
	products, err := a.productRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	changes := make([]StockChange, 0, len(products))
	var failed int
	var firstErr error
	for _, p := range products {
		change, err := a.Recompute(ctx, p.ID)
		if err == nil {
			err = a.Publish(ctx, change, "")
		}
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			a.log.Error().Err(err).Str("product_id", p.ID).Msg("error recalculando stock")
			continue
		}
		changes = append(changes, change)
	}
	if firstErr != nil {
		return changes, fmt.Errorf("recalcular stock: %d de %d productos fallaron: %w", failed, len(products), firstErr)
	}
	return changes, nil
}

// Summary cuenta los productos activos con stock mínimo, agotados y el total.
func (a *Aggregator) Summary(ctx context.Context) (Summary, error) {
	products, err := a.productRepo.ListActive(ctx)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{TotalItems: len(products)}
	for _, p := range products {
		switch inventory.Classify(p.TotalStock, a.threshold) {
		case inventory.LevelOut:
			s.OutOfStock++
		case inventory.LevelMinimum:
			s.MinimumStock++
		}
	}
	return s, nil
}

func displayName(c StockChange) string {
	if c.ProductName != "" {
		return c.ProductName
	}
	return c.ProductID
}
