package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// Sweeper marca como vencidos los lotes cuya fecha de vencimiento ya pasó.
// La transición a inactive+expired es terminal y se notifica una sola vez por lote.
type Sweeper struct {
	batchRepo   repository.BatchRepository
	productRepo repository.ProductRepository
	dispatcher  *Dispatcher
	followUp    *FollowUp
	metrics     Metrics
	log         zerolog.Logger
}

// NewSweeper construye el barrido de vencimientos.
func NewSweeper(
	batchRepo repository.BatchRepository,
	productRepo repository.ProductRepository,
	dispatcher *Dispatcher,
	followUp *FollowUp,
	metrics Metrics,
	log zerolog.Logger,
) *Sweeper {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Sweeper{
		batchRepo:   batchRepo,
		productRepo: productRepo,
		dispatcher:  dispatcher,
		followUp:    followUp,
		metrics:     metrics,
		log:         log,
	}
}

// Sweep vence todos los lotes en buen estado con vencimiento <= now y notifica cada uno.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) ([]*entity.Batch, error) {
	return s.sweep(ctx, "", now)
}

// SweepProduct igual que Sweep restringido a un producto; se usa antes de consumir sus lotes.
func (s *Sweeper) SweepProduct(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	return s.sweep(ctx, productID, now)
}

func (s *Sweeper) sweep(ctx context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	flipped, err := s.batchRepo.ExpireDue(ctx, productID, now)
	if err != nil {
		return nil, err
	}
	if len(flipped) == 0 {
		return flipped, nil
	}
	s.metrics.ObserveExpired(len(flipped))
	s.log.Info().Int("batches", len(flipped)).Str("product_id", productID).Msg("lotes vencidos desactivados")

	names := make(map[string]string)
	for _, b := range flipped {
		name, ok := names[b.ProductID]
		if !ok {
			name = b.ProductID
			if p, err := s.productRepo.GetByID(ctx, b.ProductID); err == nil && p != nil {
				name = p.Name
			}
			names[b.ProductID] = name
		}
		in := NotifyInput{
			Message: fmt.Sprintf("El lote %s de %s venció el %s (%d unidades sin vender)",
				b.BatchNumber, name, b.ExpiryDate.Format("2006-01-02"), b.RemainingStock),
			Type:          entity.NotificationTypeExpiry,
			RelatedEntity: b.ID,
			EntityType:    entity.EntityTypeBatch,
		}
		s.followUp.Do(ctx, "notify_expiry", func(ctx context.Context) error {
			_, err := s.dispatcher.Notify(ctx, in)
			return err
		})
	}
	return flipped, nil
}
