package inventory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// DefaultOrderNumberAttempts intentos por defecto antes de rendirse.
const DefaultOrderNumberAttempts = 5

var orderPrefixes = map[string]string{
	entity.TransactionTypeSale:     "ORD",
	entity.TransactionTypePurchase: "PUR",
	entity.TransactionTypeDamage:   "DMG",
	entity.TransactionTypeReturn:   "RET",
}

// OrderNumberGenerator genera referencias <PREFIJO>-<AAAAMMDD>-<HHMMSSmmm>[-NNNN].
type OrderNumberGenerator struct {
	attempts int
	suffix   func() int
}

// NewOrderNumberGenerator construye el generador; attempts <= 0 usa el valor por defecto.
func NewOrderNumberGenerator(attempts int) *OrderNumberGenerator {
	if attempts <= 0 {
		attempts = DefaultOrderNumberAttempts
	}
	return &OrderNumberGenerator{
		attempts: attempts,
		suffix:   func() int { return 1000 + rand.IntN(9000) },
	}
}

// WithSuffix reemplaza la fuente del sufijo aleatorio (1000–9999).
func (g *OrderNumberGenerator) WithSuffix(fn func() int) *OrderNumberGenerator {
	g.suffix = fn
	return g
}

// OrderNumberBase referencia sin sufijo para el tipo y el instante dados.
func OrderNumberBase(txType string, at time.Time) string {
	prefix, ok := orderPrefixes[txType]
	if !ok {
		prefix = "TRX"
	}
	return fmt.Sprintf("%s-%s-%s%03d", prefix, at.Format("20060102"), at.Format("150405"), at.Nanosecond()/int(time.Millisecond))
}

// Next devuelve una referencia libre comprobando contra txRepo (usar el repo de la tx en curso).
func (g *OrderNumberGenerator) Next(ctx context.Context, txRepo repository.TransactionRepository, txType string, at time.Time) (string, error) {
	base := OrderNumberBase(txType, at)
	candidate := base
	for i := 0; i < g.attempts; i++ {
		if i > 0 {
			candidate = fmt.Sprintf("%s-%04d", base, g.suffix())
		}
		exists, err := txRepo.ExistsOrderNumber(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", domain.ErrOrderNumberExhausted
}
