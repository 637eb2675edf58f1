package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FollowUp ejecuta efectos posteriores al commit (recálculo de stock, notificaciones).
// Un fallo nunca se propaga al llamador: se registra y se reintenta en segundo plano
// con espera creciente hasta agotar los intentos.
type FollowUp struct {
	attempts int
	backoff  time.Duration
	metrics  Metrics
	log      zerolog.Logger
	wg       sync.WaitGroup
}

// NewFollowUp construye el ejecutor. attempts cuenta el intento síncrono inicial.
func NewFollowUp(attempts int, backoff time.Duration, metrics Metrics, log zerolog.Logger) *FollowUp {
	if attempts < 1 {
		attempts = 1
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &FollowUp{attempts: attempts, backoff: backoff, metrics: metrics, log: log}
}

// Do ejecuta fn una vez; si falla, programa los reintentos restantes en una goroutine.
// Devuelve true si el primer intento tuvo éxito.
func (f *FollowUp) Do(ctx context.Context, op string, fn func(context.Context) error) bool {
	err := fn(ctx)
	if err == nil {
		return true
	}
	f.log.Error().Err(err).Str("op", op).Msg("fallo posterior al commit, se reintentará")
	if f.attempts <= 1 {
		return false
	}

	bg := context.WithoutCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		wait := f.backoff
		for attempt := 2; attempt <= f.attempts; attempt++ {
			time.Sleep(wait)
			wait *= 2
			f.metrics.ObserveRetry(op)
			if err := fn(bg); err != nil {
				f.log.Error().Err(err).Str("op", op).Int("attempt", attempt).Msg("reintento fallido")
				continue
			}
			f.log.Info().Str("op", op).Int("attempt", attempt).Msg("reintento exitoso")
			return
		}
		f.log.Error().Str("op", op).Int("attempts", f.attempts).Msg("se agotaron los reintentos")
	}()
	return false
}

// Wait bloquea hasta que terminen los reintentos pendientes (apagado ordenado y tests).
func (f *FollowUp) Wait() {
	f.wg.Wait()
}
