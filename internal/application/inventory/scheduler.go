package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
)

// SchedulerConfig periodicidad de las tareas de mantenimiento.
type SchedulerConfig struct {
	SweepInterval         time.Duration
	CleanupInterval       time.Duration
	NotificationRetention time.Duration
}

// DefaultSchedulerConfig barrido cada hora, limpieza diaria, retención de 30 días.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SweepInterval:         time.Hour,
		CleanupInterval:       24 * time.Hour,
		NotificationRetention: 30 * 24 * time.Hour,
	}
}

// Scheduler ejecuta en segundo plano el barrido de vencimientos con recálculo de stock
// y la limpieza de notificaciones antiguas.
type Scheduler struct {
	sweeper    *Sweeper
	aggregator *Aggregator
	dispatcher *Dispatcher
	cfg        SchedulerConfig
	now        func() time.Time
	log        zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler construye el planificador.
func NewScheduler(sweeper *Sweeper, aggregator *Aggregator, dispatcher *Dispatcher, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	def := DefaultSchedulerConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.NotificationRetention <= 0 {
		cfg.NotificationRetention = def.NotificationRetention
	}
	return &Scheduler{
		sweeper:    sweeper,
		aggregator: aggregator,
		dispatcher: dispatcher,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// WithClock reemplaza el reloj.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start lanza los bucles; se detienen con Stop o al cancelar ctx.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.loop(ctx, s.cfg.SweepInterval, s.RunExpiryCheck)
	go s.loop(ctx, s.cfg.CleanupInterval, s.RunCleanup)

	s.log.Info().
		Dur("sweep_interval", s.cfg.SweepInterval).
		Dur("cleanup_interval", s.cfg.CleanupInterval).
		Msg("planificador de inventario iniciado")
}

// Stop cancela los bucles y espera a que terminen o a que venza ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("planificador de inventario detenido")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, job func(context.Context) error) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job(ctx); err != nil {
				s.log.Error().Err(err).Msg("tarea programada falló")
			}
		}
	}
}

// ExpiryCheckResult resumen de una revisión de vencimientos y stock.
type ExpiryCheckResult struct {
	ExpiredBatches     int
	ProductsRecomputed int
	Crossings          int
}

// RunExpiryCheck vence los lotes caducados y recalcula el stock de los productos activos.
func (s *Scheduler) RunExpiryCheck(ctx context.Context) error {
	_, err := s.CheckExpiryAndStock(ctx)
	return err
}

// CheckExpiryAndStock igual que RunExpiryCheck pero devuelve el resumen (disparo manual vía HTTP).
// Un fallo parcial del recálculo se reporta junto con lo que sí se procesó.
func (s *Scheduler) CheckExpiryAndStock(ctx context.Context) (ExpiryCheckResult, error) {
	expired, err := s.sweeper.Sweep(ctx, s.now())
	if err != nil {
		return ExpiryCheckResult{}, err
	}
	changes, err := s.aggregator.RecomputeAll(ctx)
	res := ExpiryCheckResult{ExpiredBatches: len(expired), ProductsRecomputed: len(changes)}
	for _, c := range changes {
		if c.Crossing != inventory.CrossingNone {
			res.Crossings++
		}
	}
	s.log.Info().
		Int("expired", res.ExpiredBatches).
		Int("products", res.ProductsRecomputed).
		Int("crossings", res.Crossings).
		Msg("revisión de stock y vencimientos completada")
	return res, err
}

// RunCleanup elimina las notificaciones fuera de la retención.
func (s *Scheduler) RunCleanup(ctx context.Context) error {
	_, err := s.dispatcher.Cleanup(ctx, s.cfg.NotificationRetention)
	return err
}
