package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	app "github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
	"github.com/jhoicas/stockledger-api/internal/infrastructure/metrics"
	"github.com/jhoicas/stockledger-api/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/stockledger-api/internal/interfaces/http"
	"github.com/jhoicas/stockledger-api/pkg/config"
	"github.com/jhoicas/stockledger-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("policy", cfg.Ledger.AllocationPolicy).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if cfg.DB.AutoMigrate {
		migrator, err := postgres.NewMigrator(pool, log.Component("migrate"))
		if err != nil {
			log.Fatal().Err(err).Msg("inicializar migraciones")
		}
		if err := migrator.Up(); err != nil {
			log.Fatal().Err(err).Msg("aplicar migraciones")
		}
		_ = migrator.Close()
	}

	// Métricas: sin Prometheus el núcleo usa NopMetrics.
	var (
		ledgerMetrics  *metrics.LedgerMetrics
		observer       app.Metrics = app.NopMetrics{}
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		ledgerMetrics = metrics.NewLedgerMetrics(true)
		observer = ledgerMetrics
		metricsHandler = ledgerMetrics.Handler()
	}

	batchRepo := postgres.NewBatchRepository(pool)
	txRepo := postgres.NewTransactionRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	supplierRepo := postgres.NewSupplierRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	followUp := app.NewFollowUp(cfg.Ledger.FollowUpAttempts, cfg.Ledger.FollowUpBackoff, observer, log.Component("followup"))
	dispatcher := app.NewDispatcher(notificationRepo, userRepo, observer, log.Component("notifications"))
	aggregator := app.NewAggregator(txRunner, productRepo, dispatcher, cfg.Ledger.LowStockThreshold, log.Component("aggregator"))
	sweeper := app.NewSweeper(batchRepo, productRepo, dispatcher, followUp, observer, log.Component("sweeper"))

	ledger := app.NewLedger(app.LedgerDeps{
		TxRunner:     txRunner,
		BatchRepo:    batchRepo,
		TxRepo:       txRepo,
		ProductRepo:  productRepo,
		SupplierRepo: supplierRepo,
		Allocator:    app.NewAllocator(inventory.ParsePolicy(cfg.Ledger.AllocationPolicy)),
		OrderNumbers: app.NewOrderNumberGenerator(cfg.Ledger.OrderNumberAttempts),
		Aggregator:   aggregator,
		Dispatcher:   dispatcher,
		Sweeper:      sweeper,
		FollowUp:     followUp,
		Metrics:      observer,
	}, app.LedgerConfig{
		MaxAllocationRetries:  cfg.Ledger.MaxAllocationRetries,
		MaxParallelCandidates: cfg.Ledger.MaxParallelCandidates,
	}, log.Component("ledger"))

	scheduler := app.NewScheduler(sweeper, aggregator, dispatcher, app.SchedulerConfig{
		SweepInterval:         cfg.Ledger.SweepInterval,
		CleanupInterval:       cfg.Ledger.CleanupInterval,
		NotificationRetention: cfg.Ledger.NotificationRetention,
	}, log.Component("scheduler"))

	fiberApp := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	fiberApp.Use(recover.New())
	fiberApp.Use(httpRouter.RequestLogger(log.Component("http")))

	httpRouter.Router(fiberApp, httpRouter.RouterDeps{
		Transactions:   ledger,
		Stock:          ledger,
		Summarizer:     aggregator,
		ExpiryChecker:  scheduler,
		Notifications:  dispatcher,
		DB:             pool,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		JWTSecret:      cfg.JWT.Secret,
		AppName:        cfg.App.Name,
		Log:            log.Component("http"),
	})

	runCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	scheduler.Start(runCtx)

	go func() {
		if err := fiberApp.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("detener tareas periódicas")
	}
	// Los reintentos posteriores al commit en curso terminan antes de cerrar el pool.
	followUp.Wait()

	if ledgerMetrics != nil {
		ev := log.Info()
		for name, v := range ledgerMetrics.Snapshot() {
			ev = ev.Float64(name, v)
		}
		ev.Msg("métricas al cierre")
	}
	log.Info().Msg("aplicación detenida")
}
