package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// Pinger lo implementa *pgxpool.Pool; /health lo usa para reportar la base de datos.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Transactions   transactionLedger
	Stock          stockLedger
	Summarizer     stockSummarizer
	ExpiryChecker  expiryChecker
	Notifications  notificationInbox
	DB             Pinger
	MetricsHandler http.Handler // nil = /metrics deshabilitado
	MetricsPath    string
	JWTSecret      string
	AppName        string
	Log            zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", healthHandler(deps))
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		app.Get(path, adaptor.HTTPHandler(deps.MetricsHandler))
	}

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))
	staff := RequireRole(entity.StaffRoles...)
	admin := RequireRole(entity.RoleAdmin)

	transactionHandler := NewTransactionHandler(deps.Transactions, deps.Log)
	transactions := api.Group("/transactions")
	transactions.Post("/", staff, transactionHandler.Create)
	transactions.Get("/", staff, transactionHandler.List)
	transactions.Get("/:id", staff, transactionHandler.GetByID)
	transactions.Put("/:id", admin, transactionHandler.Update)

	stockHandler := NewStockHandler(deps.Stock, deps.Summarizer, deps.ExpiryChecker, deps.Log)
	products := api.Group("/products")
	products.Post("/deduct", staff, stockHandler.Deduct)
	products.Get("/:id/stock", staff, stockHandler.ProductStock)

	inventory := api.Group("/inventory")
	inventory.Get("/summary", staff, stockHandler.Summary)
	inventory.Post("/expiry-check", admin, stockHandler.ExpiryCheck)

	batches := api.Group("/batches")
	batches.Patch("/:id/status", admin, stockHandler.SetBatchStatus)

	// Cualquier usuario autenticado ve sus propias notificaciones.
	notificationHandler := NewNotificationHandler(deps.Notifications, deps.Log)
	notifications := api.Group("/notifications")
	notifications.Get("/", notificationHandler.List)
	notifications.Patch("/:id/read", notificationHandler.MarkRead)
}

func healthHandler(deps RouterDeps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok", "service": deps.AppName}
		if deps.DB == nil {
			return c.JSON(body)
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			deps.Log.Warn().Err(err).Msg("health: base de datos no disponible")
			body["status"] = "degraded"
			body["database"] = "down"
			return c.Status(fiber.StatusServiceUnavailable).JSON(body)
		}
		body["database"] = "up"
		return c.JSON(body)
	}
}

// RequestLogger registra cada petición con zerolog (método, ruta, status y duración).
func RequestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		ev := log.Info()
		if status >= fiber.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("user_id", GetUserID(c)).
			Msg("petición HTTP")
		return err
	}
}
