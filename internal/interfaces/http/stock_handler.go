package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stockledger-api/internal/application/dto"
	"github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
)

// stockLedger operaciones de stock del ledger (lo implementa *inventory.Ledger).
type stockLedger interface {
	AllocateAcross(ctx context.Context, in inventory.DeductInput) (*inventory.DeductResult, error)
	ProductStock(ctx context.Context, productID string) (*inventory.ProductStock, error)
	SetBatchStatus(ctx context.Context, batchID, status string) (*entity.Batch, error)
}

// stockSummarizer lo implementa *inventory.Aggregator.
type stockSummarizer interface {
	Summary(ctx context.Context) (inventory.Summary, error)
	Threshold() int
}

// expiryChecker lo implementa *inventory.Scheduler.
type expiryChecker interface {
	CheckExpiryAndStock(ctx context.Context) (inventory.ExpiryCheckResult, error)
}

// StockHandler maneja descuentos multiproducto, consulta de stock, resumen y lotes (protegido).
type StockHandler struct {
	ledger     stockLedger
	summarizer stockSummarizer
	checker    expiryChecker
	log        zerolog.Logger
}

// NewStockHandler construye el handler.
func NewStockHandler(ledger stockLedger, summarizer stockSummarizer, checker expiryChecker, log zerolog.Logger) *StockHandler {
	return &StockHandler{ledger: ledger, summarizer: summarizer, checker: checker, log: log}
}

// Deduct godoc
// @Summary      Descontar la misma cantidad de varios productos
// @Description  Cada producto es una unidad atómica independiente; el resultado puede ser parcial.
// @Tags         products
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.DeductRequest  true  "product_ids, quantity, unit_price opcional"
// @Success      200   {object}  dto.DeductResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      500   {object}  dto.ErrorResponse  "PARTIAL_FAILURE: details lleva las unidades ya confirmadas"
// @Router       /api/products/deduct [post]
func (h *StockHandler) Deduct(c *fiber.Ctx) error {
	var in dto.DeductRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if err := validateStruct(in); err != nil {
		return writeError(c, h.log, err)
	}
	price := decimal.Zero
	if in.UnitPrice != nil {
		price = *in.UnitPrice
	}
	res, err := h.ledger.AllocateAcross(c.UserContext(), inventory.DeductInput{
		ProductIDs: in.ProductIDs,
		Quantity:   in.Quantity,
		UnitPrice:  price,
		CreatedBy:  GetUserID(c),
	})
	if err != nil && res != nil && len(res.Products) > 0 {
		// Algunos productos ya quedaron descontados en su propia tx; el cliente debe verlos.
		h.log.Error().Err(err).Int("committed", len(res.Products)).Msg("descuento multiproducto interrumpido")
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:    "PARTIAL_FAILURE",
			Message: "el descuento se interrumpió después de confirmar algunos productos",
			Details: toDeductResponse(res),
		})
	}
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toDeductResponse(res))
}

// ProductStock godoc
// @Summary      Stock recalculado de un producto con sus lotes
// @Tags         products
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.ProductStockResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/stock [get]
func (h *StockHandler) ProductStock(c *fiber.Ctx) error {
	id, err := pathID(c, "producto")
	if err != nil {
		return writeError(c, h.log, err)
	}
	ps, err := h.ledger.ProductStock(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toProductStockResponse(ps, h.summarizer.Threshold()))
}

// Summary godoc
// @Summary      Resumen de inventario: stock mínimo, agotados y total de productos activos
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  inventory.Summary
// @Router       /api/inventory/summary [get]
func (h *StockHandler) Summary(c *fiber.Ctx) error {
	s, err := h.summarizer.Summary(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(s)
}

// ExpiryCheck godoc
// @Summary      Disparo manual del chequeo de vencimientos y stock
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.ExpiryCheckResponse
// @Router       /api/inventory/expiry-check [post]
func (h *StockHandler) ExpiryCheck(c *fiber.Ctx) error {
	res, err := h.checker.CheckExpiryAndStock(c.UserContext())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.ExpiryCheckResponse{
		ExpiredBatches:     res.ExpiredBatches,
		ProductsRecomputed: res.ProductsRecomputed,
		Crossings:          res.Crossings,
	})
}

// SetBatchStatus godoc
// @Summary      Activar o desactivar manualmente un lote
// @Tags         batches
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                  true  "ID del lote"
// @Param        body  body  dto.BatchStatusRequest  true  "active | inactive"
// @Success      200   {object}  dto.BatchResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/batches/{id}/status [patch]
func (h *StockHandler) SetBatchStatus(c *fiber.Ctx) error {
	id, err := pathID(c, "lote")
	if err != nil {
		return writeError(c, h.log, err)
	}
	var in dto.BatchStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if err := validateStruct(in); err != nil {
		return writeError(c, h.log, err)
	}
	b, err := h.ledger.SetBatchStatus(c.UserContext(), id, in.Status)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toBatchResponse(b))
}
