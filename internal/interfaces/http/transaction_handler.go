package http

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/stockledger-api/internal/application/dto"
	"github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// transactionLedger contrato que el handler necesita del ledger (lo implementa *inventory.Ledger).
type transactionLedger interface {
	Record(ctx context.Context, in inventory.RecordInput) (*entity.Transaction, error)
	Update(ctx context.Context, id string, in inventory.RecordInput) (*entity.Transaction, error)
	Get(ctx context.Context, id string) (*entity.Transaction, error)
	List(ctx context.Context, f repository.TransactionFilter) ([]*entity.Transaction, error)
}

// TransactionHandler maneja las peticiones HTTP de movimientos de inventario (protegido).
type TransactionHandler struct {
	ledger transactionLedger
	log    zerolog.Logger
}

// NewTransactionHandler construye el handler.
func NewTransactionHandler(ledger transactionLedger, log zerolog.Logger) *TransactionHandler {
	return &TransactionHandler{ledger: ledger, log: log}
}

// Create godoc
// @Summary      Registrar movimiento (venta, compra, merma o devolución)
// @Tags         transactions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateTransactionRequest  true  "type, items, total_amount; supplier_id y expiry_date en compras"
// @Success      201   {object}  dto.TransactionResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/transactions [post]
func (h *TransactionHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateTransactionRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if err := validateStruct(in); err != nil {
		return writeError(c, h.log, err)
	}
	txn, err := h.ledger.Record(c.UserContext(), toRecordInput(in, GetUserID(c)))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toTransactionResponse(txn))
}

// Update godoc
// @Summary      Corregir un movimiento (revierte el efecto anterior y aplica el nuevo)
// @Tags         transactions
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                        true  "ID del movimiento"
// @Param        body  body  dto.CreateTransactionRequest  true  "mismo tipo que el movimiento original"
// @Success      200   {object}  dto.TransactionResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/transactions/{id} [put]
func (h *TransactionHandler) Update(c *fiber.Ctx) error {
	id, err := pathID(c, "transacción")
	if err != nil {
		return writeError(c, h.log, err)
	}
	var in dto.CreateTransactionRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if err := validateStruct(in); err != nil {
		return writeError(c, h.log, err)
	}
	txn, err := h.ledger.Update(c.UserContext(), id, toRecordInput(in, GetUserID(c)))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toTransactionResponse(txn))
}

// GetByID godoc
// @Summary      Obtener movimiento por ID
// @Tags         transactions
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del movimiento"
// @Success      200  {object}  dto.TransactionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/transactions/{id} [get]
func (h *TransactionHandler) GetByID(c *fiber.Ctx) error {
	id, err := pathID(c, "transacción")
	if err != nil {
		return writeError(c, h.log, err)
	}
	txn, err := h.ledger.Get(c.UserContext(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(toTransactionResponse(txn))
}

// List godoc
// @Summary      Listar movimientos por tipo y rango de fechas
// @Tags         transactions
// @Security     Bearer
// @Produce      json
// @Param        type    query  string  false  "SALE | PURCHASE | DAMAGE | RETURN"
// @Param        from    query  string  false  "RFC3339 o AAAA-MM-DD"
// @Param        to      query  string  false  "RFC3339 o AAAA-MM-DD (inclusive)"
// @Param        limit   query  int     false  "Límite (default 50)"
// @Param        offset  query  int     false  "Offset"
// @Success      200  {object}  dto.TransactionListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/transactions [get]
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	req := dto.ListTransactionsRequest{
		Type:        strings.ToUpper(strings.TrimSpace(c.Query("type"))),
		PageRequest: dto.PageRequest{Limit: c.QueryInt("limit", 0), Offset: c.QueryInt("offset", 0)},
	}
	var err error
	if req.From, err = queryTime(c, "from", false); err != nil {
		return writeError(c, h.log, err)
	}
	if req.To, err = queryTime(c, "to", true); err != nil {
		return writeError(c, h.log, err)
	}
	if err := validateStruct(req); err != nil {
		return writeError(c, h.log, err)
	}
	req.DefaultPage()

	list, err := h.ledger.List(c.UserContext(), repository.TransactionFilter{
		Type:   req.Type,
		From:   req.From,
		To:     req.To,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	items := make([]dto.TransactionResponse, 0, len(list))
	for _, t := range list {
		items = append(items, toTransactionResponse(t))
	}
	return c.JSON(dto.TransactionListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: req.Limit, Offset: req.Offset},
	})
}

// queryTime acepta RFC3339 o AAAA-MM-DD. Con endOfDay una fecha sin hora cubre el día completo.
func queryTime(c *fiber.Ctx, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, domain.NewValidationError(key, "formato de fecha inválido (RFC3339 o AAAA-MM-DD)")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
