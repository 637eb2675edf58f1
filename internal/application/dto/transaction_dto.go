package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionItemRequest línea de un movimiento.
type TransactionItemRequest struct {
	ProductID  string          `json:"product_id" validate:"required,uuid"`
	Quantity   int             `json:"quantity" validate:"min=1"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

// CreateTransactionRequest body para POST /api/transactions y PUT /api/transactions/:id.
type CreateTransactionRequest struct {
	Type            string                   `json:"type" validate:"required"`
	ReturnKind      string                   `json:"return_kind,omitempty"`
	Items           []TransactionItemRequest `json:"items" validate:"required,min=1,dive"`
	TotalAmount     decimal.Decimal          `json:"total_amount"`
	SupplierID      string                   `json:"supplier_id,omitempty" validate:"omitempty,uuid"`
	Notes           string                   `json:"notes,omitempty" validate:"max=500"`
	TransactionDate *time.Time               `json:"transaction_date,omitempty"`
}

// ListTransactionsRequest filtros de GET /api/transactions.
type ListTransactionsRequest struct {
	Type string     `query:"type"`
	From *time.Time `query:"from"`
	To   *time.Time `query:"to"`
	PageRequest
}

// TransactionItemResponse línea persistida.
type TransactionItemResponse struct {
	ProductID  string          `json:"product_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ExpiryDate *time.Time      `json:"expiry_date,omitempty"`
}

// BatchUsageResponse lote consumido (o creado, en compras) por el movimiento.
type BatchUsageResponse struct {
	BatchID      string `json:"batch_id"`
	ProductID    string `json:"product_id"`
	QuantityUsed int    `json:"quantity_used"`
}

// TransactionResponse movimiento confirmado.
type TransactionResponse struct {
	ID              string                    `json:"id"`
	OrderNumber     string                    `json:"order_number"`
	Type            string                    `json:"type"`
	ReturnKind      string                    `json:"return_kind,omitempty"`
	Items           []TransactionItemResponse `json:"items"`
	BatchesUsed     []BatchUsageResponse      `json:"batches_used"`
	TotalAmount     decimal.Decimal           `json:"total_amount"`
	SupplierID      string                    `json:"supplier_id,omitempty"`
	Notes           string                    `json:"notes,omitempty"`
	TransactionDate time.Time                 `json:"transaction_date"`
	CreatedBy       string                    `json:"created_by"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// TransactionListResponse lista paginada de movimientos.
type TransactionListResponse struct {
	Items []TransactionResponse `json:"items"`
	Page  PageResponse          `json:"page"`
}
