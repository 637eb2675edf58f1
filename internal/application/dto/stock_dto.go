package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// DeductRequest body para POST /api/products/deduct.
type DeductRequest struct {
	ProductIDs []string         `json:"product_ids" validate:"required,min=1,dive,required,uuid"`
	Quantity   int              `json:"quantity" validate:"min=1"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
}

// ProductDeductionResponse descuento aplicado a un producto.
type ProductDeductionResponse struct {
	ProductID     string `json:"product_id"`
	Deducted      int    `json:"deducted"`
	TransactionID string `json:"transaction_id"`
	OrderNumber   string `json:"order_number"`
}

// StockAttemptResponse producto que no alcanzó a cubrir la cantidad pedida.
type StockAttemptResponse struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// DeductResponse resultado del descuento multiproducto.
type DeductResponse struct {
	Status            string                     `json:"status"`
	Requested         int                        `json:"requested"`
	TotalDeducted     int                        `json:"total_deducted"`
	RemainingToDeduct int                        `json:"remaining_to_deduct"`
	Products          []ProductDeductionResponse `json:"products"`
	Batches           []BatchUsageResponse       `json:"batches"`
	SupplierIDs       []string                   `json:"supplier_ids"`
	Attempts          []StockAttemptResponse     `json:"attempts,omitempty"`
	Skipped           []string                   `json:"skipped,omitempty"`
}

// InsufficientStockDetails detalle del error INSUFFICIENT_STOCK.
type InsufficientStockDetails struct {
	ProductID string                 `json:"product_id,omitempty"`
	Requested int                    `json:"requested"`
	Shortfall int                    `json:"shortfall"`
	Attempts  []StockAttemptResponse `json:"attempts,omitempty"`
}

// BatchResponse lote de un producto.
type BatchResponse struct {
	ID             string          `json:"id"`
	BatchNumber    string          `json:"batch_number"`
	ProductID      string          `json:"product_id"`
	SupplierID     string          `json:"supplier_id,omitempty"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	Stock          int             `json:"stock"`
	RemainingStock int             `json:"remaining_stock"`
	ExpiryDate     time.Time       `json:"expiry_date"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	Status         string          `json:"status"`
	Condition      string          `json:"condition"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ProductStockResponse stock recalculado de un producto con sus lotes.
type ProductStockResponse struct {
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	TotalStock int             `json:"total_stock"`
	StockLevel string          `json:"stock_level"`
	Batches    []BatchResponse `json:"batches"`
}

// BatchStatusRequest body para PATCH /api/batches/:id/status.
type BatchStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// ExpiryCheckResponse resultado del chequeo manual de vencimientos y stock.
type ExpiryCheckResponse struct {
	ExpiredBatches     int `json:"expired_batches"`
	ProductsRecomputed int `json:"products_recomputed"`
	Crossings          int `json:"crossings"`
}
