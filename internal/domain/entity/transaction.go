package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de transacción del libro de stock.
const (
	TransactionTypeSale     = "SALE"
	TransactionTypePurchase = "PURCHASE"
	TransactionTypeDamage   = "DAMAGE"
	TransactionTypeReturn   = "RETURN"
)

// Clases de devolución: al proveedor consume lotes, del cliente repone lotes.
const (
	ReturnKindSupplier = "SUPPLIER"
	ReturnKindCustomer = "CUSTOMER"
)

// TransactionItem línea de una transacción.
type TransactionItem struct {
	ProductID  string
	Quantity   int
	UnitPrice  decimal.Decimal
	ExpiryDate *time.Time // sólo PURCHASE: vencimiento del lote a crear
}

// BatchUsage registro de auditoría: qué lote cubrió la transacción y con cuántas unidades.
type BatchUsage struct {
	BatchID      string
	ProductID    string
	QuantityUsed int
}

// Transaction evento de intercambio inmutable (venta, compra, merma o devolución).
type Transaction struct {
	ID              string
	OrderNumber     string
	Type            string
	ReturnKind      string
	Items           []TransactionItem
	BatchesUsed     []BatchUsage
	TotalAmount     decimal.Decimal
	SupplierID      string
	Notes           string
	TransactionDate time.Time
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsConsumption indica si la transacción descuenta stock de los lotes.
func (t *Transaction) IsConsumption() bool {
	return IsConsumption(t.Type, t.ReturnKind)
}

// IsRestock indica si la transacción repone stock en lotes existentes (devolución de cliente).
func (t *Transaction) IsRestock() bool {
	return t.Type == TransactionTypeReturn && t.ReturnKind == ReturnKindCustomer
}

// ProductIDs devuelve los productos referenciados por los ítems, sin repetidos y en orden de aparición.
func (t *Transaction) ProductIDs() []string {
	seen := make(map[string]struct{}, len(t.Items))
	ids := make([]string, 0, len(t.Items))
	for _, it := range t.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

// IsConsumption evalúa tipo y clase de devolución.
func IsConsumption(txType, returnKind string) bool {
	switch txType {
	case TransactionTypeSale, TransactionTypeDamage:
		return true
	case TransactionTypeReturn:
		return returnKind != ReturnKindCustomer
	}
	return false
}

// IsValidTransactionType valida el tipo.
func IsValidTransactionType(t string) bool {
	switch t {
	case TransactionTypeSale, TransactionTypePurchase, TransactionTypeDamage, TransactionTypeReturn:
		return true
	}
	return false
}
