package inventory

// DefaultLowStockThreshold umbral de stock bajo cuando no se configura otro.
const DefaultLowStockThreshold = 10

// Crossing cruce de umbral detectado al recalcular el stock de un producto.
type Crossing string

const (
	CrossingNone       Crossing = ""
	CrossingLowStock   Crossing = "LOW_STOCK"
	CrossingOutOfStock Crossing = "OUT_OF_STOCK"
)

// DetectCrossing compara el total anterior y el nuevo.
// Stock bajo: de > umbral a (0, umbral]. Agotado: de > 0 a 0. Sin cruce no hay aviso.
func DetectCrossing(previous, current, threshold int) Crossing {
	switch {
	case previous > 0 && current == 0:
		return CrossingOutOfStock
	case previous > threshold && current > 0 && current <= threshold:
		return CrossingLowStock
	}
	return CrossingNone
}

// StockLevel clasificación de un total para el resumen de inventario.
type StockLevel int

const (
	LevelHealthy StockLevel = iota
	LevelMinimum
	LevelOut
)

// Classify ubica un total respecto al umbral.
func Classify(total, threshold int) StockLevel {
	switch {
	case total <= 0:
		return LevelOut
	case total <= threshold:
		return LevelMinimum
	}
	return LevelHealthy
}

func (l StockLevel) String() string {
	switch l {
	case LevelMinimum:
		return "minimum"
	case LevelOut:
		return "out_of_stock"
	}
	return "healthy"
}
