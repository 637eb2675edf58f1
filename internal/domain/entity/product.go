package entity

import "time"

// Estados de producto.
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// Product representa un producto del catálogo externo.
// TotalStock es una caché derivada de los lotes: sólo la escribe el agregador de stock.
type Product struct {
	ID         string
	Name       string
	Category   string
	Status     string
	TotalStock int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsActive indica si el producto participa en asignaciones.
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}
