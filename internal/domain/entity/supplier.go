package entity

// Supplier proveedor del directorio externo (sólo lectura para el libro de stock).
type Supplier struct {
	ID     string
	Name   string
	Status string
}
