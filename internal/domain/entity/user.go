package entity

// Roles válidos para User.
const (
	RoleAdmin    = "ADMIN"
	RoleStaff    = "STAFF"
	RoleCustomer = "CUSTOMER"
)

// StaffRoles destinatarios por defecto de las alertas de inventario.
var StaffRoles = []string{RoleAdmin, RoleStaff}

// User usuario del directorio externo; el libro sólo necesita su rol para resolver destinatarios.
type User struct {
	ID     string
	Name   string
	Role   string
	Active bool
}
