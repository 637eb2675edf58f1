package repository

import "context"

// UserRepository directorio de usuarios (sólo lectura).
type UserRepository interface {
	// ListIDsByRoles devuelve los IDs de usuarios activos con alguno de los roles dados.
	ListIDsByRoles(ctx context.Context, roles []string) ([]string, error)
}
