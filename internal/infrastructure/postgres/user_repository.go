package postgres

import (
	"context"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

// UserRepo lectura del directorio de usuarios.
type UserRepo struct {
	q Querier
}

// NewUserRepository construye el adaptador de usuarios.
func NewUserRepository(q Querier) *UserRepo {
	return &UserRepo{q: q}
}

// ListIDsByRoles IDs de usuarios activos con alguno de los roles.
func (r *UserRepo) ListIDsByRoles(ctx context.Context, roles []string) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id FROM users
		WHERE active AND role = ANY($1)
		ORDER BY created_at, id`, roles)
	if err != nil {
		return nil, domain.NewPersistenceError("list users by role", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewPersistenceError("scan user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list users by role", err)
	}
	return ids, nil
}
