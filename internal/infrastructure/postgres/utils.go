package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/stockledger-api/internal/domain"
)

// SQLSTATE que abortan la tx pero admiten repetirla desde cero.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}

// isRetryable indica interbloqueo o fallo de serialización.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeDeadlockDetected || pgErr.Code == codeSerializationFailure
	}
	return false
}

// storeError envuelve un error del driver. Si la tx puede repetirse se reporta como
// ErrConcurrencyConflict para que el libro reintente; si no, como PersistenceError.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isRetryable(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrConcurrencyConflict, err)
	}
	return domain.NewPersistenceError(op, err)
}

// nullIfEmpty convierte "" en NULL para columnas opcionales.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
