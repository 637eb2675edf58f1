package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound             = errors.New("recurso no encontrado")
	ErrInvalidInput         = errors.New("entrada inválida")
	ErrDuplicate            = errors.New("recurso duplicado")
	ErrUnauthorized         = errors.New("no autorizado")
	ErrForbidden            = errors.New("acceso denegado")
	ErrConflict             = errors.New("conflicto con el estado actual")
	ErrInsufficientStock    = errors.New("stock insuficiente")
	ErrConcurrencyConflict  = errors.New("el stock fue consumido por otra operación concurrente")
	ErrPersistence          = errors.New("error de persistencia")
	ErrOrderNumberExhausted = errors.New("no se pudo generar un número de orden único")
)

// ValidationError describe un dato de entrada inválido. Nunca se produce después de mutar estado.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError construye un ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validación [%s]: %s", e.Field, e.Message)
}

// Is permite errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// NotFoundError indica que una referencia (producto, proveedor, transacción, lote) no existe.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError construye un NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s no encontrado", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StockAttempt resume lo que se intentó asignar de un producto candidato.
type StockAttempt struct {
	ProductID string
	Requested int
	Available int
}

// InsufficientStockError indica que los lotes elegibles no cubren la cantidad pedida.
// Shortfall es la cantidad que faltó; Attempts lista los candidatos evaluados para diagnóstico.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Shortfall int
	Attempts  []StockAttempt
}

func (e *InsufficientStockError) Error() string {
	if len(e.Attempts) > 1 {
		ids := make([]string, 0, len(e.Attempts))
		for _, a := range e.Attempts {
			ids = append(ids, a.ProductID)
		}
		return fmt.Sprintf("stock insuficiente: faltan %d unidades entre los productos [%s]", e.Shortfall, strings.Join(ids, ", "))
	}
	return fmt.Sprintf("stock insuficiente para el producto %s: pedidas %d, faltan %d", e.ProductID, e.Requested, e.Shortfall)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// PersistenceError envuelve un fallo del almacenamiento. El núcleo no lo reintenta.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError envuelve err con la operación que falló; nil si err es nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
