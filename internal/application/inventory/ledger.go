package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// Valores por defecto de LedgerConfig.
const (
	DefaultMaxAllocationRetries  = 3
	DefaultMaxParallelCandidates = 4
)

// LedgerConfig parámetros del libro de stock.
type LedgerConfig struct {
	MaxAllocationRetries  int
	MaxParallelCandidates int
}

// LedgerDeps dependencias del libro. Los repositorios son los de lectura (pool); las escrituras
// atómicas pasan por TxRunner.
type LedgerDeps struct {
	TxRunner     TxRunner
	BatchRepo    repository.BatchRepository
	TxRepo       repository.TransactionRepository
	ProductRepo  repository.ProductRepository
	SupplierRepo repository.SupplierRepository
	Allocator    *Allocator
	OrderNumbers *OrderNumberGenerator
	Aggregator   *Aggregator
	Dispatcher   *Dispatcher
	Sweeper      *Sweeper
	FollowUp     *FollowUp
	Metrics      Metrics
}

// RecordInput datos de una transacción a registrar o corregir.
type RecordInput struct {
	Type            string
	ReturnKind      string
	Items           []entity.TransactionItem
	TotalAmount     decimal.Decimal
	SupplierID      string
	Notes           string
	TransactionDate *time.Time
	CreatedBy       string
}

// Ledger registra ventas, compras, mermas y devoluciones aplicando sus efectos sobre los lotes
// de forma atómica. Tras el commit dispara el recálculo de stock y las notificaciones.
type Ledger struct {
	txRunner     TxRunner
	batchRepo    repository.BatchRepository
	txRepo       repository.TransactionRepository
	productRepo  repository.ProductRepository
	supplierRepo repository.SupplierRepository
	allocator    *Allocator
	orderNumbers *OrderNumberGenerator
	aggregator   *Aggregator
	dispatcher   *Dispatcher
	sweeper      *Sweeper
	followUp     *FollowUp
	metrics      Metrics
	cfg          LedgerConfig
	now          func() time.Time
	log          zerolog.Logger
}

// NewLedger construye el libro de stock.
func NewLedger(deps LedgerDeps, cfg LedgerConfig, log zerolog.Logger) *Ledger {
	if cfg.MaxAllocationRetries < 0 {
		cfg.MaxAllocationRetries = DefaultMaxAllocationRetries
	}
	if cfg.MaxParallelCandidates <= 0 {
		cfg.MaxParallelCandidates = DefaultMaxParallelCandidates
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	if deps.OrderNumbers == nil {
		deps.OrderNumbers = NewOrderNumberGenerator(DefaultOrderNumberAttempts)
	}
	return &Ledger{
		txRunner:     deps.TxRunner,
		batchRepo:    deps.BatchRepo,
		txRepo:       deps.TxRepo,
		productRepo:  deps.ProductRepo,
		supplierRepo: deps.SupplierRepo,
		allocator:    deps.Allocator,
		orderNumbers: deps.OrderNumbers,
		aggregator:   deps.Aggregator,
		dispatcher:   deps.Dispatcher,
		sweeper:      deps.Sweeper,
		followUp:     deps.FollowUp,
		metrics:      deps.Metrics,
		cfg:          cfg,
		now:          time.Now,
		log:          log,
	}
}

// WithClock reemplaza el reloj.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Record valida y registra una transacción. Si algún producto no alcanza, no se escribe nada.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (*entity.Transaction, error) {
	now := l.now()
	in = normalizeInput(in)
	if err := validateInput(in); err != nil {
		l.metrics.ObserveTransaction(in.Type, "invalid")
		return nil, err
	}
	if err := l.checkReferences(ctx, in, now); err != nil {
		l.metrics.ObserveTransaction(in.Type, "invalid")
		return nil, err
	}
	l.sweepBeforeConsumption(ctx, in, now)

	txn := &entity.Transaction{
		ID:              uuid.New().String(),
		Type:            in.Type,
		ReturnKind:      in.ReturnKind,
		Items:           append([]entity.TransactionItem(nil), in.Items...),
		TotalAmount:     in.TotalAmount.Round(2),
		SupplierID:      in.SupplierID,
		Notes:           in.Notes,
		TransactionDate: now,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.TransactionDate != nil {
		txn.TransactionDate = *in.TransactionDate
	}

	err := l.withRetry(ctx, func() error {
		return l.txRunner.Run(ctx, func(
			batchRepo repository.BatchRepository,
			txRepo repository.TransactionRepository,
			_ repository.ProductRepository,
		) error {
			orderNumber, err := l.orderNumbers.Next(ctx, txRepo, txn.Type, now)
			if err != nil {
				return err
			}
			txn.OrderNumber = orderNumber
			txn.BatchesUsed = nil
			used, err := l.apply(ctx, batchRepo, txn, now)
			if err != nil {
				return err
			}
			txn.BatchesUsed = used
			return txRepo.Create(ctx, txn)
		})
	})
	if err != nil {
		l.observeFailure(in.Type, err)
		return nil, err
	}

	l.metrics.ObserveTransaction(txn.Type, "ok")
	l.log.Info().
		Str("transaction_id", txn.ID).
		Str("order_number", txn.OrderNumber).
		Str("type", txn.Type).
		Int("batches", len(txn.BatchesUsed)).
		Msg("transacción registrada")
	l.afterCommit(ctx, txn, txn.ProductIDs(), true)
	return txn, nil
}

// Update corrige una transacción: revierte sus efectos sobre los lotes y aplica los nuevos ítems
// en la misma tx. El número de orden se conserva.
func (l *Ledger) Update(ctx context.Context, id string, in RecordInput) (*entity.Transaction, error) {
	now := l.now()
	in = normalizeInput(in)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := l.checkReferences(ctx, in, now); err != nil {
		return nil, err
	}
	l.sweepBeforeConsumption(ctx, in, now)

	var updated *entity.Transaction
	var touched []string
	err := l.withRetry(ctx, func() error {
		return l.txRunner.Run(ctx, func(
			batchRepo repository.BatchRepository,
			txRepo repository.TransactionRepository,
			_ repository.ProductRepository,
		) error {
			old, err := txRepo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if old == nil {
				return domain.NewNotFoundError("transacción", id)
			}
			if old.Type != in.Type {
				return domain.NewValidationError("type", "no se puede cambiar el tipo de una transacción")
			}
			if old.ReturnKind != in.ReturnKind {
				return domain.NewValidationError("returnKind", "no se puede cambiar la clase de devolución")
			}
			if err := l.reverse(ctx, batchRepo, old); err != nil {
				return err
			}

			next := *old
			next.Items = append([]entity.TransactionItem(nil), in.Items...)
			next.TotalAmount = in.TotalAmount.Round(2)
			next.SupplierID = in.SupplierID
			next.Notes = in.Notes
			next.UpdatedAt = now
			if in.TransactionDate != nil {
				next.TransactionDate = *in.TransactionDate
			}
			used, err := l.apply(ctx, batchRepo, &next, now)
			if err != nil {
				return err
			}
			next.BatchesUsed = used
			if err := txRepo.Update(ctx, &next); err != nil {
				return err
			}
			updated = &next
			touched = mergeIDs(old.ProductIDs(), next.ProductIDs())
			return nil
		})
	})
	if err != nil {
		l.observeFailure(in.Type, err)
		return nil, err
	}

	l.metrics.ObserveTransaction(updated.Type, "updated")
	l.log.Info().Str("transaction_id", updated.ID).Str("order_number", updated.OrderNumber).Msg("transacción corregida")
	l.afterCommit(ctx, updated, touched, false)
	return updated, nil
}

// Get obtiene una transacción por ID.
func (l *Ledger) Get(ctx context.Context, id string) (*entity.Transaction, error) {
	t, err := l.txRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.NewNotFoundError("transacción", id)
	}
	return t, nil
}

// List lista transacciones por tipo y rango de fechas, las más recientes primero.
func (l *Ledger) List(ctx context.Context, f repository.TransactionFilter) ([]*entity.Transaction, error) {
	if f.Type != "" && !entity.IsValidTransactionType(f.Type) {
		return nil, domain.NewValidationError("type", "tipo de transacción inválido")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, domain.NewValidationError("to", "la fecha final es anterior a la inicial")
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return l.txRepo.List(ctx, f)
}

// apply aplica los efectos de txn sobre los lotes y devuelve el registro de lotes usados.
func (l *Ledger) apply(ctx context.Context, batchRepo repository.BatchRepository, txn *entity.Transaction, now time.Time) ([]entity.BatchUsage, error) {
	used := make([]entity.BatchUsage, 0, len(txn.Items))
	switch {
	case txn.Type == entity.TransactionTypePurchase:
		for _, it := range txn.Items {
			b, err := l.createBatch(ctx, batchRepo, txn, it, now)
			if err != nil {
				return nil, err
			}
			used = append(used, entity.BatchUsage{BatchID: b.ID, ProductID: b.ProductID, QuantityUsed: b.Stock})
		}
	default:
		// Los lotes se bloquean en orden de producto para que dos ventas con los mismos
		// productos en distinto orden no se esperen mutuamente; el registro conserva el orden de ítems.
		perItem := make([][]entity.BatchUsage, len(txn.Items))
		for _, i := range itemsByProduct(txn.Items) {
			it := txn.Items[i]
			var alloc Allocation
			var err error
			if txn.IsRestock() {
				alloc, err = l.allocator.Restock(ctx, batchRepo, it.ProductID, it.Quantity, now)
			} else {
				alloc, err = l.allocator.Allocate(ctx, batchRepo, it.ProductID, it.Quantity, now)
			}
			if err != nil {
				return nil, err
			}
			perItem[i] = alloc.Usages()
		}
		for _, u := range perItem {
			used = append(used, u...)
		}
	}
	return used, nil
}

// itemsByProduct índices de items ordenados por producto (estable ante productos repetidos).
func itemsByProduct(items []entity.TransactionItem) []int {
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return items[idx[a]].ProductID < items[idx[b]].ProductID })
	return idx
}

// usagesByBatch copia de usages ordenada por lote, para bloquear filas en orden fijo al revertir.
func usagesByBatch(usages []entity.BatchUsage) []entity.BatchUsage {
	out := append([]entity.BatchUsage(nil), usages...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].BatchID < out[b].BatchID })
	return out
}

func (l *Ledger) createBatch(ctx context.Context, batchRepo repository.BatchRepository, txn *entity.Transaction, it entity.TransactionItem, now time.Time) (*entity.Batch, error) {
	seq, err := batchRepo.NextSequence(ctx, it.ProductID, now)
	if err != nil {
		return nil, err
	}
	b := &entity.Batch{
		ID:             uuid.New().String(),
		BatchNumber:    inventory.BatchNumber(it.ProductID, now, seq),
		ProductID:      it.ProductID,
		SupplierID:     txn.SupplierID,
		TransactionID:  txn.ID,
		Stock:          it.Quantity,
		RemainingStock: it.Quantity,
		ExpiryDate:     *it.ExpiryDate,
		PurchaseDate:   txn.TransactionDate,
		CostPrice:      it.UnitPrice.Round(2),
		Status:         entity.BatchStatusActive,
		Condition:      entity.BatchConditionGood,
		CreatedBy:      txn.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := batchRepo.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// reverse deshace los efectos previos de old sobre los lotes.
func (l *Ledger) reverse(ctx context.Context, batchRepo repository.BatchRepository, old *entity.Transaction) error {
	switch {
	case old.Type == entity.TransactionTypePurchase:
		batches, err := batchRepo.ListByTransaction(ctx, old.ID)
		if err != nil {
			return err
		}
		for _, b := range batches {
			if !b.IsUntouched() {
				return fmt.Errorf("el lote %s ya fue consumido: %w", b.BatchNumber, domain.ErrConflict)
			}
		}
		return batchRepo.DeleteByTransaction(ctx, old.ID)
	case old.IsRestock():
		for _, u := range usagesByBatch(old.BatchesUsed) {
			ok, err := batchRepo.ForceDecrement(ctx, u.BatchID, u.QuantityUsed)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("las unidades devueltas al lote %s ya fueron consumidas: %w", u.BatchID, domain.ErrConflict)
			}
		}
	default:
		for _, u := range usagesByBatch(old.BatchesUsed) {
			ok, err := batchRepo.Increment(ctx, u.BatchID, u.QuantityUsed)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no se pudo restituir el lote %s: %w", u.BatchID, domain.ErrConflict)
			}
		}
	}
	return nil
}

// withRetry repite fn desde cero cuando otra operación consumió el stock leído.
func (l *Ledger) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= l.cfg.MaxAllocationRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		l.metrics.ObserveRetry("allocation")
		l.log.Warn().Err(err).Int("attempt", attempt+1).Msg("conflicto de concurrencia, reintentando")
	}
	return err
}

// sweepBeforeConsumption vence los lotes de los productos a consumir. Un fallo no bloquea
// la asignación: ListEligible ya excluye lotes vencidos.
func (l *Ledger) sweepBeforeConsumption(ctx context.Context, in RecordInput, now time.Time) {
	if l.sweeper == nil || !entity.IsConsumption(in.Type, in.ReturnKind) {
		return
	}
	seen := make(map[string]struct{}, len(in.Items))
	for _, it := range in.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		if _, err := l.sweeper.SweepProduct(ctx, it.ProductID, now); err != nil {
			l.log.Warn().Err(err).Str("product_id", it.ProductID).Msg("barrido de vencimientos previo falló")
		}
	}
}

// afterCommit recalcula el stock de los productos tocados y emite los avisos correspondientes.
// announce publica además el aviso de venta nueva.
func (l *Ledger) afterCommit(ctx context.Context, txn *entity.Transaction, productIDs []string, announce bool) {
	for _, productID := range productIDs {
		l.followUp.Do(ctx, "recompute_stock", func(ctx context.Context) error {
			change, err := l.aggregator.Recompute(ctx, productID)
			if err != nil {
				return err
			}
			l.followUp.Do(ctx, "notify_stock", func(ctx context.Context) error {
				return l.aggregator.Publish(ctx, change, txn.CreatedBy)
			})
			return nil
		})
	}
	if announce && txn.Type == entity.TransactionTypeSale {
		in := NotifyInput{
			Message:       fmt.Sprintf("Nueva venta %s registrada por un total de %s", txn.OrderNumber, txn.TotalAmount.StringFixed(2)),
			Type:          entity.NotificationTypeSystem,
			RelatedEntity: txn.ID,
			EntityType:    entity.EntityTypeTransaction,
			CreatedBy:     txn.CreatedBy,
		}
		l.followUp.Do(ctx, "notify_order", func(ctx context.Context) error {
			_, err := l.dispatcher.Notify(ctx, in)
			return err
		})
	}
}

func (l *Ledger) observeFailure(txType string, err error) {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		l.metrics.ObserveShortfall(txType)
		l.metrics.ObserveTransaction(txType, "insufficient_stock")
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrNotFound):
		l.metrics.ObserveTransaction(txType, "invalid")
	case errors.Is(err, domain.ErrConcurrencyConflict):
		l.metrics.ObserveTransaction(txType, "conflict")
	default:
		l.metrics.ObserveTransaction(txType, "error")
		l.log.Error().Err(err).Str("type", txType).Msg("error registrando transacción")
	}
}

// checkReferences verifica proveedor, vencimientos de compra y existencia de productos.
func (l *Ledger) checkReferences(ctx context.Context, in RecordInput, now time.Time) error {
	if in.Type == entity.TransactionTypePurchase {
		if in.SupplierID == "" {
			return domain.NewValidationError("supplierId", "el proveedor es obligatorio en compras")
		}
		s, err := l.supplierRepo.GetByID(ctx, in.SupplierID)
		if err != nil {
			return err
		}
		if s == nil {
			return domain.NewNotFoundError("proveedor", in.SupplierID)
		}
		for i, it := range in.Items {
			if it.ExpiryDate == nil || !it.ExpiryDate.After(now) {
				return domain.NewValidationError(fmt.Sprintf("items[%d].expiryDate", i), "la fecha de vencimiento debe ser futura")
			}
		}
	}
	seen := make(map[string]struct{}, len(in.Items))
	for _, it := range in.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		p, err := l.productRepo.GetByID(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.NewNotFoundError("producto", it.ProductID)
		}
	}
	return nil
}

func normalizeInput(in RecordInput) RecordInput {
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	in.ReturnKind = strings.ToUpper(strings.TrimSpace(in.ReturnKind))
	if in.Type == entity.TransactionTypeReturn && in.ReturnKind == "" {
		in.ReturnKind = entity.ReturnKindSupplier
	}
	return in
}

// validateInput valida forma y montos sin tocar almacenamiento.
func validateInput(in RecordInput) error {
	if !entity.IsValidTransactionType(in.Type) {
		return domain.NewValidationError("type", "tipo de transacción inválido")
	}
	switch {
	case in.Type == entity.TransactionTypeReturn:
		if in.ReturnKind != entity.ReturnKindSupplier && in.ReturnKind != entity.ReturnKindCustomer {
			return domain.NewValidationError("returnKind", "la clase de devolución debe ser SUPPLIER o CUSTOMER")
		}
	case in.ReturnKind != "":
		return domain.NewValidationError("returnKind", "sólo las devoluciones llevan clase")
	}
	if len(in.Items) == 0 {
		return domain.NewValidationError("items", "la transacción debe tener al menos un ítem")
	}
	sum := decimal.Zero
	for i, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return domain.NewValidationError(fmt.Sprintf("items[%d].productId", i), "el producto es obligatorio")
		}
		if it.Quantity < 1 {
			return domain.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "la cantidad debe ser al menos 1")
		}
		if it.UnitPrice.IsNegative() {
			return domain.NewValidationError(fmt.Sprintf("items[%d].unitPrice", i), "el precio unitario no puede ser negativo")
		}
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !sum.Round(2).Equal(in.TotalAmount.Round(2)) {
		return domain.NewValidationError("totalAmount",
			fmt.Sprintf("el total %s no coincide con la suma de los ítems %s", in.TotalAmount.StringFixed(2), sum.StringFixed(2)))
	}
	return nil
}

func mergeIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
