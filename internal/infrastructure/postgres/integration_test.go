package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	app "github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
	"github.com/jhoicas/stockledger-api/internal/infrastructure/postgres"
)

// newTestPool levanta PostgreSQL en un contenedor, aplica las migraciones y devuelve el pool.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integración con PostgreSQL omitida en modo -short")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("docker no disponible: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPoolFromDSN(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	migrator, err := postgres.NewMigrator(pool, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	v, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)
	return pool
}

type fixture struct {
	pool       *pgxpool.Pool
	supplierID string
	adminID    string
	staffID    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool := newTestPool(t)
	f := &fixture{pool: pool, supplierID: uuid.NewString(), adminID: uuid.NewString(), staffID: uuid.NewString()}
	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO suppliers (id, name) VALUES ($1, 'Distribuidora Norte')`, f.supplierID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, active) VALUES
		($1, 'Admin', 'admin@test.local', 'ADMIN', TRUE),
		($2, 'Staff', 'staff@test.local', 'STAFF', TRUE),
		($3, 'Retirado', 'old@test.local', 'STAFF', FALSE),
		($4, 'Cliente', 'client@test.local', 'CUSTOMER', TRUE)`,
		f.adminID, f.staffID, uuid.NewString(), uuid.NewString())
	require.NoError(t, err)
	return f
}

func (f *fixture) product(t *testing.T, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := f.pool.Exec(context.Background(), `INSERT INTO products (id, name) VALUES ($1, $2)`, id, name)
	require.NoError(t, err)
	return id
}

func (f *fixture) batch(t *testing.T, productID string, qty int, purchase, expiry time.Time) *entity.Batch {
	t.Helper()
	b := &entity.Batch{
		ID:             uuid.NewString(),
		BatchNumber:    "B-" + uuid.NewString()[:8],
		ProductID:      productID,
		SupplierID:     f.supplierID,
		Stock:          qty,
		RemainingStock: qty,
		ExpiryDate:     expiry,
		PurchaseDate:   purchase,
		CostPrice:      decimal.RequireFromString("1.50"),
		Status:         entity.BatchStatusActive,
		Condition:      entity.BatchConditionGood,
		CreatedBy:      f.adminID,
		CreatedAt:      purchase,
		UpdatedAt:      purchase,
	}
	require.NoError(t, postgres.NewBatchRepository(f.pool).Create(context.Background(), b))
	return b
}

// ──────────────────────────────────────────────────────────────────────────────
// Lotes
// ──────────────────────────────────────────────────────────────────────────────

func TestBatchRepo_ConditionalDecrement_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	productID := f.product(t, "Leche")
	b := f.batch(t, productID, 10, now.AddDate(0, 0, -3), now.AddDate(0, 1, 0))
	repo := postgres.NewBatchRepository(f.pool)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done, err := repo.ConditionalDecrement(ctx, b.ID, 1, now)
			assert.NoError(t, err)
			if done {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), ok.Load())
	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingStock)
}

func TestBatchRepo_ConditionalDecrement_RejectsExpiredAndInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	productID := f.product(t, "Yogur")
	expired := f.batch(t, productID, 5, now.AddDate(0, 0, -10), now.Add(-time.Minute))
	inactive := f.batch(t, productID, 5, now.AddDate(0, 0, -10), now.AddDate(0, 1, 0))
	repo := postgres.NewBatchRepository(f.pool)
	require.NoError(t, repo.SetStatus(ctx, inactive.ID, entity.BatchStatusInactive))

	done, err := repo.ConditionalDecrement(ctx, expired.ID, 1, now)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = repo.ConditionalDecrement(ctx, inactive.ID, 1, now)
	require.NoError(t, err)
	assert.False(t, done)

	eligible, err := repo.ListEligible(ctx, productID, now)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestBatchRepo_ExpireDue_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	p1 := f.product(t, "Queso")
	p2 := f.product(t, "Pan")
	due1 := f.batch(t, p1, 4, now.AddDate(0, 0, -20), now.Add(-time.Hour))
	f.batch(t, p1, 4, now.AddDate(0, 0, -20), now.AddDate(0, 0, 5))
	due2 := f.batch(t, p2, 2, now.AddDate(0, 0, -20), now)
	repo := postgres.NewBatchRepository(f.pool)

	// Caso 1: restringido a un producto
	flipped, err := repo.ExpireDue(ctx, p1, now)
	require.NoError(t, err)
	require.Len(t, flipped, 1)
	assert.Equal(t, due1.ID, flipped[0].ID)
	assert.Equal(t, entity.BatchConditionExpired, flipped[0].Condition)
	assert.Equal(t, entity.BatchStatusInactive, flipped[0].Status)

	// Caso 2: barrido global toma el resto (expiry == now cuenta como vencido)
	flipped, err = repo.ExpireDue(ctx, "", now)
	require.NoError(t, err)
	require.Len(t, flipped, 1)
	assert.Equal(t, due2.ID, flipped[0].ID)

	// Caso 3: segunda corrida no cambia nada
	flipped, err = repo.ExpireDue(ctx, "", now)
	require.NoError(t, err)
	assert.Empty(t, flipped)

	// El total incluye lotes vencidos.
	total, err := repo.SumRemaining(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, 8, total)
}

func TestBatchRepo_NextSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)
	productID := f.product(t, "Arroz")
	repo := postgres.NewBatchRepository(f.pool)

	seq, err := repo.NextSequence(ctx, productID, day)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	for _, n := range []int{1, 2, 7} {
		b := f.batch(t, productID, 1, day, day.AddDate(1, 0, 0))
		_, err := f.pool.Exec(ctx, `UPDATE batches SET batch_number = $2 WHERE id = $1`, b.ID, inventory.BatchNumber(productID, day, n))
		require.NoError(t, err)
	}
	seq, err = repo.NextSequence(ctx, productID, day)
	require.NoError(t, err)
	assert.Equal(t, 8, seq)

	seq, err = repo.NextSequence(ctx, productID, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

// ──────────────────────────────────────────────────────────────────────────────
// Transacciones
// ──────────────────────────────────────────────────────────────────────────────

func TestTxRunner_RollbackOnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	productID := f.product(t, "Aceite")
	b := f.batch(t, productID, 5, now.AddDate(0, 0, -1), now.AddDate(0, 2, 0))
	runner := postgres.NewTxRunner(f.pool)

	err := runner.Run(ctx, func(batchRepo repository.BatchRepository, _ repository.TransactionRepository, _ repository.ProductRepository) error {
		done, err := batchRepo.ConditionalDecrement(ctx, b.ID, 3, now)
		require.NoError(t, err)
		require.True(t, done)
		return domain.ErrInsufficientStock
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	got, err := postgres.NewBatchRepository(f.pool).GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RemainingStock)
}

// Dos tx bloquean los mismos lotes en orden inverso: PostgreSQL aborta una con 40P01
// y el runner la reporta como ErrConcurrencyConflict para que el libro la repita.
func TestTxRunner_DeadlockIsConcurrencyConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	p1 := f.product(t, "Sal")
	p2 := f.product(t, "Azúcar")
	b1 := f.batch(t, p1, 10, now.AddDate(0, 0, -1), now.AddDate(0, 2, 0))
	b2 := f.batch(t, p2, 10, now.AddDate(0, 0, -1), now.AddDate(0, 2, 0))
	runner := postgres.NewTxRunner(f.pool)

	var ready sync.WaitGroup
	ready.Add(2)
	lockBoth := func(first, second string) error {
		return runner.Run(ctx, func(batchRepo repository.BatchRepository, _ repository.TransactionRepository, _ repository.ProductRepository) error {
			if _, err := batchRepo.ConditionalDecrement(ctx, first, 1, now); err != nil {
				ready.Done()
				return err
			}
			ready.Done()
			ready.Wait()
			_, err := batchRepo.ConditionalDecrement(ctx, second, 1, now)
			return err
		})
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = lockBoth(b1.ID, b2.ID)
	}()
	go func() {
		defer wg.Done()
		errs[1] = lockBoth(b2.ID, b1.ID)
	}()
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			failed++
			assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
			assert.NotErrorIs(t, err, domain.ErrPersistence)
		}
	}
	assert.Equal(t, 1, failed, "exactamente una tx es abortada")
}

func TestTransactionRepo_CreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	productID := f.product(t, "Harina")
	b := f.batch(t, productID, 5, now.AddDate(0, 0, -1), now.AddDate(0, 2, 0))
	repo := postgres.NewTransactionRepository(f.pool)

	txn := &entity.Transaction{
		ID:              uuid.NewString(),
		OrderNumber:     "ORD-20260310-100000123",
		Type:            entity.TransactionTypeSale,
		Items:           []entity.TransactionItem{{ProductID: productID, Quantity: 2, UnitPrice: decimal.RequireFromString("3.25")}},
		BatchesUsed:     []entity.BatchUsage{{BatchID: b.ID, ProductID: productID, QuantityUsed: 2}},
		TotalAmount:     decimal.RequireFromString("6.50"),
		TransactionDate: now,
		CreatedBy:       f.staffID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, repo.Create(ctx, txn))

	exists, err := repo.ExistsOrderNumber(ctx, txn.OrderNumber)
	require.NoError(t, err)
	assert.True(t, exists)

	dup := *txn
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, &dup), domain.ErrConcurrencyConflict)

	got, err := repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, txn.OrderNumber, got.OrderNumber)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("3.25")))
	assert.Equal(t, txn.BatchesUsed, got.BatchesUsed)

	txn.Items[0].Quantity = 1
	txn.BatchesUsed[0].QuantityUsed = 1
	txn.TotalAmount = decimal.RequireFromString("3.25")
	require.NoError(t, repo.Update(ctx, txn))

	got, err = repo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Items[0].Quantity)
	assert.Equal(t, 1, got.BatchesUsed[0].QuantityUsed)

	list, err := repo.List(ctx, repository.TransactionFilter{Type: entity.TransactionTypeSale, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	missing, err := repo.GetByID(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// ──────────────────────────────────────────────────────────────────────────────
// Notificaciones
// ──────────────────────────────────────────────────────────────────────────────

func TestNotificationRepo_AddRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	repo := postgres.NewNotificationRepository(f.pool)

	n := &entity.Notification{
		ID:            uuid.NewString(),
		Message:       "Stock bajo: Leche",
		Type:          entity.NotificationTypeLowStock,
		RelatedEntity: uuid.NewString(),
		EntityType:    entity.EntityTypeProduct,
		Recipients:    []string{f.adminID, f.staffID},
		CreatedAt:     now,
	}
	require.NoError(t, repo.Create(ctx, n))

	unread, err := repo.ListForUser(ctx, f.staffID, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	isRead, err := repo.AddRead(ctx, n.ID, f.staffID, now)
	require.NoError(t, err)
	assert.False(t, isRead)

	// Idempotente por usuario.
	isRead, err = repo.AddRead(ctx, n.ID, f.staffID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, isRead)

	unread, err = repo.ListForUser(ctx, f.staffID, true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	isRead, err = repo.AddRead(ctx, n.ID, f.adminID, now)
	require.NoError(t, err)
	assert.True(t, isRead)

	got, err := repo.GetByID(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.Len(t, got.ReadBy, 2)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestUserRepo_ListIDsByRoles(t *testing.T) {
	f := newFixture(t)
	ids, err := postgres.NewUserRepository(f.pool).ListIDsByRoles(context.Background(), entity.StaffRoles)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{f.adminID, f.staffID}, ids)
}

// ──────────────────────────────────────────────────────────────────────────────
// Ledger sobre PostgreSQL
// ──────────────────────────────────────────────────────────────────────────────

func newLedger(f *fixture) (*app.Ledger, *app.FollowUp) {
	log := zerolog.Nop()
	followUp := app.NewFollowUp(1, 0, nil, log)
	products := postgres.NewProductRepository(f.pool)
	batches := postgres.NewBatchRepository(f.pool)
	runner := postgres.NewTxRunner(f.pool)
	dispatcher := app.NewDispatcher(postgres.NewNotificationRepository(f.pool), postgres.NewUserRepository(f.pool), nil, log)
	aggregator := app.NewAggregator(runner, products, dispatcher, inventory.DefaultLowStockThreshold, log)
	sweeper := app.NewSweeper(batches, products, dispatcher, followUp, nil, log)
	ledger := app.NewLedger(app.LedgerDeps{
		TxRunner:     runner,
		BatchRepo:    batches,
		TxRepo:       postgres.NewTransactionRepository(f.pool),
		ProductRepo:  products,
		SupplierRepo: postgres.NewSupplierRepository(f.pool),
		Allocator:    app.NewAllocator(inventory.PolicyFIFO),
		OrderNumbers: app.NewOrderNumberGenerator(app.DefaultOrderNumberAttempts),
		Aggregator:   aggregator,
		Dispatcher:   dispatcher,
		Sweeper:      sweeper,
		FollowUp:     followUp,
	}, app.LedgerConfig{MaxAllocationRetries: 5, MaxParallelCandidates: 4}, log)
	return ledger, followUp
}

func TestLedger_PurchaseThenConcurrentSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.product(t, "Café")
	ledger, followUp := newLedger(f)
	expiry := time.Now().UTC().AddDate(0, 6, 0)

	purchase, err := ledger.Record(ctx, app.RecordInput{
		Type:        entity.TransactionTypePurchase,
		SupplierID:  f.supplierID,
		Items:       []entity.TransactionItem{{ProductID: productID, Quantity: 12, UnitPrice: decimal.RequireFromString("2.00"), ExpiryDate: &expiry}},
		TotalAmount: decimal.RequireFromString("24.00"),
		CreatedBy:   f.adminID,
	})
	require.NoError(t, err)
	require.Len(t, purchase.BatchesUsed, 1)
	followUp.Wait()

	// 15 ventas de 1 unidad compiten por 12 unidades: exactamente 12 confirman.
	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Record(ctx, app.RecordInput{
				Type:        entity.TransactionTypeSale,
				Items:       []entity.TransactionItem{{ProductID: productID, Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")}},
				TotalAmount: decimal.RequireFromString("5.00"),
				CreatedBy:   f.staffID,
			})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()
	followUp.Wait()

	assert.Equal(t, int32(12), ok.Load())
	assert.Equal(t, int32(3), short.Load())

	product, err := postgres.NewProductRepository(f.pool).GetByID(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, product.TotalStock)

	notes, err := postgres.NewNotificationRepository(f.pool).ListForUser(ctx, f.adminID, true, 100, 0)
	require.NoError(t, err)
	var outOfStock int
	for _, n := range notes {
		if n.Type == entity.NotificationTypeLowStock && n.RelatedEntity == productID {
			outOfStock++
		}
	}
	assert.GreaterOrEqual(t, outOfStock, 1)
}

// Ventas de los mismos dos productos listados en orden opuesto, en paralelo: todas confirman.
func TestLedger_OppositeOrderSalesAllCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	p1 := f.product(t, "Lentejas")
	p2 := f.product(t, "Garbanzos")
	b1 := f.batch(t, p1, 50, now.AddDate(0, 0, -2), now.AddDate(0, 3, 0))
	b2 := f.batch(t, p2, 50, now.AddDate(0, 0, -2), now.AddDate(0, 3, 0))
	ledger, followUp := newLedger(f)

	saleOf := func(first, second string) app.RecordInput {
		return app.RecordInput{
			Type: entity.TransactionTypeSale,
			Items: []entity.TransactionItem{
				{ProductID: first, Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
				{ProductID: second, Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
			},
			TotalAmount: decimal.RequireFromString("2.00"),
			CreatedBy:   f.staffID,
		}
	}

	const pairs = 10
	errs := make(chan error, 2*pairs)
	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		for _, order := range [][2]string{{p1, p2}, {p2, p1}} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.Record(ctx, saleOf(order[0], order[1]))
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)
	followUp.Wait()

	for err := range errs {
		assert.NoError(t, err)
	}
	batches := postgres.NewBatchRepository(f.pool)
	got1, err := batches.GetByID(ctx, b1.ID)
	require.NoError(t, err)
	got2, err := batches.GetByID(ctx, b2.ID)
	require.NoError(t, err)
	assert.Equal(t, 50-2*pairs, got1.RemainingStock)
	assert.Equal(t, 50-2*pairs, got2.RemainingStock)
}
