package inventory_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	app "github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 123_000_000, time.UTC)

const (
	adminID = "u-admin"
	staffID = "u-staff"
)

type harness struct {
	store      *memStore
	ledger     *app.Ledger
	aggregator *app.Aggregator
	dispatcher *app.Dispatcher
	sweeper    *app.Sweeper
	followUp   *app.FollowUp
	now        time.Time
}

type harnessOptions struct {
	policy         inventory.Policy
	retries        int
	followAttempts int
	followBackoff  time.Duration
}

func newHarness(t *testing.T, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	o := harnessOptions{policy: inventory.PolicyFIFO, retries: 3, followAttempts: 1}
	for _, fn := range opts {
		fn(&o)
	}

	store := newMemStore()
	store.users = []*entity.User{
		{ID: adminID, Role: entity.RoleAdmin, Active: true},
		{ID: staffID, Role: entity.RoleStaff, Active: true},
		{ID: "u-customer", Role: entity.RoleCustomer, Active: true},
		{ID: "u-retired", Role: entity.RoleStaff, Active: false},
	}
	store.suppliers["s1"] = &entity.Supplier{ID: "s1", Name: "Distribuidora Norte", Status: "active"}

	log := zerolog.Nop()
	clock := func() time.Time { return testNow }
	followUp := app.NewFollowUp(o.followAttempts, o.followBackoff, nil, log)
	dispatcher := app.NewDispatcher(memNotifications{store}, memUsers{store}, nil, log).WithClock(clock)
	aggregator := app.NewAggregator(store, memProducts{store}, dispatcher, inventory.DefaultLowStockThreshold, log)
	sweeper := app.NewSweeper(memBatches{store}, memProducts{store}, dispatcher, followUp, nil, log)
	ledger := app.NewLedger(app.LedgerDeps{
		TxRunner:     store,
		BatchRepo:    memBatches{store},
		TxRepo:       memTransactions{store},
		ProductRepo:  memProducts{store},
		SupplierRepo: memSuppliers{store},
		Allocator:    app.NewAllocator(o.policy),
		OrderNumbers: app.NewOrderNumberGenerator(5),
		Aggregator:   aggregator,
		Dispatcher:   dispatcher,
		Sweeper:      sweeper,
		FollowUp:     followUp,
	}, app.LedgerConfig{MaxAllocationRetries: o.retries, MaxParallelCandidates: 2}, log).WithClock(clock)

	return &harness{
		store:      store,
		ledger:     ledger,
		aggregator: aggregator,
		dispatcher: dispatcher,
		sweeper:    sweeper,
		followUp:   followUp,
		now:        testNow,
	}
}

// seedProduct crea un producto con TotalStock coherente con los lotes dados.
func (h *harness) seedProduct(id string, batches ...*entity.Batch) {
	total := 0
	for _, b := range batches {
		b.ProductID = id
		total += b.RemainingStock
		h.store.addBatch(b)
	}
	h.store.addProduct(&entity.Product{ID: id, Name: "Producto " + id, TotalStock: total})
}

// goodBatch lote activo comprado daysAgo días antes, que vence en expiresIn días.
func goodBatch(id string, qty, daysAgo, expiresIn int) *entity.Batch {
	purchase := testNow.AddDate(0, 0, -daysAgo)
	return &entity.Batch{
		ID:             id,
		SupplierID:     "s1",
		Stock:          qty,
		RemainingStock: qty,
		PurchaseDate:   purchase,
		ExpiryDate:     testNow.AddDate(0, 0, expiresIn),
		CreatedAt:      purchase,
	}
}

func item(productID string, qty int, price string) entity.TransactionItem {
	return entity.TransactionItem{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func sale(items ...entity.TransactionItem) app.RecordInput {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return app.RecordInput{Type: entity.TransactionTypeSale, Items: items, TotalAmount: total, CreatedBy: staffID}
}

func zerologNop() zerolog.Logger { return zerolog.Nop() }
