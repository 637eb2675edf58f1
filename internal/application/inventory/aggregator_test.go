package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/jhoicas/stockledger-api/internal/application/inventory"
	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/inventory"
)

func TestRecompute_SumsAllBatchesIncludingExpired(t *testing.T) {
	h := newHarness(t)
	expired := goodBatch("e", 4, 60, -1)
	expired.Condition = entity.BatchConditionExpired
	expired.Status = entity.BatchStatusInactive
	h.seedProduct("p1", expired, goodBatch("g", 8, 2, 30))
	h.store.products["p1"].TotalStock = 50

	change, err := h.aggregator.Recompute(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, app.StockChange{
		ProductID:   "p1",
		ProductName: "Producto p1",
		Previous:    50,
		Current:     12,
		Crossing:    inventory.CrossingNone,
	}, change)
	assert.Equal(t, 12, h.store.product("p1").TotalStock)
}

func TestRecompute_CrossingIsPublishedOnce(t *testing.T) {
	h := newHarness(t)
	h.seedProduct("p1", goodBatch("g", 8, 2, 30))
	h.store.products["p1"].TotalStock = 20
	ctx := context.Background()

	change, err := h.aggregator.Recompute(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, inventory.CrossingLowStock, change.Crossing)
	require.NoError(t, h.aggregator.Publish(ctx, change, adminID))

	// Recalcular de nuevo no detecta cruce: no hay aviso repetido.
	change, err = h.aggregator.Recompute(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, inventory.CrossingNone, change.Crossing)
	require.NoError(t, h.aggregator.Publish(ctx, change, adminID))

	assert.Len(t, h.store.notificationsOfType(entity.NotificationTypeLowStock), 1)
}

func TestRecompute_UnknownProduct(t *testing.T) {
	h := newHarness(t)
	_, err := h.aggregator.Recompute(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecomputeAll_AndSummary(t *testing.T) {
	h := newHarness(t)
	h.seedProduct("healthy", goodBatch("a", 30, 2, 30))
	h.seedProduct("low", goodBatch("b", 4, 2, 30))
	h.seedProduct("out")
	h.seedProduct("inactive", goodBatch("c", 1, 2, 30))
	h.store.products["inactive"].Status = entity.ProductStatusInactive
	h.store.products["low"].TotalStock = 99
	ctx := context.Background()

	changes, err := h.aggregator.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Len(t, changes, 3)
	assert.Equal(t, 4, h.store.product("low").TotalStock)
	assert.Len(t, h.store.notificationsOfType(entity.NotificationTypeLowStock), 1)

	summary, err := h.aggregator.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, app.Summary{MinimumStock: 1, OutOfStock: 1, TotalItems: 3}, summary)
}
