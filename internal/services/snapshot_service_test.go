package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FacetBaths/stock-man-sub005/internal/apperrors"
	"github.com/FacetBaths/stock-man-sub005/internal/models"
)

func (e *testEnv) createSKUWithThresholds(t *testing.T, code string, low, high, reorder int) *models.SKU {
	t.Helper()
	sku, err := e.catalog.CreateSKU(context.Background(), models.CreateSKURequest{
		Code:                  code,
		Name:                  "Test " + code,
		Cost:                  decimal.RequireFromString("10"),
		UnderstockedThreshold: low,
		OverstockedThreshold:  high,
		ReorderPoint:          reorder,
	})
	require.NoError(t, err)
	return sku
}

func TestSnapshotUnknownSKU(t *testing.T) {
	env := newTestEnv()
	_, err := env.snapshots.Compute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrSKUNotFound)
}

func TestSnapshotOutOfStock(t *testing.T) {
	env := newTestEnv()
	sku := env.createSKUWithThresholds(t, "EMP-001", 3, 0, 0)

	snap := env.snapshot(t, sku.ID)
	assert.True(t, snap.IsOutOfStock)
	assert.False(t, snap.IsLowStock, "out of stock is not low stock")
	assert.True(t, snap.NeedsReorder)

	// Fully allocated also counts as out of stock.
	env.receive(t, sku.ID, 2, 0, "10")
	env.allocate(t, models.AllocateRequest{
		SKUID: sku.ID, Quantity: 2,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "All Of It",
	})
	snap = env.snapshot(t, sku.ID)
	assert.Equal(t, 2, snap.TotalQuantity)
	assert.True(t, snap.IsOutOfStock)
}

func TestSnapshotLowStockBoundaries(t *testing.T) {
	env := newTestEnv()
	sku := env.createSKUWithThresholds(t, "LOW-001", 3, 0, 0)
	env.receive(t, sku.ID, 4, 0, "10")

	assert.False(t, env.snapshot(t, sku.ID).IsLowStock, "above threshold")

	env.allocate(t, models.AllocateRequest{
		SKUID: sku.ID, Quantity: 1,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "One",
	})
	snap := env.snapshot(t, sku.ID)
	assert.Equal(t, 3, snap.AvailableQuantity)
	assert.True(t, snap.IsLowStock, "at threshold")
}

func TestSnapshotThresholdZeroDisablesFlags(t *testing.T) {
	env := newTestEnv()
	sku := env.createSKUWithThresholds(t, "OFF-001", 0, 0, 0)
	env.receive(t, sku.ID, 1, 0, "10")

	snap := env.snapshot(t, sku.ID)
	assert.False(t, snap.IsLowStock)
	assert.False(t, snap.IsOverstock)
}

func TestSnapshotOverstock(t *testing.T) {
	env := newTestEnv()
	sku := env.createSKUWithThresholds(t, "OVR-001", 0, 5, 0)
	env.receive(t, sku.ID, 5, 0, "10")

	assert.True(t, env.snapshot(t, sku.ID).IsOverstock)

	// Overstock tracks total, not available.
	env.allocate(t, models.AllocateRequest{
		SKUID: sku.ID, Quantity: 3,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "Held",
	})
	assert.True(t, env.snapshot(t, sku.ID).IsOverstock)
}

func TestSnapshotNeedsReorder(t *testing.T) {
	env := newTestEnv()
	sku := env.createSKUWithThresholds(t, "REO-001", 0, 0, 2)
	env.receive(t, sku.ID, 3, 0, "10")

	assert.False(t, env.snapshot(t, sku.ID).NeedsReorder)

	env.allocate(t, models.AllocateRequest{
		SKUID: sku.ID, Quantity: 1,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeReserved,
		CustomerName:    "One",
	})
	assert.True(t, env.snapshot(t, sku.ID).NeedsReorder, "reorder point is inclusive")
}

func TestSnapshotIgnoresFinishedTags(t *testing.T) {
	env := newTestEnv()
	sku := env.createSKUWithThresholds(t, "FIN-001", 0, 0, 0)
	env.receive(t, sku.ID, 4, 0, "10")

	cancelled := env.allocate(t, models.AllocateRequest{
		SKUID: sku.ID, Quantity: 2,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeBroken,
		CustomerName:    "Reverted",
	})
	_, err := env.ledger.Cancel(context.Background(), cancelled.ID, "not broken after all")
	require.NoError(t, err)

	snap := env.snapshot(t, sku.ID)
	assert.Equal(t, 4, snap.AvailableQuantity)
	assert.Equal(t, 0, snap.BrokenQuantity)
}

func TestSnapshotIsIdempotent(t *testing.T) {
	env := newTestEnv()
	sku := env.createSKUWithThresholds(t, "IDEM-01", 2, 10, 1)
	env.receive(t, sku.ID, 6, 0, "10")
	env.allocate(t, models.AllocateRequest{
		SKUID: sku.ID, Quantity: 2,
		SelectionMethod: models.SelectionMethodFIFO,
		AllocationType:  models.AllocationTypeLoaned,
		CustomerName:    "Loan",
	})

	first := env.snapshot(t, sku.ID)
	second := env.snapshot(t, sku.ID)
	assert.Equal(t, first.TotalQuantity, second.TotalQuantity)
	assert.Equal(t, first.AvailableQuantity, second.AvailableQuantity)
	assert.Equal(t, first.LoanedQuantity, second.LoanedQuantity)
	assert.Equal(t, first.IsLowStock, second.IsLowStock)
}

func TestComputeAll(t *testing.T) {
	env := newTestEnv()
	a := env.createSKUWithThresholds(t, "AAA-001", 0, 0, 0)
	env.createSKUWithThresholds(t, "BBB-001", 0, 0, 0)
	env.receive(t, a.ID, 2, 0, "10")

	snapshots, total, err := env.snapshots.ComputeAll(context.Background(), false, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, snapshots, 2)
	// ListSKUs orders by code, so the snapshot order is stable.
	assert.Equal(t, "AAA-001", snapshots[0].SKUCode)
	assert.Equal(t, 2, snapshots[0].TotalQuantity)
	assert.Equal(t, 0, snapshots[1].TotalQuantity)
}
