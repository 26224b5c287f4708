package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/openprices/ingest/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

const testStoreID int64 = 1

// TestReconcileEndToEndScenarios runs the six literal scenarios in
// chronological order against one store, asserting the exact post-state the
// spec calls out after each snapshot.
func TestReconcileEndToEndScenarios(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()

	// 1) First ingestion.
	d1 := day("2020-01-10")
	stats, err := Reconcile(ctx, repo, testStoreID, []ParsedProduct{
		{StoreID: testStoreID, Code: "7290000000001", External: true, Name: "A", Quantity: 1.0, Unit: database.UnitKg, Price: priceToCents(9.90)},
	}, d1, d1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewItems)
	assert.Equal(t, 1, stats.NewStoreProducts)
	assert.Equal(t, 1, stats.NewIntervals)
	assert.Equal(t, 1, stats.CurrentPriceRows)

	require.Len(t, repo.items, 1)
	item := repo.items["7290000000001"]
	assert.Equal(t, "A", item.Name)

	sp1, ok := repo.storeProducts[database.StoreProductKey{StoreID: testStoreID, Code: "7290000000001"}]
	require.True(t, ok)

	open := repo.OpenHistoryMustHaveOne(t, sp1.ID)
	assert.Equal(t, d1, open.StartDate)
	assert.Nil(t, open.EndDate)
	assert.Equal(t, int64(990), open.Price)

	current, ok := repo.current[sp1.ID]
	require.True(t, ok)
	assert.Equal(t, int64(990), current.Price)

	// 2) Price unchanged within tolerance.
	d2 := day("2020-01-11")
	stats, err = Reconcile(ctx, repo, testStoreID, []ParsedProduct{
		{StoreID: testStoreID, Code: "7290000000001", External: true, Name: "A", Quantity: 1.0, Unit: database.UnitKg, Price: priceToCents(9.895)},
	}, d2, d2)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NewIntervals)
	assert.Equal(t, 0, stats.ClosedChanged)
	assert.Len(t, repo.allHistoryForProduct(sp1.ID), 1)
	assert.Equal(t, int64(990), repo.current[sp1.ID].Price)

	// 3) Price changed.
	d3 := day("2020-01-12")
	stats, err = Reconcile(ctx, repo, testStoreID, []ParsedProduct{
		{StoreID: testStoreID, Code: "7290000000001", External: true, Name: "A", Quantity: 1.0, Unit: database.UnitKg, Price: priceToCents(9.50)},
	}, d3, d3)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClosedChanged)
	assert.Equal(t, 1, stats.NewIntervals)

	history := repo.allHistoryForProduct(sp1.ID)
	require.Len(t, history, 2)
	var closedRow, openRow database.PriceHistory
	for _, h := range history {
		if h.EndDate != nil {
			closedRow = h
		} else {
			openRow = h
		}
	}
	assert.Equal(t, day("2020-01-11"), *closedRow.EndDate)
	assert.Equal(t, d3, openRow.StartDate)
	assert.Equal(t, int64(950), openRow.Price)
	assert.Equal(t, int64(950), repo.current[sp1.ID].Price)

	// 4) Disappearance.
	d4 := day("2020-01-13")
	stats, err = Reconcile(ctx, repo, testStoreID, nil, d4, d4)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ClosedDisappeared)
	assert.Equal(t, 0, stats.CurrentPriceRows)

	openHistory, err := repo.OpenHistory(ctx, testStoreID)
	require.NoError(t, err)
	assert.Empty(t, openHistory)

	var lastClosed database.PriceHistory
	for _, h := range repo.allHistoryForProduct(sp1.ID) {
		if h.StartDate.Equal(d3) {
			lastClosed = h
		}
	}
	require.Equal(t, day("2020-01-12"), *lastClosed.EndDate)
	_, hasCurrent := repo.current[sp1.ID]
	assert.False(t, hasCurrent)

	// 5) New item appears (the original stays absent).
	d5 := day("2020-01-14")
	stats, err = Reconcile(ctx, repo, testStoreID, []ParsedProduct{
		{StoreID: testStoreID, Code: "7290000000002", External: true, Name: "B", Price: priceToCents(4.00)},
	}, d5, d5)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NewItems)
	assert.Equal(t, 1, stats.NewStoreProducts)
	assert.Equal(t, 1, stats.NewIntervals)
	assert.Equal(t, 1, stats.CurrentPriceRows)

	sp2 := repo.storeProducts[database.StoreProductKey{StoreID: testStoreID, Code: "7290000000002"}]
	assert.Equal(t, int64(400), repo.current[sp2.ID].Price)
}

// TestReconcileInternalItemHasNoItemRow covers scenario 6: an internal
// (non-barcode) code never creates an Item, but its StoreProduct, history,
// and current price are maintained exactly like an external one.
func TestReconcileInternalItemHasNoItemRow(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	d := day("2020-01-10")

	stats, err := Reconcile(ctx, repo, testStoreID, []ParsedProduct{
		{StoreID: testStoreID, Code: "55", External: false, Name: "Internal widget", Price: priceToCents(2.00)},
	}, d, d)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NewItems)
	assert.Equal(t, 1, stats.NewStoreProducts)
	assert.Equal(t, 1, stats.NewIntervals)
	assert.Equal(t, 1, stats.CurrentPriceRows)

	assert.Empty(t, repo.items)
	sp := repo.storeProducts[database.StoreProductKey{StoreID: testStoreID, Code: "55"}]
	assert.False(t, sp.External)
	assert.Equal(t, int64(200), repo.current[sp.ID].Price)
}

// TestReconcileIdempotentOnRepeatedSnapshot verifies the tolerance
// idempotence invariant: applying the same snapshot twice on the same date
// is a no-op on history and current price.
func TestReconcileIdempotentOnRepeatedSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	d := day("2020-01-10")
	products := []ParsedProduct{
		{StoreID: testStoreID, Code: "7290000000001", External: true, Name: "A", Price: priceToCents(9.90)},
	}

	_, err := Reconcile(ctx, repo, testStoreID, products, d, d)
	require.NoError(t, err)
	sp := repo.storeProducts[database.StoreProductKey{StoreID: testStoreID, Code: "7290000000001"}]
	before := repo.allHistoryForProduct(sp.ID)
	beforeCurrent := repo.current[sp.ID]

	stats, err := Reconcile(ctx, repo, testStoreID, products, d, d)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.NewItems)
	assert.Equal(t, 0, stats.NewStoreProducts)
	assert.Equal(t, 0, stats.NewIntervals)
	assert.Equal(t, 0, stats.ClosedChanged)
	assert.Equal(t, 0, stats.ClosedDisappeared)

	after := repo.allHistoryForProduct(sp.ID)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeCurrent, repo.current[sp.ID])
}

// TestReconcileReappearanceStartsNewInterval covers the disappearance
// round-trip invariant: a product that vanishes and later comes back at the
// same price gets a fresh interval, never merged with the old one.
func TestReconcileReappearanceStartsNewInterval(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	product := ParsedProduct{StoreID: testStoreID, Code: "7290000000001", External: true, Name: "A", Price: priceToCents(9.90)}

	d1 := day("2020-01-10")
	_, err := Reconcile(ctx, repo, testStoreID, []ParsedProduct{product}, d1, d1)
	require.NoError(t, err)
	sp := repo.storeProducts[product.Key()]

	d2 := day("2020-01-11")
	_, err = Reconcile(ctx, repo, testStoreID, nil, d2, d2)
	require.NoError(t, err)

	d3 := day("2020-01-13")
	_, err = Reconcile(ctx, repo, testStoreID, []ParsedProduct{product}, d3, d3)
	require.NoError(t, err)

	history := repo.allHistoryForProduct(sp.ID)
	require.Len(t, history, 2)
	for _, h := range history {
		if h.StartDate.Equal(d1) {
			assert.Equal(t, day("2020-01-10"), *h.EndDate)
		} else {
			assert.Equal(t, d3, h.StartDate)
			assert.Nil(t, h.EndDate)
		}
	}
}

// TestReconcileHistoryNeverOverlaps asserts the non-overlap invariant holds
// after a sequence of changes: at most one open interval per store product,
// and start/end never overlap across rows.
func TestReconcileHistoryNeverOverlaps(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	code := "7290000000001"

	dates := []string{"2020-01-10", "2020-01-11", "2020-01-12", "2020-01-13"}
	prices := []float64{9.90, 8.00, 8.00, 7.00}
	var sp database.StoreProduct
	for i, ds := range dates {
		d := day(ds)
		_, err := Reconcile(ctx, repo, testStoreID, []ParsedProduct{
			{StoreID: testStoreID, Code: code, External: true, Name: "A", Price: priceToCents(prices[i])},
		}, d, d)
		require.NoError(t, err)
		sp = repo.storeProducts[database.StoreProductKey{StoreID: testStoreID, Code: code}]
	}

	history := repo.allHistoryForProduct(sp.ID)
	openCount := 0
	for i, a := range history {
		if a.EndDate == nil {
			openCount++
		}
		for j, b := range history {
			if i == j {
				continue
			}
			if a.EndDate == nil || b.EndDate == nil {
				continue
			}
			overlap := a.StartDate.Before(*b.EndDate) && b.StartDate.Before(*a.EndDate)
			assert.False(t, overlap, "intervals %+v and %+v overlap", a, b)
		}
	}
	assert.Equal(t, 1, openCount)
}

// OpenHistoryMustHaveOne is a test helper asserting exactly one open
// interval exists for storeProductID and returning it.
func (f *fakeRepo) OpenHistoryMustHaveOne(t *testing.T, storeProductID int64) database.PriceHistory {
	t.Helper()
	var found []database.PriceHistory
	for _, h := range f.history {
		if h.StoreProductID == storeProductID && h.EndDate == nil {
			found = append(found, h)
		}
	}
	require.Len(t, found, 1)
	return found[0]
}
