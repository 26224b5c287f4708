package reconcile

import (
	"context"
	"time"

	"github.com/openprices/ingest/internal/database"
)

// fakeRepo is an in-memory Repo used to exercise Reconcile's logic without a
// database, mirroring the shape of PgxRepo's tables as plain maps.
type fakeRepo struct {
	items         map[string]database.Item
	nextItemID    int64
	storeProducts map[database.StoreProductKey]database.StoreProduct
	nextSPID      int64
	history       map[int64]database.PriceHistory
	nextHistID    int64
	current       map[int64]database.CurrentPrice // by store_product_id
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:         make(map[string]database.Item),
		storeProducts: make(map[database.StoreProductKey]database.StoreProduct),
		history:       make(map[int64]database.PriceHistory),
		current:       make(map[int64]database.CurrentPrice),
	}
}

func (f *fakeRepo) ExistingItemCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, c := range codes {
		if _, ok := f.items[c]; ok {
			out[c] = true
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertItems(ctx context.Context, items []database.Item) error {
	for _, it := range items {
		if _, ok := f.items[it.Code]; ok {
			continue
		}
		f.nextItemID++
		it.ID = f.nextItemID
		f.items[it.Code] = it
	}
	return nil
}

func (f *fakeRepo) ExistingStoreProducts(ctx context.Context, storeID int64) (map[database.StoreProductKey]database.StoreProduct, error) {
	out := make(map[database.StoreProductKey]database.StoreProduct)
	for k, v := range f.storeProducts {
		if v.StoreID == storeID {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertStoreProducts(ctx context.Context, products []database.StoreProduct) (map[database.StoreProductKey]database.StoreProduct, error) {
	out := make(map[database.StoreProductKey]database.StoreProduct, len(products))
	for _, p := range products {
		f.nextSPID++
		p.ID = f.nextSPID
		f.storeProducts[p.Key()] = p
		out[p.Key()] = p
	}
	return out, nil
}

func (f *fakeRepo) OpenHistory(ctx context.Context, storeID int64) ([]database.PriceHistory, error) {
	spIDs := make(map[int64]bool)
	for _, sp := range f.storeProducts {
		if sp.StoreID == storeID {
			spIDs[sp.ID] = true
		}
	}
	var out []database.PriceHistory
	for _, h := range f.history {
		if h.EndDate == nil && spIDs[h.StoreProductID] {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertHistory(ctx context.Context, rows []database.PriceHistory) error {
	for _, h := range rows {
		f.nextHistID++
		h.ID = f.nextHistID
		f.history[h.ID] = h
	}
	return nil
}

func (f *fakeRepo) CloseHistory(ctx context.Context, ids []int64, endDate time.Time) error {
	for _, id := range ids {
		h := f.history[id]
		end := endDate
		h.EndDate = &end
		f.history[id] = h
	}
	return nil
}

func (f *fakeRepo) ReplaceCurrentPrices(ctx context.Context, storeID int64, rows []database.CurrentPrice) error {
	for id := range f.current {
		if sp, ok := f.storeProductByID(id); ok && sp.StoreID == storeID {
			delete(f.current, id)
		}
	}
	for _, c := range rows {
		f.current[c.StoreProductID] = c
	}
	return nil
}

func (f *fakeRepo) storeProductByID(id int64) (database.StoreProduct, bool) {
	for _, sp := range f.storeProducts {
		if sp.ID == id {
			return sp, true
		}
	}
	return database.StoreProduct{}, false
}

// allHistoryForProduct returns every history row for a store product, for
// overlap/ordering assertions in tests.
func (f *fakeRepo) allHistoryForProduct(storeProductID int64) []database.PriceHistory {
	var out []database.PriceHistory
	for _, h := range f.history {
		if h.StoreProductID == storeProductID {
			out = append(out, h)
		}
	}
	return out
}
