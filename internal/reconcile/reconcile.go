package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/openprices/ingest/internal/database"
)

// priceToleranceCents is 0.01 currency unit expressed in the fixed-point
// (hundredths) scale PriceHistory.Price/CurrentPrice.Price use: exactly 1.
// A difference of 1 or less is considered unchanged; only a strictly
// greater difference counts as a price change.
const priceToleranceCents = 1

// Repo is the persistence boundary reconciliation drives. Each method is
// expected to commit its own work (a single statement or a small internal
// transaction) so that stage N+1 can rely on stage N's ids and rows being
// durable, per the stage-ordering contract.
type Repo interface {
	ExistingItemCodes(ctx context.Context, codes []string) (map[string]bool, error)
	InsertItems(ctx context.Context, items []database.Item) error

	ExistingStoreProducts(ctx context.Context, storeID int64) (map[database.StoreProductKey]database.StoreProduct, error)
	InsertStoreProducts(ctx context.Context, products []database.StoreProduct) (map[database.StoreProductKey]database.StoreProduct, error)

	OpenHistory(ctx context.Context, storeID int64) ([]database.PriceHistory, error)
	InsertHistory(ctx context.Context, rows []database.PriceHistory) error
	CloseHistory(ctx context.Context, ids []int64, endDate time.Time) error

	ReplaceCurrentPrices(ctx context.Context, storeID int64, rows []database.CurrentPrice) error
}

// Stats summarizes one Reconcile call, for run/file bookkeeping.
type Stats struct {
	NewItems          int
	NewStoreProducts  int
	NewIntervals      int
	ClosedDisappeared int
	ClosedChanged     int
	CurrentPriceRows  int
}

// Reconcile applies one parsed snapshot for storeID, dated snapshotDate,
// against repo. today is compared against snapshotDate to decide whether
// stage 4 (current-price materialization) runs. Callers must supply
// snapshots for a given store in chronological order; this is not enforced
// here (see the spec's accepted out-of-order-snapshot limitation).
func Reconcile(ctx context.Context, repo Repo, storeID int64, parsed []ParsedProduct, snapshotDate, today time.Time) (Stats, error) {
	var stats Stats

	if err := addNewItems(ctx, repo, parsed, &stats); err != nil {
		return stats, err
	}

	existingProducts, err := addNewStoreProducts(ctx, repo, storeID, parsed, &stats)
	if err != nil {
		return stats, err
	}

	if err := updateHistory(ctx, repo, storeID, parsed, existingProducts, snapshotDate, &stats); err != nil {
		return stats, err
	}

	if sameDay(snapshotDate, today) {
		if err := materializeCurrentPrices(ctx, repo, storeID, &stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// addNewItems is stage 1: insert an Item for every distinct external code
// not already in the catalog.
func addNewItems(ctx context.Context, repo Repo, parsed []ParsedProduct, stats *Stats) error {
	var codes []string
	seen := make(map[string]bool)
	for _, p := range parsed {
		if p.External && !seen[p.Code] {
			seen[p.Code] = true
			codes = append(codes, p.Code)
		}
	}
	if len(codes) == 0 {
		return nil
	}

	existing, err := repo.ExistingItemCodes(ctx, codes)
	if err != nil {
		return fmt.Errorf("reconcile: existing item codes: %w", err)
	}

	var newItems []database.Item
	added := make(map[string]bool)
	for _, p := range parsed {
		if p.External && !existing[p.Code] && !added[p.Code] {
			added[p.Code] = true
			newItems = append(newItems, p.toItem())
		}
	}
	if len(newItems) == 0 {
		return nil
	}
	if err := repo.InsertItems(ctx, newItems); err != nil {
		return fmt.Errorf("reconcile: insert items: %w", err)
	}
	stats.NewItems = len(newItems)
	return nil
}

// addNewStoreProducts is stage 2: insert a StoreProduct for every parsed
// code the store doesn't already carry, then rebind the full existing set so
// every parsed row maps to a persisted StoreProduct id.
func addNewStoreProducts(ctx context.Context, repo Repo, storeID int64, parsed []ParsedProduct, stats *Stats) (map[database.StoreProductKey]database.StoreProduct, error) {
	existing, err := repo.ExistingStoreProducts(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: existing store products: %w", err)
	}

	var toInsert []database.StoreProduct
	for _, p := range parsed {
		if _, ok := existing[p.Key()]; !ok {
			toInsert = append(toInsert, p.toStoreProduct())
		}
	}
	if len(toInsert) == 0 {
		return existing, nil
	}

	inserted, err := repo.InsertStoreProducts(ctx, toInsert)
	if err != nil {
		return nil, fmt.Errorf("reconcile: insert store products: %w", err)
	}
	for k, v := range inserted {
		existing[k] = v
	}
	stats.NewStoreProducts = len(toInsert)
	return existing, nil
}

// updateHistory is stage 3: the three-way diff against open_history.
func updateHistory(ctx context.Context, repo Repo, storeID int64, parsed []ParsedProduct, products map[database.StoreProductKey]database.StoreProduct, snapshotDate time.Time, stats *Stats) error {
	open, err := repo.OpenHistory(ctx, storeID)
	if err != nil {
		return fmt.Errorf("reconcile: open history: %w", err)
	}
	openByProduct := make(map[int64]database.PriceHistory, len(open))
	for _, h := range open {
		openByProduct[h.StoreProductID] = h
	}

	parsedByProductID := make(map[int64]ParsedProduct, len(parsed))
	for _, p := range parsed {
		sp, ok := products[p.Key()]
		if !ok {
			continue // invariant violation: every parsed row must be bound by stage 2
		}
		parsedByProductID[sp.ID] = p
	}

	dayBefore := snapshotDate.AddDate(0, 0, -1)

	var newIntervals []database.PriceHistory
	var closeIDs []int64

	for productID, p := range parsedByProductID {
		current, hasOpen := openByProduct[productID]
		switch {
		case !hasOpen:
			newIntervals = append(newIntervals, database.PriceHistory{
				StoreProductID: productID,
				StartDate:      snapshotDate,
				Price:          p.Price,
			})
		case abs64(current.Price-p.Price) > priceToleranceCents:
			closeIDs = append(closeIDs, current.ID)
			newIntervals = append(newIntervals, database.PriceHistory{
				StoreProductID: productID,
				StartDate:      snapshotDate,
				Price:          p.Price,
			})
			stats.ClosedChanged++
		}
	}

	for productID, current := range openByProduct {
		if _, present := parsedByProductID[productID]; !present {
			closeIDs = append(closeIDs, current.ID)
			stats.ClosedDisappeared++
		}
	}

	if len(closeIDs) > 0 {
		if err := repo.CloseHistory(ctx, closeIDs, dayBefore); err != nil {
			return fmt.Errorf("reconcile: close history: %w", err)
		}
	}
	if len(newIntervals) > 0 {
		if err := repo.InsertHistory(ctx, newIntervals); err != nil {
			return fmt.Errorf("reconcile: insert history: %w", err)
		}
		stats.NewIntervals = len(newIntervals)
	}
	return nil
}

// materializeCurrentPrices is stage 4: replace CurrentPrice wholesale with
// one row per currently-open interval for storeID.
func materializeCurrentPrices(ctx context.Context, repo Repo, storeID int64, stats *Stats) error {
	open, err := repo.OpenHistory(ctx, storeID)
	if err != nil {
		return fmt.Errorf("reconcile: open history for current prices: %w", err)
	}
	current := make([]database.CurrentPrice, 0, len(open))
	for _, h := range open {
		current = append(current, database.CurrentPrice{StoreProductID: h.StoreProductID, Price: h.Price})
	}
	if err := repo.ReplaceCurrentPrices(ctx, storeID, current); err != nil {
		return fmt.Errorf("reconcile: replace current prices: %w", err)
	}
	stats.CurrentPriceRows = len(current)
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
