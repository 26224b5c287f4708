package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/filenamegrammar"
	"github.com/openprices/ingest/internal/promotions"
	"github.com/openprices/ingest/internal/reconcile"
	"github.com/openprices/ingest/internal/scrapers"
	"github.com/openprices/ingest/internal/taskqueue"
	"github.com/openprices/ingest/internal/xmlnorm"
)

// reconcileStoreTask is the payload scheduled for each (chain, store, date)
// reconciliation unit, so a crashed run leaves a durable record of which
// units never completed instead of silently losing them.
type reconcileStoreTask struct {
	ChainFullID string `json:"chain_full_id"`
	StoreID     int    `json:"store_id"`
}

// pricesPhase is phase 3: per chain, enumerate its stores from the
// database, then per store in parallel run parse_store_prices and (if a
// promos file is present) parse_store_promos. Each store's reconciliation
// unit is tracked through internal/taskqueue as a durable ledger entry:
// scheduled before the worker pool picks it up, completed or failed after,
// so a crashed run can be diagnosed (and eventually resumed) from
// task_queue rather than only from in-memory Result.Errors.
func (d *Driver) pricesPhase(ctx context.Context, chains []ChainTarget, downloaded map[int64][]scrapers.DownloadedFile, result *Result) {
	repo := &reconcile.PgxRepo{Pool: d.Pool}
	promoPersister := &promotions.PgxPersister{Pool: d.Pool}
	var tq *taskqueue.TaskQueue
	if d.Pool != nil {
		tq = taskqueue.New(d.Pool)
	}

	for _, chain := range chains {
		stores, err := listStores(ctx, d, chain.Chain.ID)
		if err != nil {
			result.logError(fmt.Sprintf("list stores %s: %v", chain.Chain.FullID, err))
			continue
		}
		files := downloaded[chain.Chain.ID]

		runBounded(ctx, d.concurrency(), stores, func(ctx context.Context, store database.Store) error {
			taskID := d.scheduleReconcileTask(ctx, tq, chain.Chain.FullID, store.StoreID)

			if err := d.reconcileStore(ctx, repo, promoPersister, store, files); err != nil {
				result.logError(fmt.Sprintf("reconcile store %d (chain %s): %v", store.StoreID, chain.Chain.FullID, err))
				d.failReconcileTask(ctx, tq, taskID, err)
				return nil
			}
			d.completeReconcileTask(ctx, tq, taskID)

			result.mu.Lock()
			result.StoresProcessed++
			result.mu.Unlock()
			return nil
		})
	}
}

// scheduleReconcileTask records the unit of work in task_queue before it
// runs; returns "" if scheduling failed or there's no pool, in which case
// the complete/fail calls below are no-ops.
func (d *Driver) scheduleReconcileTask(ctx context.Context, tq *taskqueue.TaskQueue, chainFullID string, storeID int) string {
	if tq == nil {
		return ""
	}
	res := tq.ScheduleTask(ctx, taskqueue.ScheduleTaskInput{
		TaskType: "reconcile_store_prices",
		Payload:  reconcileStoreTask{ChainFullID: chainFullID, StoreID: storeID},
	})
	if res.Err != nil {
		logf("schedule reconcile task for store %d (chain %s): %v", storeID, chainFullID, res.Err)
		return ""
	}
	return res.ID
}

func (d *Driver) completeReconcileTask(ctx context.Context, tq *taskqueue.TaskQueue, taskID string) {
	if tq == nil || taskID == "" {
		return
	}
	if err := tq.CompleteTask(ctx, taskID, nil); err != nil {
		logf("complete reconcile task %s: %v", taskID, err)
	}
}

func (d *Driver) failReconcileTask(ctx context.Context, tq *taskqueue.TaskQueue, taskID string, cause error) {
	if tq == nil || taskID == "" {
		return
	}
	if err := tq.FailTask(ctx, taskID, cause.Error(), true); err != nil {
		logf("fail reconcile task %s: %v", taskID, err)
	}
}

func (d *Driver) reconcileStore(ctx context.Context, repo *reconcile.PgxRepo, promoPersister promotions.Persister, store database.Store, files []scrapers.DownloadedFile) error {
	pricesFile, snapshotDate, ok := findStoreFile(files, filenamegrammar.TypePrices, store.StoreID)
	if !ok {
		return fmt.Errorf("no prices file for store %d", store.StoreID)
	}

	root, err := xmlnorm.Load(pricesFile.Filename, pricesFile.Content)
	if err != nil {
		return fmt.Errorf("load prices xml: %w", err)
	}

	parsed := reconcile.Extract(root, store.ID)
	if _, err := reconcile.Reconcile(ctx, repo, store.ID, parsed, snapshotDate, d.today()); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	promoFile, _, ok := findStoreFile(files, filenamegrammar.TypePromo, store.StoreID)
	if !ok {
		return nil // promos are optional; absence is not an error
	}

	products, err := repo.ExistingStoreProducts(ctx, store.ID)
	if err != nil {
		return fmt.Errorf("load store products for promos: %w", err)
	}

	promoRoot, err := xmlnorm.Load(promoFile.Filename, promoFile.Content)
	if err != nil {
		return fmt.Errorf("load promos xml: %w", err)
	}

	for _, promo := range promotions.Extract(promoRoot, store.ID, products) {
		if err := promoPersister.UpsertPromotion(ctx, store.ID, promo); err != nil {
			return fmt.Errorf("upsert promotion %s: %w", promo.InternalCode, err)
		}
	}
	return nil
}

// findStoreFile locates the most recent file of typ belonging to storeID
// among files, returning its snapshot date decoded from the filename.
func findStoreFile(files []scrapers.DownloadedFile, typ filenamegrammar.FileType, storeID int) (scrapers.DownloadedFile, time.Time, bool) {
	var best scrapers.DownloadedFile
	var bestDate time.Time
	found := false

	for _, f := range files {
		m, ok := filenamegrammar.Parse(f.Filename)
		if !ok || m.Type != typ || m.StoreID == nil || *m.StoreID != storeID {
			continue
		}
		date, err := time.Parse("20060102", m.Date)
		if err != nil {
			continue
		}
		if !found || date.After(bestDate) {
			best, bestDate, found = f, date, true
		}
	}
	return best, bestDate, found
}
