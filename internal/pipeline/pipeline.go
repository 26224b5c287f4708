// Package pipeline is the Pipeline Driver: a bounded worker pool running
// the three ingestion phases (download, parse_stores, parse_store_prices +
// parse_store_promos) across every configured chain.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/scrapers"
	"github.com/openprices/ingest/internal/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ChainTarget is one configured chain plus the portal access it needs to
// build a scraper.
type ChainTarget struct {
	Chain  database.Chain
	Access database.ChainWebAccess
}

// Driver runs the three-phase pipeline across a set of chains, bounding
// in-flight work at each phase to Concurrency units. Each worker runs one
// whole (chain) or (chain, store) unit to completion; a failing unit logs
// and is skipped, never cancelling its siblings.
type Driver struct {
	Pool         *pgxpool.Pool
	Store        storage.Storage
	Concurrency  int
	SkipDownload bool
	Today        time.Time
}

// Result summarizes one Run invocation.
type Result struct {
	ChainsDownloaded int
	ChainsParsed     int
	StoresProcessed  int
	mu               sync.Mutex
	Errors           []string

	ctx category
	run *ingestionRun
}

// category tags which pipeline phase an error came from, for the
// ingestion_errors taxonomy (download / parsing / reconciliation).
type category string

const (
	categoryDownload       category = "download"
	categoryParsing        category = "parsing"
	categoryReconciliation category = "reconciliation"
)

func (r *Result) logError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
	if r.run != nil {
		r.run.recordError(context.Background(), string(r.ctx), msg)
	}
}

func (d *Driver) concurrency() int {
	if d.Concurrency <= 0 {
		return 1
	}
	return d.Concurrency
}

func (d *Driver) today() time.Time {
	if d.Today.IsZero() {
		return time.Now()
	}
	return d.Today
}

// Run executes the three phases for chains in order, each bounded by a
// semaphore of size Concurrency. Phase boundaries are full barriers: phase 2
// needs every chain's download outcome, phase 3 needs every chain's stores
// parsed.
func (d *Driver) Run(ctx context.Context, chains []ChainTarget) (*Result, error) {
	result := &Result{}
	if d.Pool != nil {
		result.run = d.startRun(ctx, chains)
	}

	result.ctx = categoryDownload
	downloaded := d.downloadPhase(ctx, chains, result)

	result.ctx = categoryParsing
	d.storesPhase(ctx, chains, downloaded, result)

	result.ctx = categoryReconciliation
	d.pricesPhase(ctx, chains, downloaded, result)

	if result.run != nil {
		result.run.complete(ctx, result)
	}

	return result, nil
}

// runBounded runs fn(item) for every item with at most Concurrency
// goroutines in flight. A failing fn logs via result and never aborts the
// batch — runBounded itself never returns an error.
func runBounded[T any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) error) {
	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		item := item
		if err := sem.Acquire(gctx, 1); err != nil {
			break // context cancelled externally
		}
		g.Go(func() error {
			defer sem.Release(1)
			_ = fn(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
}

func logf(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
