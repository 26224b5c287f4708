package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openprices/ingest/internal/catalog"
	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/pipeline"
	"github.com/openprices/ingest/internal/reconcile"
	"github.com/openprices/ingest/internal/scrapers"
	"github.com/openprices/ingest/internal/storage"
	"github.com/spf13/cobra"
)

var (
	runProcesses   int
	runNoDownload  bool
	runParseChains bool
)

// runCmd is the single entry point for a pipeline invocation: download,
// parse_stores, parse_store_prices/parse_store_promos across every known
// chain.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion pipeline across all known chains",
	Long: `Run drives the three-phase ingestion pipeline: download each chain's
stores/prices/promotions files, parse and persist stores, then reconcile
each store's prices and promotions against history.

With --parse-chains, the government price-transparency index page is
scraped first to refresh the chain/credential list before the pipeline
runs.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runProcesses, "processes", "p", 8, "run data scraping and parsing with this many parallel workers per phase")
	runCmd.Flags().BoolVar(&runNoDownload, "no-download", false, "don't download data at start (assumes data already downloaded and cached)")
	runCmd.Flags().BoolVarP(&runParseChains, "parse-chains", "c", false, "refresh chain login data from the government webpage before running")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	pool := database.Pool()

	if runParseChains {
		n, err := refreshChainCatalog(ctx, pool)
		if err != nil {
			return fmt.Errorf("parse-chains: %w", err)
		}
		logger.Info().Int("chains", n).Msg("chain catalog refreshed")
	}

	chains, accesses, err := database.ListChainsWithAccess(ctx, pool)
	if err != nil {
		return fmt.Errorf("load chains: %w", err)
	}
	if len(chains) == 0 {
		logger.Warn().Msg("no chains configured; run with --parse-chains first")
		return nil
	}

	targets := make([]pipeline.ChainTarget, len(chains))
	for i, c := range chains {
		targets[i] = pipeline.ChainTarget{Chain: c, Access: accesses[i]}
	}

	basePath := "./data/cache"
	if cfg != nil && cfg.Storage.BasePath != "" {
		basePath = cfg.Storage.BasePath
	}
	store, err := storage.NewLocalStorage(basePath)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	concurrency := runProcesses
	if !cmd.Flags().Changed("processes") && cfg != nil && cfg.Pipeline.Concurrency > 0 {
		concurrency = cfg.Pipeline.Concurrency
	}

	driver := &pipeline.Driver{
		Pool:         pool,
		Store:        store,
		Concurrency:  concurrency,
		SkipDownload: runNoDownload,
		Today:        time.Now(),
	}

	logger.Info().Int("chains", len(targets)).Int("processes", concurrency).Bool("no_download", runNoDownload).Msg("starting pipeline run")

	result, err := driver.Run(ctx, targets)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	linked, linkErr := reconcile.LinkExternalItems(ctx, pool)
	if linkErr != nil {
		logger.Warn().Err(linkErr).Msg("cross-snapshot linking pass failed")
	} else {
		logger.Info().Int("linked", linked).Msg("cross-snapshot linking complete")
	}

	displayRunResult(result)

	// Per-task failures (download/stores/prices phases) are logged and
	// persisted as ingestion_errors; they never fail the run itself, so the
	// exit code stays 0 for anything past setup.
	return nil
}

// refreshChainCatalog scrapes the government index page, resolves each
// listing to its full id/subchain ids via the matching scraper variant,
// and upserts the resulting (Chain, ChainWebAccess) rows. Returns the
// number of chain rows written.
func refreshChainCatalog(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	fetcher := &catalog.HTTPFetcher{}

	listings, err := catalog.Discover(ctx, fetcher, catalog.IndexURL)
	if err != nil {
		return 0, err
	}

	resolved := catalog.Resolve(ctx, listings, func(name, url, username, password string) (catalog.ChainFullIDer, error) {
		return scrapers.Factory(name, url, username, password)
	})

	count := 0
	for _, rc := range resolved {
		subchainID := rc.SubchainID
		chainID, err := database.UpsertChain(ctx, pool, rc.FullID, &subchainID, rc.Listing.Name)
		if err != nil {
			logger.Warn().Str("chain", rc.Listing.Name).Err(err).Msg("failed to upsert chain")
			continue
		}
		if err := database.UpsertChainWebAccess(ctx, pool, database.ChainWebAccess{
			ChainID:  chainID,
			URL:      rc.Listing.URL,
			Username: rc.Listing.Username,
			Password: rc.Listing.Password,
		}); err != nil {
			logger.Warn().Str("chain", rc.Listing.Name).Err(err).Msg("failed to upsert chain web access")
			continue
		}
		count++
	}
	return count, nil
}

func displayRunResult(result *pipeline.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METRIC\tCOUNT")
	fmt.Fprintln(w, "------\t-----")
	fmt.Fprintf(w, "chains downloaded\t%d\n", result.ChainsDownloaded)
	fmt.Fprintf(w, "chains parsed\t%d\n", result.ChainsParsed)
	fmt.Fprintf(w, "stores processed\t%d\n", result.StoresProcessed)
	fmt.Fprintf(w, "errors\t%d\n", len(result.Errors))
	w.Flush()

	for _, e := range result.Errors {
		logger.Error().Msg(e)
	}
}
