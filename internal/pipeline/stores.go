package pipeline

import (
	"context"
	"fmt"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/filenamegrammar"
	"github.com/openprices/ingest/internal/scrapers"
	"github.com/openprices/ingest/internal/storesparser"
)

// storesPhase runs parse_stores for every chain in parallel (phase 2): the
// Stores file in downloaded[chain] is located by filename grammar, parsed,
// and applied via storesparser.
func (d *Driver) storesPhase(ctx context.Context, chains []ChainTarget, downloaded map[int64][]scrapers.DownloadedFile, result *Result) {
	persister := &storesparser.PgxPersister{Pool: d.Pool}

	runBounded(ctx, d.concurrency(), chains, func(ctx context.Context, chain ChainTarget) error {
		storesFile, ok := findStoresFile(downloaded[chain.Chain.ID])
		if !ok {
			result.logError(fmt.Sprintf("parse stores %s: no Stores file found", chain.Chain.FullID))
			return nil
		}

		parsed, err := storesparser.Parse(chain.Chain, storesFile.Filename, storesFile.Content)
		if err != nil {
			result.logError(fmt.Sprintf("parse stores %s: %v", chain.Chain.FullID, err))
			return nil
		}

		if err := storesparser.Apply(ctx, persister, chain.Chain, parsed); err != nil {
			result.logError(fmt.Sprintf("apply stores %s: %v", chain.Chain.FullID, err))
			return nil
		}

		result.mu.Lock()
		result.ChainsParsed++
		result.mu.Unlock()
		return nil
	})
}

func findStoresFile(files []scrapers.DownloadedFile) (scrapers.DownloadedFile, bool) {
	for _, f := range files {
		if m, ok := filenamegrammar.Parse(f.Filename); ok && m.Type == filenamegrammar.TypeStores {
			return f, true
		}
	}
	return scrapers.DownloadedFile{}, false
}

// listStores loads every Store row belonging to chain from the database.
func listStores(ctx context.Context, d *Driver, chainID int64) ([]database.Store, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT id, chain_id, store_id, name, city, address, type, created_at, updated_at
		FROM stores WHERE chain_id = $1
	`, chainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []database.Store
	for rows.Next() {
		var s database.Store
		if err := rows.Scan(&s.ID, &s.ChainID, &s.StoreID, &s.Name, &s.City, &s.Address, &s.Type, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
