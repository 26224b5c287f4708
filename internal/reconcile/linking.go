package reconcile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LinkBatchSize bounds how many StoreProduct rows LinkExternalItems updates
// per round trip, mirroring the source's page_size/yield_per batching so a
// large catalog doesn't need to be held in memory at once.
const LinkBatchSize = 10000

// LinkExternalItems is the maintenance pass of the cross-snapshot linking
// step: for every StoreProduct with External=true and a null ItemID, set
// ItemID to the Item whose Code matches. It runs in pages, returning the
// total number of rows linked.
func LinkExternalItems(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	total := 0
	for {
		tag, err := pool.Exec(ctx, `
			UPDATE store_products sp
			SET item_id = i.id
			FROM items i
			WHERE sp.id IN (
				SELECT id FROM store_products
				WHERE external = true AND item_id IS NULL
				LIMIT $1
			)
			AND sp.code = i.code
		`, LinkBatchSize)
		if err != nil {
			return total, fmt.Errorf("reconcile: link external items: %w", err)
		}
		n := int(tag.RowsAffected())
		total += n
		if n < LinkBatchSize {
			return total, nil
		}
	}
}
