package promotions

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openprices/ingest/internal/database"
)

// Persister is the persistence boundary for a resolved ParsedPromotion,
// idempotent on (store_id, internal_promotion_code).
type Persister interface {
	UpsertPromotion(ctx context.Context, storeID int64, p ParsedPromotion) error
}

// PgxPersister is the pgx/v5-backed Persister. Each promotion (and its
// products/restrictions/price function) is replaced wholesale in one
// transaction: simpler and safer than diffing a handful of rows per
// promotion, and cheap since promotion counts per store are small.
type PgxPersister struct {
	Pool *pgxpool.Pool
}

func (p *PgxPersister) UpsertPromotion(ctx context.Context, storeID int64, promo ParsedPromotion) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	var promotionID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO promotions (store_id, internal_promotion_code, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (store_id, internal_promotion_code)
		DO UPDATE SET description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
		RETURNING id
	`, storeID, promo.InternalCode, promo.Description, now).Scan(&promotionID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM promotion_products WHERE promotion_id = $1`, promotionID); err != nil {
		return err
	}
	for _, spID := range promo.ProductIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO promotion_products (promotion_id, store_product_id) VALUES ($1, $2)
		`, promotionID, spID); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM restrictions WHERE promotion_id = $1`, promotionID); err != nil {
		return err
	}
	if promo.MinQuantity > 0 {
		amount := float64(promo.MinQuantity)
		if err := insertRestriction(ctx, tx, promotionID, database.RestrictionMinQty, &amount, nil); err != nil {
			return err
		}
	}
	if promo.MaxQuantity > 0 {
		amount := float64(promo.MaxQuantity)
		if err := insertRestriction(ctx, tx, promotionID, database.RestrictionMaxQty, &amount, nil); err != nil {
			return err
		}
	}
	for _, clubID := range promo.ClubIDs {
		club := clubID
		if err := insertRestriction(ctx, tx, promotionID, database.RestrictionClubIDs, nil, &club); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO price_functions (promotion_id, kind, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (promotion_id) DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value
	`, promotionID, promo.PriceFunction.Kind, promo.PriceFunction.Value); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertRestriction(ctx context.Context, tx pgx.Tx, promotionID int64, kind database.RestrictionKind, amount *float64, clubID *string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO restrictions (promotion_id, kind, amount, club_id) VALUES ($1, $2, $3, $4)
	`, promotionID, kind, amount, clubID)
	return err
}
