package database

import "time"

// Unit is the normalized measurement unit for an Item/StoreProduct quantity.
type Unit string

const (
	UnitUnknown Unit = "unknown"
	UnitKg      Unit = "kg"
	UnitGram    Unit = "gr"
	UnitLiter   Unit = "liter"
	UnitMl      Unit = "ml"
	UnitUnit    Unit = "unit"
	UnitMeter   Unit = "m"
)

// StoreType classifies how a Store is reached by shoppers.
type StoreType string

const (
	StoreTypeUnknown  StoreType = "unknown"
	StoreTypePhysical StoreType = "physical"
	StoreTypeWeb      StoreType = "web"
	StoreTypeBoth     StoreType = "both"
)

// Chain is a supermarket brand/subchain pair, keyed by its government-issued
// 13-digit full id plus an optional subchain id. (full_id, subchain_id) is
// unique; Name is overwritten whenever a stores file reveals the canonical
// subchain name (see internal/storesparser) — this overwrite is sticky, not
// first-time-only.
type Chain struct {
	ID         int64     `json:"id"`
	FullID     string    `json:"full_id"`     // 13-digit external identifier
	SubchainID *int      `json:"subchain_id"` // nil when the chain has no subchains
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChainWebAccess is the 1:1 portal URL + credentials row for a Chain.
type ChainWebAccess struct {
	ChainID  int64  `json:"chain_id"`
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Store is a physical or web branch of one Chain. (chain_id, store_id) is
// unique, where StoreID is the chain-local integer carried in supplier
// filenames and stores XML, distinct from the surrogate ID.
type Store struct {
	ID        int64     `json:"id"`
	ChainID   int64     `json:"chain_id"`
	StoreID   int       `json:"store_id"` // chain-local store number
	Name      string    `json:"name"`
	City      *string   `json:"city"`
	Address   *string   `json:"address"`
	Type      StoreType `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is a globally identifiable product, keyed by its barcode Code. Only
// StoreProducts with External=true ever reference an Item.
type Item struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"` // external barcode, >=13 digits
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	Unit      Unit      `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreProduct is a SKU line as seen in one store's price file. Equality in
// memory is by (StoreID, Code) — load-bearing for reconciliation, which
// matches freshly parsed rows against persisted ones purely on that pair,
// never on surrogate id.
type StoreProduct struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	Code      string    `json:"code"`
	External  bool      `json:"external"` // true iff Code is a global barcode
	Name      string    `json:"name"`
	RawQty    string    `json:"raw_qty"`
	RawUnit   string    `json:"raw_unit"`
	ItemID    *int64    `json:"item_id"` // set only when External
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreProductKey is the (store_id, code) composite identity reconciliation
// matches on, independent of surrogate id.
type StoreProductKey struct {
	StoreID int64
	Code    string
}

// Key returns p's in-memory identity.
func (p StoreProduct) Key() StoreProductKey {
	return StoreProductKey{StoreID: p.StoreID, Code: p.Code}
}

// PriceHistory is one append-only interval of effect for a StoreProduct's
// price. Intervals for a given StoreProduct are pairwise non-overlapping;
// at most one has EndDate == nil (the open, currently-effective interval).
type PriceHistory struct {
	ID             int64      `json:"id"`
	StoreProductID int64      `json:"store_product_id"`
	StartDate      time.Time  `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	Price          int64      `json:"price"` // fixed-point, hundredths of a currency unit
}

// CurrentPrice mirrors the open PriceHistory interval for a StoreProduct.
// Primary key is StoreProductID; the row exists iff an open interval does.
type CurrentPrice struct {
	StoreProductID int64 `json:"store_product_id"`
	Price          int64 `json:"price"`
}

// RestrictionKind enumerates the promotion restriction variants.
type RestrictionKind string

const (
	RestrictionMinQty       RestrictionKind = "min_qty"
	RestrictionMaxQty       RestrictionKind = "max_qty"
	RestrictionBasketPrice  RestrictionKind = "basket_price"
	RestrictionClubIDs      RestrictionKind = "club_ids"
	RestrictionSpecificItem RestrictionKind = "specific_item"
)

// Promotion is one discount campaign published for a Store. Idempotent on
// (store_id, internal_promotion_code).
type Promotion struct {
	ID                    int64      `json:"id"`
	StoreID               int64      `json:"store_id"`
	InternalPromotionCode string     `json:"internal_promotion_code"`
	Description           string     `json:"description"`
	StartDate             *time.Time `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// PromotionProduct links a Promotion to a member StoreProduct.
type PromotionProduct struct {
	PromotionID    int64 `json:"promotion_id"`
	StoreProductID int64 `json:"store_product_id"`
}

// Restriction is a tagged-variant constraint attached to a Promotion. Only
// the field(s) relevant to Kind are populated.
type Restriction struct {
	ID             int64           `json:"id"`
	PromotionID    int64           `json:"promotion_id"`
	Kind           RestrictionKind `json:"kind"`
	Amount         *float64        `json:"amount"`
	StoreProductID *int64          `json:"store_product_id"` // set only for RestrictionSpecificItem
	ClubID         *string         `json:"club_id"`           // set only for RestrictionClubIDs
}

// PriceFunctionKind enumerates how a Promotion's discount is computed.
type PriceFunctionKind string

const (
	PriceFunctionPercentage PriceFunctionKind = "percentage"
	PriceFunctionTotalPrice PriceFunctionKind = "total_price"
)

// PriceFunction is the 1:1 discount rule for a Promotion. Value for
// PriceFunctionPercentage is already normalized — a raw value over 100 has
// been divided by 100 (see internal/promotions).
type PriceFunction struct {
	PromotionID int64             `json:"promotion_id"`
	Kind        PriceFunctionKind `json:"kind"`
	Value       float64           `json:"value"`
}

// --- Ambient entities: operational bookkeeping around ingestion runs. ---

// IngestionRun is one Driver.Run invocation, covering every chain
// processed in that batch. ChainID is nil for a multi-chain batch run and
// set only when the run covered exactly one chain.
type IngestionRun struct {
	ID               int64      `json:"id"`
	ChainID          *int64     `json:"chain_id"`
	Source           string     `json:"source"` // 'cli', 'worker', 'scheduled'
	Status           string     `json:"status"` // 'pending', 'running', 'completed', 'failed'
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	TotalFiles       int        `json:"total_files"`
	ProcessedFiles   int        `json:"processed_files"`
	TotalEntries     int        `json:"total_entries"`
	ProcessedEntries int        `json:"processed_entries"`
	ErrorCount       int        `json:"error_count"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IngestionFile is one discovered/fetched file within an IngestionRun.
type IngestionFile struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"run_id"`
	Filename    string     `json:"filename"`
	FileType    string     `json:"file_type"` // 'stores', 'prices', 'promo'
	FileSize    int64      `json:"file_size"`
	SHA256      string     `json:"sha256"`
	Status      string     `json:"status"` // 'pending', 'processing', 'completed', 'failed'
	EntryCount  int        `json:"entry_count"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IngestionError is one recoverable error recorded during a run, tagged
// with the error taxonomy category (discovery, authentication, download,
// extraction, parsing, reconciliation, invariant).
type IngestionError struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"run_id"`
	FileID    *int64    `json:"file_id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // 'warning', 'error', 'critical'
	CreatedAt time.Time `json:"created_at"`
}
