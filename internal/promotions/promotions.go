// Package promotions implements the Promotions Parser: it extracts discount
// campaigns from a store's promos snapshot and maps them onto the store's
// already-reconciled StoreProducts.
package promotions

import (
	"strconv"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/xmlnorm"
)

// discountTypePercentage/discountTypeTotalPrice mirror the source's
// PriceFunctionType enum ordinals exactly (percentage=0, total_price=1).
const (
	discountTypePercentage = 0
	discountTypeTotalPrice = 1
)

// ParsedPromotion is one promotion extracted from a promos snapshot, with
// its member products already resolved against the store's StoreProducts.
type ParsedPromotion struct {
	InternalCode   string
	Description    string
	ProductIDs     []int64 // resolved StoreProduct ids; unknown codes are dropped
	MinQuantity    int
	MaxQuantity    int
	ClubIDs        []string
	PriceFunction  database.PriceFunction
}

// Extract reads every promotion element out of root and resolves its member
// item codes against products (the store's existing StoreProducts, keyed by
// (store_id, code)). Codes unknown to this store are silently dropped.
func Extract(root *xmlnorm.Element, storeID int64, products map[database.StoreProductKey]database.StoreProduct) []ParsedPromotion {
	var out []ParsedPromotion
	for _, el := range findAll(root, "promotion") {
		p := ParsedPromotion{
			InternalCode: strconv.Itoa(el.AsInt("promotionid")),
			Description:  el.AsString("promotiondescription"),
			MinQuantity:  el.AsInt("minqty"),
			MaxQuantity:  el.AsInt("maxqty"),
		}

		for _, itemsEl := range el.All("promotionitems") {
			code := strconv.Itoa(itemsEl.AsInt("itemcode"))
			key := database.StoreProductKey{StoreID: storeID, Code: code}
			if sp, ok := products[key]; ok {
				p.ProductIDs = append(p.ProductIDs, sp.ID)
			}
			// unknown codes are dropped silently, per spec
		}

		for _, clubEl := range el.All("clubs") {
			if id := clubEl.AsString("clubid"); id != "" {
				p.ClubIDs = append(p.ClubIDs, id)
			}
		}

		p.PriceFunction = priceFunction(el)
		out = append(out, p)
	}
	return out
}

func priceFunction(el *xmlnorm.Element) database.PriceFunction {
	switch el.AsInt("discounttype") {
	case discountTypeTotalPrice:
		return database.PriceFunction{
			Kind:  database.PriceFunctionTotalPrice,
			Value: el.AsFloat("discountedprice"),
		}
	default: // discountTypePercentage and anything unrecognized
		rate := el.AsFloat("discountrate")
		if rate > 100 {
			rate /= 100
		}
		return database.PriceFunction{
			Kind:  database.PriceFunctionPercentage,
			Value: rate,
		}
	}
}

func findAll(root *xmlnorm.Element, tag string) []*xmlnorm.Element {
	var out []*xmlnorm.Element
	var walk func(*xmlnorm.Element)
	walk = func(e *xmlnorm.Element) {
		out = append(out, e.All(tag)...)
		for _, children := range e.Children {
			for _, c := range children {
				walk(c)
			}
		}
	}
	walk(root)
	return out
}
