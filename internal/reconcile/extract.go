// Package reconcile implements the Prices Parser and the four-stage
// reconciliation engine that brings a store's PriceHistory and CurrentPrice
// up to date with one parsed snapshot.
package reconcile

import (
	"math"
	"strconv"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/xmlnorm"
)

// quantitySentinel is the observed bad-data marker: some chains emit huge
// bogus quantities on some rows, so anything above it is clamped to 0.
const quantitySentinel = 1000

// ParsedProduct is one row extracted from a prices snapshot, carrying both
// the fields that become a StoreProduct and the ones that become an Item
// (only used if the code turns out to be new to the catalog).
type ParsedProduct struct {
	StoreID  int64
	Code     string
	External bool
	Name     string
	Quantity float64
	Unit     database.Unit
	Price    int64 // fixed-point, hundredths of a currency unit
}

// Key returns p's (store_id, code) identity.
func (p ParsedProduct) Key() database.StoreProductKey {
	return database.StoreProductKey{StoreID: p.StoreID, Code: p.Code}
}

func (p ParsedProduct) toStoreProduct() database.StoreProduct {
	return database.StoreProduct{
		StoreID:  p.StoreID,
		Code:     p.Code,
		External: p.External,
		Name:     p.Name,
		RawQty:   strconv.FormatFloat(p.Quantity, 'f', -1, 64),
		RawUnit:  string(p.Unit),
	}
}

func (p ParsedProduct) toItem() database.Item {
	return database.Item{Code: p.Code, Name: p.Name, Quantity: p.Quantity, Unit: p.Unit}
}

// Extract reads the item/product elements out of a parsed prices snapshot
// for storeID. Duplicate codes within the file are collapsed by
// last-write-wins, matching the "identity is (store_id, code)" rule.
func Extract(root *xmlnorm.Element, storeID int64) []ParsedProduct {
	tag := "item"
	elements := findAll(root, tag)
	if len(elements) == 0 {
		tag = "product"
		elements = findAll(root, tag)
	}

	byKey := make(map[database.StoreProductKey]ParsedProduct, len(elements))
	var order []database.StoreProductKey

	for _, el := range elements {
		code := strconv.Itoa(el.AsInt("itemcode"))
		external := el.AsBool("itemtype") && len(code) >= 13

		quantity := el.AsFloat("quantity")
		if quantity > quantitySentinel {
			quantity = 0
		}

		p := ParsedProduct{
			StoreID:  storeID,
			Code:     code,
			External: external,
			Name:     el.AsString("itemname"),
			Quantity: quantity,
			Unit:     database.Unit(xmlnorm.NormalizeUnit(el.AsString("unitqty"))),
			Price:    priceToCents(el.AsFloat("itemprice")),
		}

		key := p.Key()
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = p
	}

	out := make([]ParsedProduct, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

// priceToCents converts a decimal currency amount to the fixed-point,
// hundredths-of-a-unit representation PriceHistory/CurrentPrice store.
func priceToCents(v float64) int64 {
	return int64(math.Round(v * 100))
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
