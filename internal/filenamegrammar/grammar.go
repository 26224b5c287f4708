// Package filenamegrammar recognizes the supplier filename convention shared
// by every chain portal: type, full-snapshot flag, chain id, store id, and
// timestamp encoded directly in the file name. Every scraper and parser in
// this repository dispatches on this grammar rather than on file extensions.
package filenamegrammar

import (
	"fmt"
	"regexp"
	"strconv"
)

// FileType is the supplier-declared content of a matched file.
type FileType string

const (
	TypeStores FileType = "Stores"
	TypePrices FileType = "Prices"
	TypePromo  FileType = "Promo"
)

// pattern recognizes, in order: type, optional full-snapshot marker, the
// 13-digit chain id, an optional 2-4 digit store id, an 8-digit date and a
// 4-digit time. Supplier file names look like:
//
//	PriceFull7290027600007-001-202001101800.xml
//	Stores7290027600007-202001101800.xml
//	Promo7290027600007-042-202001101800.xml
var pattern = regexp.MustCompile(
	`(?i)^(?P<type>Stores|Price(?:s)?|Promo)(?P<full>Full)?` +
		`(?P<id>\d{13})` +
		`(?:-(?P<store>\d{2,4}))?` +
		`-(?P<date>\d{8})(?P<time>\d{4})`,
)

// Match is a fully decoded filename grammar match.
type Match struct {
	Type    FileType
	Full    bool
	ChainID string // 13-digit external chain id, kept as string to preserve leading digits
	StoreID *int   // nil when the filename carries no store id (e.g. a Stores file)
	Date    string // YYYYMMDD
	Time    string // HHMM
}

// Parse matches filename against the grammar. It reports ok=false if the
// name does not match at all — the grammar is total: a name either matches
// with every named group resolved, or it does not match.
func Parse(filename string) (Match, bool) {
	m := pattern.FindStringSubmatch(filename)
	if m == nil {
		return Match{}, false
	}

	groups := make(map[string]string, len(m))
	for i, name := range pattern.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		groups[name] = m[i]
	}

	var typ FileType
	switch groups["type"] {
	case "Stores", "stores", "STORES":
		typ = TypeStores
	case "Price", "price", "PRICE", "Prices", "prices", "PRICES":
		typ = TypePrices
	case "Promo", "promo", "PROMO":
		typ = TypePromo
	default:
		return Match{}, false
	}

	match := Match{
		Type:    typ,
		Full:    groups["full"] != "",
		ChainID: groups["id"],
		Date:    groups["date"],
		Time:    groups["time"],
	}

	if store := groups["store"]; store != "" {
		n, err := strconv.Atoi(store)
		if err != nil {
			return Match{}, false
		}
		match.StoreID = &n
	}

	return match, true
}

// StoresPattern returns a pattern that only matches Stores files.
func StoresPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?i)^Stores\d{13}`)
}

// FullPattern returns a pattern that only matches full-snapshot files.
func FullPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(Stores|Price|Promo)Full\d{13}`)
}

// PricesPattern returns a pattern that only matches Prices files.
func PricesPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?i)^Price(Full)?\d{13}`)
}

// PromosPattern returns a pattern that only matches Promo files.
func PromosPattern() *regexp.Regexp {
	return regexp.MustCompile(`(?i)^Promo(Full)?\d{13}`)
}

// WithDate specializes a base pattern to a concrete YYYYMMDD date, anchoring
// the filename's date group to that exact value.
func WithDate(base *regexp.Regexp, date string) *regexp.Regexp {
	return regexp.MustCompile(base.String() + `.*-` + regexp.QuoteMeta(date))
}

// WithStore specializes a base pattern to a concrete store id, zero-padded
// to three digits as the source convention requires.
func WithStore(base *regexp.Regexp, storeID int) *regexp.Regexp {
	padded := fmt.Sprintf("%03d", storeID)
	return regexp.MustCompile(base.String() + `.*-` + padded + `-`)
}
