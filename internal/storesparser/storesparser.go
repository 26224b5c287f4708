// Package storesparser implements the Stores Parser: it loads a chain's
// stores file, filters to the subchain of interest, and upserts Store rows.
package storesparser

import (
	"context"
	"fmt"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/xmlnorm"
)

// branchTagChains is the allow-list of chain names whose stores file uses
// the tag "branch" instead of "store" for a single store element, grounded
// on the Python prototype's parse_stores special case.
var branchTagChains = map[string]bool{
	"מחסני להב":  true,
	"מחסני השוק": true,
	"ויקטורי":    true,
}

// ParseResult is the outcome of parsing one stores file.
type ParseResult struct {
	Candidates  []database.Store
	SubchainName string // non-empty when the file revealed a canonical subchain name
}

// Parse loads the stores XML for chain and returns the candidate Store rows.
// When the file names more than one distinct subchain, elements of a
// subchain other than chain.SubchainID are skipped and the subchain's
// display name is returned if present; a single-subchain file yields every
// store and no name.
func Parse(chain database.Chain, filename string, content []byte) (ParseResult, error) {
	root, err := xmlnorm.Load(filename, content)
	if err != nil {
		return ParseResult{}, fmt.Errorf("storesparser: load %s: %w", filename, err)
	}

	elementTag := "store"
	if branchTagChains[chain.Name] {
		elementTag = "branch"
	}

	elements := findAll(root, elementTag)

	// Only treat the file as multi-subchain (and so only then filter by
	// subchainid / overwrite the chain name) when it actually names more
	// than one distinct subchain, per spec §4.5: a single-subchain file
	// whose subchainid happens to differ from the Chain row's id must
	// still import every store, not zero of them.
	distinct := map[int]bool{}
	for _, el := range elements {
		if id := el.AsInt("subchainid"); id != 0 {
			distinct[id] = true
		}
	}
	multiSubchain := len(distinct) > 1

	var result ParseResult
	for _, el := range elements {
		subchainID := el.AsInt("subchainid")
		if multiSubchain && chain.SubchainID != nil && subchainID != 0 && subchainID != *chain.SubchainID {
			continue
		}

		if multiSubchain {
			if name := el.AsString("subchainname"); name != "" {
				result.SubchainName = name
			}
		}

		storeID := el.AsInt("storeid")
		if storeID == 0 {
			continue
		}

		var city, address *string
		if c := el.AsString("city"); c != "" {
			city = &c
		}
		if a := el.AsString("address"); a != "" {
			address = &a
		}

		result.Candidates = append(result.Candidates, database.Store{
			ChainID: chain.ID,
			StoreID: storeID,
			Name:    storeName(el, storeID),
			City:    city,
			Address: address,
			Type:    database.StoreTypeUnknown,
		})
	}

	return result, nil
}

func storeName(el *xmlnorm.Element, storeID int) string {
	if name := el.AsString("storename"); name != "" {
		return name
	}
	return fmt.Sprintf("Store %d", storeID)
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

// Persister is the persistence boundary: upsert candidates by (chain_id,
// store_id), inserting unknown ones and leaving existing ones untouched,
// and, if result carries a subchain name, overwrite chain.Name with it
// (sticky across every run — see the spec's subchain-naming open
// question). The two mutations are separate calls that each commit on
// their own; they do not share one transaction.
type Persister interface {
	UpsertStores(ctx context.Context, stores []database.Store) error
	RenameChain(ctx context.Context, chainID int64, name string) error
}

// Apply persists a ParseResult against chain via p.
func Apply(ctx context.Context, p Persister, chain database.Chain, result ParseResult) error {
	if result.SubchainName != "" && result.SubchainName != chain.Name {
		if err := p.RenameChain(ctx, chain.ID, result.SubchainName); err != nil {
			return fmt.Errorf("storesparser: rename chain: %w", err)
		}
	}
	if len(result.Candidates) == 0 {
		return nil
	}
	if err := p.UpsertStores(ctx, result.Candidates); err != nil {
		return fmt.Errorf("storesparser: upsert stores: %w", err)
	}
	return nil
}
