package catalog

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ResolvedChain is one (Listing, full id, subchain id) tuple ready to be
// upserted as a Chain + ChainWebAccess pair.
type ResolvedChain struct {
	Listing    Listing
	FullID     string
	SubchainID int
}

// Resolve turns each Listing into zero or more ResolvedChains — one per
// subchain id the chain's scraper reports. A listing whose URL matches no
// known scraper variant, or whose chain full id cannot be determined, is
// logged here as a Discovery-category warning and skipped rather than
// aborting the whole catalog run.
func Resolve(ctx context.Context, listings []Listing, factory ScraperFactory) []ResolvedChain {
	var out []ResolvedChain
	for _, l := range listings {
		scraper, err := factory(l.Name, l.URL, l.Username, l.Password)
		if err != nil || scraper == nil {
			log.Warn().Err(err).Str("category", "discovery").Str("chain", l.Name).Str("url", l.URL).Msg("no scraper variant for chain; skipped")
			continue
		}
		fullID, err := scraper.ChainFullID(ctx)
		if err != nil || fullID == "" {
			log.Warn().Err(err).Str("category", "discovery").Str("chain", l.Name).Msg("chain full id not found; skipped")
			continue
		}
		subchains, err := scraper.SubchainIDs(ctx)
		if err != nil || len(subchains) == 0 {
			log.Warn().Err(err).Str("category", "discovery").Str("chain", l.Name).Msg("no subchain ids found; skipped")
			continue
		}
		for _, sub := range subchains {
			out = append(out, ResolvedChain{Listing: l, FullID: fullID, SubchainID: sub})
		}
	}
	return out
}
