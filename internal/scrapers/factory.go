package scrapers

import "strings"

// compile-time assertions that every variant satisfies ChainScraper.
var (
	_ ChainScraper = (*TokenLoginScraper)(nil)
	_ ChainScraper = (*CategoryIndexedScraper)(nil)
	_ ChainScraper = (*DirectoryPerDateScraper)(nil)
	_ ChainScraper = (*SimpleListingScraper)(nil)
	_ ChainScraper = (*FormPostScraper)(nil)
)

// Factory dispatches on a URL substring to build the right ChainScraper
// variant, mirroring the Python prototype's web_scraper_factory /
// db_chain_factory pair. Returns nil, nil if no variant recognizes url (the
// caller logs this as a Discovery-category "no scraper defined" skip).
func Factory(name, portalURL, username, password string) (ChainScraper, error) {
	switch {
	case strings.Contains(portalURL, "publishedprices"):
		return NewTokenLoginScraper(name, trimToCoDomain(portalURL), username, password), nil
	case strings.Contains(portalURL, "shufersal"):
		return NewCategoryIndexedScraper(name, portalURL, username, password), nil
	case strings.Contains(portalURL, "zolvebegadol"):
		return NewDirectoryPerDateScraper(name, portalURL, username, password, true), nil
	case strings.Contains(portalURL, "mega"):
		return NewDirectoryPerDateScraper(name, portalURL, username, password, false), nil
	case strings.Contains(portalURL, "matrixcatalog"), strings.Contains(portalURL, "bitan"):
		return NewSimpleListingScraper(name, portalURL, username, password), nil
	case strings.Contains(portalURL, "coop"):
		return NewFormPostScraper(name, portalURL, username, password), nil
	default:
		return nil, nil
	}
}

// trimToCoDomain truncates url right after its first ".co.il" occurrence,
// matching the Python factory's normalization of publishedprices URLs
// (which otherwise carry a long, chain-specific query path).
func trimToCoDomain(url string) string {
	const suffix = ".co.il"
	if idx := strings.Index(url, suffix); idx >= 0 {
		return url[:idx+len(suffix)]
	}
	return url
}
