package scrapers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/openprices/ingest/internal/filenamegrammar"
)

// CategoryIndexedScraper implements the category-indexed portal variant:
// an index page paginated with ">"/">>" links, each page listing files for
// one category. Grounded on the Python prototype's Shufersal scraper and
// the teacher's Konzum adapter's page-query-parameter pagination loop.
type CategoryIndexedScraper struct {
	base
	pageParam string // query parameter carrying the page number
	maxPages  int    // pagination ceiling to avoid looping forever on a broken ">>" link
}

// NewCategoryIndexedScraper constructs a scraper for a category-indexed
// pagination portal.
func NewCategoryIndexedScraper(name, portalURL, username, password string) *CategoryIndexedScraper {
	return &CategoryIndexedScraper{
		base:      newBase(name, portalURL, username, password),
		pageParam: "page",
		maxPages:  200,
	}
}

func (s *CategoryIndexedScraper) Login(ctx context.Context) error {
	return nil // this portal style requires no authentication
}

// walkPages fetches every page of the index until the ">>"-next link is
// exhausted or maxPages is reached, collecting filenames discovered on
// each page.
func (s *CategoryIndexedScraper) walkPages(ctx context.Context) ([]string, error) {
	var all []string
	seen := make(map[string]bool)

	for page := 1; page <= s.maxPages; page++ {
		pageURL := s.url
		if page > 1 {
			sep := "?"
			if strings.Contains(s.url, "?") {
				sep = "&"
			}
			pageURL = fmt.Sprintf("%s%s%s=%d", s.url, sep, s.pageParam, page)
		}

		body, err := s.client.GetBytes(pageURL)
		if err != nil {
			return nil, fmt.Errorf("category-indexed: fetch page %d: %w", page, err)
		}

		names := extractHrefFilenames(body)
		newOnThisPage := 0
		for _, name := range names {
			if _, ok := filenamegrammar.Parse(name); !ok {
				continue
			}
			if !seen[name] {
				seen[name] = true
				all = append(all, name)
				newOnThisPage++
			}
		}

		if newOnThisPage == 0 || !hasNextPageLink(body) {
			break
		}
	}
	return all, nil
}

var nextPageLinkPattern = regexp.MustCompile(`>>|&gt;&gt;`)

func hasNextPageLink(body []byte) bool {
	return nextPageLinkPattern.Match(body)
}

func (s *CategoryIndexedScraper) ChainFullID(ctx context.Context) (string, error) {
	names, err := s.walkPages(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if m, ok := filenamegrammar.Parse(name); ok {
			return m.ChainID, nil
		}
	}
	return "", fmt.Errorf("category-indexed: no filename matched the grammar")
}

func (s *CategoryIndexedScraper) SubchainIDs(ctx context.Context) ([]int, error) {
	stores, err := s.GetStoresXML(ctx, "")
	if err != nil {
		return nil, err
	}
	return subchainIDsFromStoresXML(stores.Filename, stores.Content)
}

func (s *CategoryIndexedScraper) fetchMatching(ctx context.Context, pattern *regexp.Regexp) (DownloadedFile, error) {
	names, err := s.walkPages(ctx)
	if err != nil {
		return DownloadedFile{}, err
	}
	for _, name := range names {
		if pattern.MatchString(name) {
			if content, ok := s.cached(name); ok {
				return DownloadedFile{Filename: name, Content: content}, nil
			}
			fileURL := resolveRelative(s.url, name)
			content, err := s.client.GetBytes(fileURL)
			if err != nil {
				return DownloadedFile{}, fmt.Errorf("category-indexed: fetch %s: %w", name, err)
			}
			s.store(name, content)
			return DownloadedFile{Filename: name, Content: content}, nil
		}
	}
	return DownloadedFile{}, ErrFileNotFound
}

func (s *CategoryIndexedScraper) GetStoresXML(ctx context.Context, date string) (DownloadedFile, error) {
	return s.fetchMatching(ctx, filenamegrammar.StoresPattern())
}

func (s *CategoryIndexedScraper) GetPricesXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	pattern := filenamegrammar.WithStore(filenamegrammar.PricesPattern(), storeID)
	if date != "" {
		pattern = filenamegrammar.WithDate(pattern, date)
	}
	return s.fetchMatching(ctx, pattern)
}

func (s *CategoryIndexedScraper) GetPromosXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	pattern := filenamegrammar.WithStore(filenamegrammar.PromosPattern(), storeID)
	if date != "" {
		pattern = filenamegrammar.WithDate(pattern, date)
	}
	return s.fetchMatching(ctx, pattern)
}

func (s *CategoryIndexedScraper) DownloadAllData(ctx context.Context, date string) ([]DownloadedFile, error) {
	return s.DownloadFilesByPattern(ctx, filenamegrammar.FullPattern(), date)
}

func (s *CategoryIndexedScraper) DownloadFilesByPattern(ctx context.Context, pattern *regexp.Regexp, date string) ([]DownloadedFile, error) {
	d := todayOrDate(date)
	names, err := s.walkPages(ctx)
	if err != nil {
		return nil, err
	}

	var out []DownloadedFile
	for _, name := range names {
		if !pattern.MatchString(name) {
			continue
		}
		if date != "" {
			if m, ok := filenamegrammar.Parse(name); !ok || m.Date != d {
				continue
			}
		}
		if content, ok := s.cached(name); ok {
			out = append(out, DownloadedFile{Filename: name, Content: content})
			continue
		}
		fileURL := resolveRelative(s.url, name)
		content, err := s.client.GetBytes(fileURL)
		if err != nil {
			continue
		}
		s.store(name, content)
		out = append(out, DownloadedFile{Filename: name, Content: content})
	}
	return out, nil
}

func resolveRelative(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
