package scrapers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/openprices/ingest/internal/filenamegrammar"
)

// SimpleListingScraper implements the simple link-listing portal variant: a
// single page whose href list already contains every file, no pagination
// or date directories. Grounded on the Python prototype's Bitan and Nibit
// scrapers and the teacher's generic BaseChainAdapter.Discover href-regex
// scraping.
type SimpleListingScraper struct {
	base
}

// NewSimpleListingScraper constructs a scraper for a flat link-listing
// portal.
func NewSimpleListingScraper(name, portalURL, username, password string) *SimpleListingScraper {
	return &SimpleListingScraper{base: newBase(name, portalURL, username, password)}
}

func (s *SimpleListingScraper) Login(ctx context.Context) error {
	return nil
}

func (s *SimpleListingScraper) list(ctx context.Context) ([]string, error) {
	body, err := s.client.GetBytes(s.url)
	if err != nil {
		return nil, fmt.Errorf("simple-listing: fetch portal: %w", err)
	}
	return extractHrefFilenames(body), nil
}

func (s *SimpleListingScraper) ChainFullID(ctx context.Context) (string, error) {
	names, err := s.list(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if m, ok := filenamegrammar.Parse(name); ok {
			return m.ChainID, nil
		}
	}
	return "", fmt.Errorf("simple-listing: no filename matched the grammar")
}

func (s *SimpleListingScraper) SubchainIDs(ctx context.Context) ([]int, error) {
	stores, err := s.GetStoresXML(ctx, "")
	if err != nil {
		return nil, err
	}
	return subchainIDsFromStoresXML(stores.Filename, stores.Content)
}

func (s *SimpleListingScraper) fetchMatching(ctx context.Context, pattern *regexp.Regexp) (DownloadedFile, error) {
	names, err := s.list(ctx)
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
				return DownloadedFile{}, fmt.Errorf("simple-listing: fetch %s: %w", name, err)
			}
			s.store(name, content)
			return DownloadedFile{Filename: name, Content: content}, nil
		}
	}
	return DownloadedFile{}, ErrFileNotFound
}

func (s *SimpleListingScraper) GetStoresXML(ctx context.Context, date string) (DownloadedFile, error) {
	return s.fetchMatching(ctx, filenamegrammar.StoresPattern())
}

func (s *SimpleListingScraper) GetPricesXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	pattern := filenamegrammar.WithStore(filenamegrammar.PricesPattern(), storeID)
	if date != "" {
		pattern = filenamegrammar.WithDate(pattern, date)
	}
	return s.fetchMatching(ctx, pattern)
}

func (s *SimpleListingScraper) GetPromosXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	pattern := filenamegrammar.WithStore(filenamegrammar.PromosPattern(), storeID)
	if date != "" {
		pattern = filenamegrammar.WithDate(pattern, date)
	}
	return s.fetchMatching(ctx, pattern)
}

func (s *SimpleListingScraper) DownloadAllData(ctx context.Context, date string) ([]DownloadedFile, error) {
	return s.DownloadFilesByPattern(ctx, filenamegrammar.FullPattern(), date)
}

func (s *SimpleListingScraper) DownloadFilesByPattern(ctx context.Context, pattern *regexp.Regexp, date string) ([]DownloadedFile, error) {
	d := todayOrDate(date)
	names, err := s.list(ctx)
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
