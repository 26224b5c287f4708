package scrapers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/openprices/ingest/internal/filenamegrammar"
)

// DirectoryPerDateScraper implements the directory-per-date tree variant:
// files live under <portal>/<YYYYMMDD>/ with filenames unchanged from the
// chain's own convention. Grounded on the Python prototype's Mega and
// ZolVebegadol scrapers and the teacher's DM adapter's date-keyed path
// construction.
type DirectoryPerDateScraper struct {
	base
	gzipSubpath bool // true for portals that nest an extra /gz/ level (ZolVebegadol)
}

// NewDirectoryPerDateScraper constructs a scraper for a directory-per-date
// portal. Set gzipSubpath for portals that additionally nest a /gz/
// directory level under the date.
func NewDirectoryPerDateScraper(name, portalURL, username, password string, gzipSubpath bool) *DirectoryPerDateScraper {
	return &DirectoryPerDateScraper{
		base:        newBase(name, portalURL, username, password),
		gzipSubpath: gzipSubpath,
	}
}

func (s *DirectoryPerDateScraper) Login(ctx context.Context) error {
	return nil
}

func (s *DirectoryPerDateScraper) datePath(date string) string {
	d := todayOrDate(date)
	base := strings.TrimRight(s.url, "/") + "/" + d
	if s.gzipSubpath {
		base += "/gz"
	}
	return base
}

func (s *DirectoryPerDateScraper) listDay(ctx context.Context, date string) ([]string, error) {
	dirURL := s.datePath(date)
	body, err := s.client.GetBytes(dirURL)
	if err != nil {
		return nil, fmt.Errorf("directory-per-date: list %s: %w", dirURL, err)
	}
	return extractHrefFilenames(body), nil
}

func (s *DirectoryPerDateScraper) ChainFullID(ctx context.Context) (string, error) {
	today := todayOrDate("")
	names, err := s.listDay(ctx, today)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if m, ok := filenamegrammar.Parse(name); ok {
			return m.ChainID, nil
		}
	}
	return "", fmt.Errorf("directory-per-date: no filename matched the grammar for %s", today)
}

func (s *DirectoryPerDateScraper) SubchainIDs(ctx context.Context) ([]int, error) {
	stores, err := s.GetStoresXML(ctx, "")
	if err != nil {
		return nil, err
	}
	return subchainIDsFromStoresXML(stores.Filename, stores.Content)
}

func (s *DirectoryPerDateScraper) fetchMatching(ctx context.Context, pattern *regexp.Regexp, date string) (DownloadedFile, error) {
	names, err := s.listDay(ctx, date)
	if err != nil {
		return DownloadedFile{}, err
	}
	for _, name := range names {
		if pattern.MatchString(name) {
			if content, ok := s.cached(name); ok {
				return DownloadedFile{Filename: name, Content: content}, nil
			}
			fileURL := s.datePath(date) + "/" + name
			content, err := s.client.GetBytes(fileURL)
			if err != nil {
				return DownloadedFile{}, fmt.Errorf("directory-per-date: fetch %s: %w", name, err)
			}
			s.store(name, content)
			return DownloadedFile{Filename: name, Content: content}, nil
		}
	}
	return DownloadedFile{}, ErrFileNotFound
}

func (s *DirectoryPerDateScraper) GetStoresXML(ctx context.Context, date string) (DownloadedFile, error) {
	return s.fetchMatching(ctx, filenamegrammar.StoresPattern(), date)
}

func (s *DirectoryPerDateScraper) GetPricesXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	return s.fetchMatching(ctx, filenamegrammar.WithStore(filenamegrammar.PricesPattern(), storeID), date)
}

func (s *DirectoryPerDateScraper) GetPromosXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	return s.fetchMatching(ctx, filenamegrammar.WithStore(filenamegrammar.PromosPattern(), storeID), date)
}

func (s *DirectoryPerDateScraper) DownloadAllData(ctx context.Context, date string) ([]DownloadedFile, error) {
	return s.DownloadFilesByPattern(ctx, filenamegrammar.FullPattern(), date)
}

func (s *DirectoryPerDateScraper) DownloadFilesByPattern(ctx context.Context, pattern *regexp.Regexp, date string) ([]DownloadedFile, error) {
	names, err := s.listDay(ctx, date)
	if err != nil {
		return nil, err
	}

	var out []DownloadedFile
	for _, name := range names {
		if !pattern.MatchString(name) {
			continue
		}
		if content, ok := s.cached(name); ok {
			out = append(out, DownloadedFile{Filename: name, Content: content})
			continue
		}
		fileURL := s.datePath(date) + "/" + name
		content, err := s.client.GetBytes(fileURL)
		if err != nil {
			continue
		}
		s.store(name, content)
		out = append(out, DownloadedFile{Filename: name, Content: content})
	}
	return out, nil
}
