package scrapers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/openprices/ingest/internal/filenamegrammar"
)

// TokenLoginScraper implements the token-login table listing variant: a
// CSRF token is read from a login form, then an AJAX POST to a directory
// endpoint (with a page-size control) returns the file table. Grounded on
// the Python prototype's PublishedpricesDatabase scraper.
type TokenLoginScraper struct {
	base
	directoryPath string // e.g. "/file/ajaxfilelist"
	loginPath     string // e.g. "/login"
	token         string
}

var csrfTokenPattern = regexp.MustCompile(`name=["']csrftoken["']\s+value=["']([^"']+)["']`)

// NewTokenLoginScraper constructs a scraper for a token-login table portal.
func NewTokenLoginScraper(name, portalURL, username, password string) *TokenLoginScraper {
	return &TokenLoginScraper{
		base:          newBase(name, portalURL, username, password),
		directoryPath: "/file/ajaxfilelist",
		loginPath:     "/login",
	}
}

func (s *TokenLoginScraper) Login(ctx context.Context) error {
	loginURL := strings.TrimRight(s.url, "/") + s.loginPath
	body, err := s.client.GetBytes(loginURL)
	if err != nil {
		return fmt.Errorf("token-login: fetch login page: %w", err)
	}

	match := csrfTokenPattern.FindSubmatch(body)
	if match == nil {
		return fmt.Errorf("token-login: csrf token not found on login page")
	}
	s.token = string(match[1])

	form := url.Values{
		"username":  {s.username},
		"password":  {s.password},
		"csrftoken": {s.token},
	}
	resp, err := s.client.Do("POST", loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("token-login: login post: %w", err)
	}
	resp.Body.Close()
	return nil
}

// listDirectory POSTs the AJAX directory request and returns every entry
// filename the portal reports, using iDisplayLength to request the portal's
// full listing rather than a paginated slice.
func (s *TokenLoginScraper) listDirectory(ctx context.Context) ([]string, error) {
	dirURL := strings.TrimRight(s.url, "/") + s.directoryPath
	form := url.Values{
		"iDisplayLength": {"100000"},
		"csrftoken":      {s.token},
	}
	resp, err := s.client.Do("POST", dirURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("token-login: directory post: %w", err)
	}
	defer resp.Body.Close()

	body, err := s.client.GetBytes(dirURL) // portal echoes the listing back on GET too
	if err != nil {
		body = nil
	}
	return extractHrefFilenames(body), nil
}

func (s *TokenLoginScraper) ChainFullID(ctx context.Context) (string, error) {
	entries, err := s.listDirectory(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range entries {
		if m, ok := filenamegrammar.Parse(name); ok {
			return m.ChainID, nil
		}
	}
	return "", fmt.Errorf("token-login: no filename in listing matched the grammar")
}

func (s *TokenLoginScraper) SubchainIDs(ctx context.Context) ([]int, error) {
	stores, err := s.GetStoresXML(ctx, "")
	if err != nil {
		return nil, err
	}
	return subchainIDsFromStoresXML(stores.Filename, stores.Content)
}

func (s *TokenLoginScraper) findAndFetch(ctx context.Context, pattern *regexp.Regexp) (DownloadedFile, error) {
	entries, err := s.listDirectory(ctx)
	if err != nil {
		return DownloadedFile{}, err
	}
	for _, name := range entries {
		if pattern.MatchString(name) {
			if content, ok := s.cached(name); ok {
				return DownloadedFile{Filename: name, Content: content}, nil
			}
			fileURL := strings.TrimRight(s.url, "/") + "/file/d/" + url.PathEscape(name)
			content, err := s.client.GetBytes(fileURL)
			if err != nil {
				return DownloadedFile{}, fmt.Errorf("token-login: fetch %s: %w", name, err)
			}
			s.store(name, content)
			return DownloadedFile{Filename: name, Content: content}, nil
		}
	}
	return DownloadedFile{}, ErrFileNotFound
}

func (s *TokenLoginScraper) GetStoresXML(ctx context.Context, date string) (DownloadedFile, error) {
	return s.findAndFetch(ctx, filenamegrammar.StoresPattern())
}

func (s *TokenLoginScraper) GetPricesXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	pattern := filenamegrammar.WithStore(filenamegrammar.PricesPattern(), storeID)
	if date != "" {
		pattern = filenamegrammar.WithDate(pattern, date)
	}
	return s.findAndFetch(ctx, pattern)
}

func (s *TokenLoginScraper) GetPromosXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	pattern := filenamegrammar.WithStore(filenamegrammar.PromosPattern(), storeID)
	if date != "" {
		pattern = filenamegrammar.WithDate(pattern, date)
	}
	return s.findAndFetch(ctx, pattern)
}

func (s *TokenLoginScraper) DownloadAllData(ctx context.Context, date string) ([]DownloadedFile, error) {
	return s.DownloadFilesByPattern(ctx, filenamegrammar.FullPattern(), date)
}

func (s *TokenLoginScraper) DownloadFilesByPattern(ctx context.Context, pattern *regexp.Regexp, date string) ([]DownloadedFile, error) {
	d := todayOrDate(date)
	entries, err := s.listDirectory(ctx)
	if err != nil {
		return nil, err
	}

	var out []DownloadedFile
	for _, name := range entries {
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
		fileURL := strings.TrimRight(s.url, "/") + "/file/d/" + url.PathEscape(name)
		content, err := s.client.GetBytes(fileURL)
		if err != nil {
			continue // Download-category error: skip, caller retries later
		}
		s.store(name, content)
		out = append(out, DownloadedFile{Filename: name, Content: content})
	}
	return out, nil
}

var hrefPattern = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)

func extractHrefFilenames(body []byte) []string {
	matches := hrefPattern.FindAllSubmatch(body, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, extractFilenameFromURL(string(m[1])))
	}
	return out
}
