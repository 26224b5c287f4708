package scrapers

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/openprices/ingest/internal/filenamegrammar"
)

// FormPostScraper implements the form-POST API variant: a single endpoint
// accepts form parameters (store id, file type, date) and returns the
// compressed payload directly, naming it via the response's
// Content-Disposition header rather than the request URL. Grounded on the
// Python prototype's Coop scraper.
type FormPostScraper struct {
	base
	endpointPath string
}

// NewFormPostScraper constructs a scraper for a form-POST API portal.
func NewFormPostScraper(name, portalURL, username, password string) *FormPostScraper {
	return &FormPostScraper{
		base:         newBase(name, portalURL, username, password),
		endpointPath: "/api/files",
	}
}

func (s *FormPostScraper) Login(ctx context.Context) error {
	return nil // the endpoint accepts an API key/credential pair per request, no session
}

func (s *FormPostScraper) post(form url.Values) (DownloadedFile, error) {
	endpoint := strings.TrimRight(s.url, "/") + s.endpointPath
	resp, err := s.client.Do("POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DownloadedFile{}, fmt.Errorf("form-post: request: %w", err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return DownloadedFile{}, fmt.Errorf("form-post: read response: %w", err)
	}

	filename := contentDispositionFilename(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		return DownloadedFile{}, ErrFileNotFound
	}

	return DownloadedFile{Filename: filename, Content: content}, nil
}

func (s *FormPostScraper) request(fileType, storeID, date string) (DownloadedFile, error) {
	form := url.Values{
		"username": {s.username},
		"password": {s.password},
		"type":     {fileType},
	}
	if storeID != "" {
		form.Set("store", storeID)
	}
	if date != "" {
		form.Set("date", date)
	}
	if cached, ok := s.cached(fileType + ":" + storeID + ":" + date); ok {
		return DownloadedFile{Filename: fileType + storeID + date, Content: cached}, nil
	}
	file, err := s.post(form)
	if err != nil {
		return DownloadedFile{}, err
	}
	s.store(fileType+":"+storeID+":"+date, file.Content)
	return file, nil
}

func (s *FormPostScraper) ChainFullID(ctx context.Context) (string, error) {
	stores, err := s.request("stores", "", "")
	if err != nil {
		return "", err
	}
	m, ok := filenamegrammar.Parse(stores.Filename)
	if !ok {
		return "", fmt.Errorf("form-post: stores filename %q did not match the grammar", stores.Filename)
	}
	return m.ChainID, nil
}

func (s *FormPostScraper) SubchainIDs(ctx context.Context) ([]int, error) {
	stores, err := s.GetStoresXML(ctx, "")
	if err != nil {
		return nil, err
	}
	return subchainIDsFromStoresXML(stores.Filename, stores.Content)
}

func (s *FormPostScraper) GetStoresXML(ctx context.Context, date string) (DownloadedFile, error) {
	return s.request("stores", "", date)
}

func (s *FormPostScraper) GetPricesXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	return s.request("prices", fmt.Sprintf("%d", storeID), date)
}

func (s *FormPostScraper) GetPromosXML(ctx context.Context, storeID int, date string) (DownloadedFile, error) {
	return s.request("promo", fmt.Sprintf("%d", storeID), date)
}

func (s *FormPostScraper) DownloadAllData(ctx context.Context, date string) ([]DownloadedFile, error) {
	stores, err := s.GetStoresXML(ctx, date)
	if err != nil {
		return nil, err
	}
	out := []DownloadedFile{stores}

	storeIDs, err := storeIDsFromStoresXML(stores.Filename, stores.Content)
	if err != nil {
		return out, nil // stores file alone still counts as downloaded
	}
	for _, id := range storeIDs {
		if prices, err := s.GetPricesXML(ctx, id, date); err == nil {
			out = append(out, prices)
		}
	}
	return out, nil
}

func (s *FormPostScraper) DownloadFilesByPattern(ctx context.Context, pattern *regexp.Regexp, date string) ([]DownloadedFile, error) {
	all, err := s.DownloadAllData(ctx, date)
	if err != nil {
		return nil, err
	}
	return filterByPattern(all, pattern), nil
}
