// Package scrapers implements the Chain Scraper capability set: a family of
// portal-style variants, one per retail-chain portal layout, sharing a
// common capability interface so the Pipeline Driver never needs to know
// which variant it is talking to.
package scrapers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	httpclient "github.com/openprices/ingest/internal/http"
	"github.com/openprices/ingest/internal/http/ratelimit"
	"github.com/openprices/ingest/internal/xmlnorm"
)

// ErrFileNotFound is the distinct "no file matches the expected pattern on
// the expected date" condition. Callers may retry with an earlier date.
var ErrFileNotFound = errors.New("scraper: no matching file for date")

// DownloadedFile is one file pulled from a portal and cached locally.
type DownloadedFile struct {
	Filename string
	Content  []byte
}

// ChainScraper is the capability set every portal variant implements.
// Dates are YYYYMMDD; an empty date means "today".
type ChainScraper interface {
	Login(ctx context.Context) error
	ChainFullID(ctx context.Context) (string, error)
	SubchainIDs(ctx context.Context) ([]int, error)
	GetStoresXML(ctx context.Context, date string) (DownloadedFile, error)
	GetPricesXML(ctx context.Context, storeID int, date string) (DownloadedFile, error)
	GetPromosXML(ctx context.Context, storeID int, date string) (DownloadedFile, error)
	DownloadAllData(ctx context.Context, date string) ([]DownloadedFile, error)
	DownloadFilesByPattern(ctx context.Context, pattern *regexp.Regexp, date string) ([]DownloadedFile, error)
}

// base carries the plumbing every variant needs: rate-limited HTTP client,
// chain identity, and portal credentials. Embedded by every concrete
// variant, mirroring the teacher's BaseChainAdapter composition.
type base struct {
	client   *httpclient.Client
	name     string
	url      string
	username string
	password string

	cache map[string][]byte // path -> content, stands in for the on-disk cache layout
}

func newBase(name, url, username, password string) base {
	return base{
		client:   httpclient.NewClientDefault(),
		name:     name,
		url:      url,
		username: username,
		password: password,
		cache:    make(map[string][]byte),
	}
}

// cached returns a previously downloaded file by its cache key (mirroring
// "existing files are not redownloaded"), or ok=false on a miss.
func (b *base) cached(key string) ([]byte, bool) {
	content, ok := b.cache[key]
	return content, ok
}

func (b *base) store(key string, content []byte) {
	b.cache[key] = content
}

func todayOrDate(date string) string {
	if date != "" {
		return date
	}
	return time.Now().Format("20060102")
}

// filterByPattern keeps only the downloaded files whose filename matches
// pattern, preserving discovery order.
func filterByPattern(files []DownloadedFile, pattern *regexp.Regexp) []DownloadedFile {
	if pattern == nil {
		return files
	}
	var out []DownloadedFile
	for _, f := range files {
		if pattern.MatchString(f.Filename) {
			out = append(out, f)
		}
	}
	return out
}

// extractFilenameFromURL mirrors the teacher's
// BaseChainAdapter.extractFilenameFromURL: last path segment, query string
// stripped.
func extractFilenameFromURL(rawURL string) string {
	noQuery := strings.SplitN(rawURL, "?", 2)[0]
	parts := strings.Split(noQuery, "/")
	return parts[len(parts)-1]
}

// contentDispositionFilename extracts the filename parameter from a
// Content-Disposition response header, as the form-POST variant's portal
// uses to name its payload instead of encoding it in the URL.
func contentDispositionFilename(header string) string {
	_, params, err := parseContentDisposition(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// parseContentDisposition is a minimal mime.ParseMediaType-compatible
// parser kept local so this package's only network-facing dependency is
// net/http itself.
func parseContentDisposition(header string) (string, map[string]string, error) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty content-disposition")
	}
	disposition := strings.TrimSpace(parts[0])
	params := make(map[string]string)
	for _, part := range parts[1:] {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}
	return disposition, params, nil
}

func defaultRateLimitConfig() ratelimit.Config {
	return ratelimit.DefaultConfig()
}

// subchainIDsFromStoresXML parses a stores file and returns the distinct
// integer subchain ids found under the subchainid tag, matching the
// Python prototype's get_subchains_ids.
func subchainIDsFromStoresXML(filename string, content []byte) ([]int, error) {
	root, err := xmlnorm.Load(filename, content)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var ids []int
	for _, store := range storeElementsOf(root) {
		id := store.AsInt("subchainid")
		if id == 0 {
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("scrapers: no subchainid found in stores xml")
	}
	return ids, nil
}

// storeIDsFromStoresXML returns the chain-local store_id of every store
// element in a parsed stores file, read from the storeid tag.
func storeIDsFromStoresXML(filename string, content []byte) ([]int, error) {
	root, err := xmlnorm.Load(filename, content)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, store := range storeElementsOf(root) {
		id := store.AsInt("storeid")
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// storeElementsOf collects every "store" or "branch" element anywhere
// under root, tolerating both flat and nested (stores > store) layouts.
func storeElementsOf(root *xmlnorm.Element) []*xmlnorm.Element {
	var out []*xmlnorm.Element
	var walk func(*xmlnorm.Element)
	walk = func(e *xmlnorm.Element) {
		for _, tag := range []string{"store", "branch"} {
			out = append(out, e.All(tag)...)
		}
		for _, children := range e.Children {
			for _, c := range children {
				walk(c)
			}
		}
	}
	walk(root)
	return out
}
