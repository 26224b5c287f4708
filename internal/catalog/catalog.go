// Package catalog implements the one-shot Chain Catalog Scraper: it reads
// the government price-transparency index page and yields one (chain name,
// portal URL, credentials) row per listed chain.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Listing is one row scraped from the chain index table.
type Listing struct {
	Name     string
	URL      string
	Username string
	Password string
}

// ScraperFactory constructs a chain scraper for a listing, selecting a
// portal-style variant by URL substring. Declared as a function type here
// (rather than importing internal/scrapers directly) so this package has
// no dependency on the scraper registry; callers wire a factory in.
type ScraperFactory func(name, url, username, password string) (ChainFullIDer, error)

// ChainFullIDer is the minimal capability this package needs from a chain
// scraper: resolving the chain's 13-digit full id and subchain ids, which
// is how a Listing becomes one-or-more Chain rows.
type ChainFullIDer interface {
	ChainFullID(ctx context.Context) (string, error)
	SubchainIDs(ctx context.Context) ([]int, error)
}

// Fetcher abstracts the HTTP GET used to retrieve the index page, so tests
// can supply fixture HTML without a network round trip.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the default Fetcher, a thin wrapper over net/http.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index page returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// IndexURL is the known government price-transparency index page.
const IndexURL = "https://www.gov.il/he/api/PriceTransparencyRegulations"

var whitespaceRun = regexp.MustCompile(`\s+`)

// Discover fetches url and returns one Listing per row of the chain table.
// The table is located by walking up from the first <th> found, mirroring
// the source scraper's "find header, then search backwards for the
// enclosing table" approach rather than anchoring on a CSS class name that
// the page might not carry consistently.
func Discover(ctx context.Context, fetcher Fetcher, url string) ([]Listing, error) {
	body, err := fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	table := findEnclosingTable(doc)
	if table == nil {
		return nil, fmt.Errorf("chain table not found on index page")
	}

	var listings []Listing
	for _, row := range findAll(table, "tr") {
		cells := findAll(row, "td")
		if len(cells) < 3 {
			continue
		}
		name := normalizeName(textContent(cells[0]))
		if name == "" {
			continue
		}
		href := findHref(cells[1])
		if href == "" {
			continue
		}
		username, password := parseLoginCell(cells[2])
		listings = append(listings, Listing{
			Name:     name,
			URL:      href,
			Username: username,
			Password: password,
		})
	}
	return listings, nil
}

// normalizeName filters non-printable/combining characters (the index page
// mixes scripts and carries stray marks) and collapses internal whitespace.
func normalizeName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsPrint(r) && !unicode.IsControl(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
}

// parseLoginCell extracts (username, password) from a table cell whose
// text lists both, one per line, each prefixed by a Hebrew label. Password
// lines use either of two common spellings.
func parseLoginCell(cell *html.Node) (string, string) {
	text := textWithBreaks(cell)
	var username, password string
	tokenPattern := regexp.MustCompile(`[a-zA-Z0-9_]+`)
	for _, line := range strings.Split(text, "\n") {
		tok := tokenPattern.FindString(line)
		if tok == "" {
			continue
		}
		switch {
		case strings.Contains(line, "שם משתמש"):
			username = tok
		case strings.Contains(line, "סיסמא"), strings.Contains(line, "סיסמה"):
			password = tok
		}
	}
	return username, password
}

// findEnclosingTable returns the first <table> ancestor of the first <th>
// found anywhere in doc.
func findEnclosingTable(doc *html.Node) *html.Node {
	th := findFirst(doc, "th")
	if th == nil {
		return nil
	}
	for n := th; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "table" {
			return n
		}
	}
	return nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findHref(n *html.Node) string {
	a := findFirst(n, "a")
	if a == nil {
		return ""
	}
	for _, attr := range a.Attr {
		if attr.Key == "href" {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// textWithBreaks is textContent but <br> elements become newlines, matching
// the source's br.replace_with('\n') before splitting the login cell text.
func textWithBreaks(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			b.WriteString("\n")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
