package scrapers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openprices/ingest/internal/filenamegrammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryDispatchesByURLSubstring(t *testing.T) {
	cases := []struct {
		url      string
		wantType interface{}
	}{
		{"https://example.publishedprices.co.il/foo", &TokenLoginScraper{}},
		{"https://prices.shufersal.co.il/", &CategoryIndexedScraper{}},
		{"https://zolvebegadol.example.com/", &DirectoryPerDateScraper{}},
		{"https://mega.example.com/", &DirectoryPerDateScraper{}},
		{"https://matrixcatalog.co.il/some/path", &SimpleListingScraper{}},
		{"https://coop.example.com/", &FormPostScraper{}},
	}
	for _, tc := range cases {
		scraper, err := Factory("chain", tc.url, "u", "p")
		require.NoError(t, err)
		require.NotNil(t, scraper, tc.url)
		assert.IsType(t, tc.wantType, scraper)
	}
}

func TestFactoryUnknownURLReturnsNil(t *testing.T) {
	scraper, err := Factory("chain", "https://unknown-portal.example.com/", "u", "p")
	require.NoError(t, err)
	assert.Nil(t, scraper)
}

func TestTrimToCoDomain(t *testing.T) {
	got := trimToCoDomain("https://example.publishedprices.co.il/file?query=x")
	assert.Equal(t, "https://example.publishedprices.co.il", got)
}

func TestSimpleListingScraperFetchesChainFullID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/files/Stores7290027600007-202001101800.xml">stores</a>
			<a href="/files/Price7290027600007-001-202001101800.xml">prices</a>
		</body></html>`))
	}))
	defer srv.Close()

	s := NewSimpleListingScraper("acme", srv.URL, "", "")
	id, err := s.ChainFullID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7290027600007", id)
}

func TestSimpleListingScraperGetPricesXMLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/Stores7290027600007-202001101800.xml">s</a></body></html>`))
	}))
	defer srv.Close()

	s := NewSimpleListingScraper("acme", srv.URL, "", "")
	_, err := s.GetPricesXML(nil, 1, "20200110")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestDownloadFilesByPatternFiltersByDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/PriceFull7290027600007-001-202001101800.xml">a</a>
			<a href="/PriceFull7290027600007-001-202001111800.xml">b</a>
		</body></html>`))
	}))
	defer srv.Close()

	s := NewSimpleListingScraper("acme", srv.URL, "", "")
	files, err := s.DownloadFilesByPattern(nil, filenamegrammar.FullPattern(), "20200110")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Filename, "202001101800")
}
