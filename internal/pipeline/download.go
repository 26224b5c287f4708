package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openprices/ingest/internal/database"
	"github.com/openprices/ingest/internal/scrapers"
	"github.com/openprices/ingest/internal/storage"
)

// downloadPhase runs download_all_data for every chain in parallel (phase
// 1). Returns, per chain id, the files available for the later phases —
// either freshly downloaded or, with SkipDownload, read back from the local
// cache.
func (d *Driver) downloadPhase(ctx context.Context, chains []ChainTarget, result *Result) map[int64][]scrapers.DownloadedFile {
	out := make(map[int64][]scrapers.DownloadedFile, len(chains))
	var mu sync.Mutex

	runBounded(ctx, d.concurrency(), chains, func(ctx context.Context, chain ChainTarget) error {
		var files []scrapers.DownloadedFile
		var err error
		if d.SkipDownload {
			files, err = d.loadCached(ctx, chain)
		} else {
			files, err = d.downloadChain(ctx, chain)
		}
		if err != nil {
			result.logError(fmt.Sprintf("download %s: %v", chain.Chain.FullID, err))
			return nil
		}

		mu.Lock()
		out[chain.Chain.ID] = files
		mu.Unlock()

		result.mu.Lock()
		result.ChainsDownloaded++
		result.mu.Unlock()
		return nil
	})
	return out
}

func (d *Driver) downloadChain(ctx context.Context, chain ChainTarget) ([]scrapers.DownloadedFile, error) {
	scraper, err := scrapers.Factory(chain.Chain.FullID, chain.Access.URL, chain.Access.Username, chain.Access.Password)
	if err != nil {
		return nil, fmt.Errorf("build scraper: %w", err)
	}
	if scraper == nil {
		return nil, fmt.Errorf("no scraper variant recognizes portal %s", chain.Access.URL)
	}

	if err := scraper.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	files, err := scraper.DownloadAllData(ctx, dateStamp(d.today()))
	if err != nil {
		return nil, fmt.Errorf("download all data: %w", err)
	}

	for _, f := range files {
		key := chain.Chain.Name + "/" + f.Filename
		if err := d.Store.Put(ctx, key, f.Content, &storage.Metadata{
			OriginalName: f.Filename,
			ChainSlug:    chain.Chain.FullID,
			SourceURL:    chain.Access.URL,
		}); err != nil {
			logf("[WARN] failed to cache %s: %v", key, err)
			continue
		}
		d.recordArchive(ctx, chain, f, key)
	}
	return files, nil
}

// recordArchive writes the audit-trail row for one cached file. Best
// effort: never blocks the pipeline on database trouble.
func (d *Driver) recordArchive(ctx context.Context, chain ChainTarget, f scrapers.DownloadedFile, storageKey string) {
	if d.Pool == nil {
		return
	}
	checksum := database.CalculateChecksum(f.Content)
	size := int64(len(f.Content))
	archive := &database.Archive{
		ID:             database.GenerateArchiveID(),
		ChainID:        chain.Chain.ID,
		SourceURL:      chain.Access.URL,
		Filename:       f.Filename,
		OriginalFormat: "xml",
		ArchivePath:    storageKey,
		ArchiveType:    "local",
		FileSize:       &size,
		Checksum:       checksum,
		DownloadedAt:   d.today(),
	}
	if err := database.CreateArchive(ctx, d.Pool, archive); err != nil {
		logf("[WARN] failed to record archive for %s: %v", storageKey, err)
	}
}

func (d *Driver) loadCached(ctx context.Context, chain ChainTarget) ([]scrapers.DownloadedFile, error) {
	keys, err := d.Store.List(ctx, chain.Chain.Name+"/")
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	files := make([]scrapers.DownloadedFile, 0, len(keys))
	for _, key := range keys {
		content, err := d.Store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read cache %s: %w", key, err)
		}
		files = append(files, scrapers.DownloadedFile{Filename: filenameFromKey(key), Content: content})
	}
	return files, nil
}

func filenameFromKey(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

func dateStamp(t time.Time) string {
	return t.Format("20060102")
}
