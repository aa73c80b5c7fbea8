package installer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	releaseCacheFile = "release_cache.json"
	releaseCacheTTL  = 1 * time.Hour
)

type releaseCacheEntry struct {
	Version   string    `json:"version"`
	FetchedAt time.Time `json:"fetched_at"`
}

// releaseCache remembers the latest release per mirror so repeated installs
// within the TTL skip the redirect lookup. Failures to read or write it are
// never fatal.
type releaseCache struct {
	path string
	now  func() time.Time
}

type releaseCacheDoc struct {
	Entries map[string]releaseCacheEntry `json:"entries"`
}

func newReleaseCache(dataRoot string) *releaseCache {
	return &releaseCache{path: filepath.Join(dataRoot, releaseCacheFile), now: time.Now}
}

func (c *releaseCache) load() releaseCacheDoc {
	empty := releaseCacheDoc{Entries: map[string]releaseCacheEntry{}}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return empty
	}
	var doc releaseCacheDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return empty
	}
	if doc.Entries == nil {
		doc.Entries = map[string]releaseCacheEntry{}
	}
	return doc
}

func (c *releaseCache) latest(mirror string) (string, bool) {
	entry, ok := c.load().Entries[mirror]
	if !ok || c.now().Sub(entry.FetchedAt) > releaseCacheTTL {
		return "", false
	}
	return entry.Version, true
}

func (c *releaseCache) store(mirror, version string) {
	doc := c.load()
	doc.Entries[mirror] = releaseCacheEntry{Version: version, FetchedAt: c.now()}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(c.path, data, 0o644)
}
