// Package filecache implements the bounded, TTL-based file content cache
// of spec.md §4.C: a concurrent map from path to an immutable FileEntry,
// a separate metadata map, a background revalidator, and the gzip
// side-cache / on-the-fly compression predicate shared with the response
// builder.
//
// Grounded on the teacher's pkg/cache/redis.go (TTL-oriented cache wrapper
// guarded by a readiness flag and RWMutex) generalized from a remote Redis
// store to spec.md's required in-process concurrent map, since spec.md
// describes a thread-safe map, not a remote cache tier.
package filecache

import (
	"bytes"
	"compress/gzip"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gruxi/internal/gruxlog"
	"gruxi/internal/model"
	"gruxi/internal/trigger"
)

var log = gruxlog.New("FileCache")

// FileEntry is the cache value (spec.md §3).
type FileEntry struct {
	Path              string
	IsDirectory       bool
	Exists            bool
	Length            int64
	IsTooLargeToStore bool
	MimeType          string
	Raw               []byte // nil if not held
	Gzip              []byte // nil unless a compressed variant is cached
}

// metadata is the side map entry (spec.md §3 CacheMetadata).
type metadata struct {
	addedAt         time.Time
	lastCheckedAt   time.Time
	diskLastModified time.Time
}

// StreamThreshold is the buffered-vs-streaming cutoff for file reads when
// no cached bytes are held (spec.md §4.C "Streaming rule").
const StreamThreshold = 64 * 1024

// compressMinLen / compressMaxLen bound which file sizes are eligible for
// gzip side-caching (spec.md §3 FileEntry invariant).
const (
	compressMinLen = 1000
	compressMaxLen = 10 * 1024 * 1024
)

// Cache is the thread-safe file content cache.
type Cache struct {
	entries  sync.Map // path -> *FileEntry
	meta     sync.Map // path -> *metadata
	mu       sync.Mutex
	count    int

	settings model.FileCacheSettings
	gzip     model.GzipSettings
}

// New creates a Cache configured from the given settings.
func New(fc model.FileCacheSettings, gz model.GzipSettings) *Cache {
	return &Cache{settings: fc, gzip: gz}
}

// Get returns the FileEntry for path, filling the cache on miss.
func (c *Cache) Get(path string) (*FileEntry, error) {
	if v, ok := c.entries.Load(path); ok {
		return v.(*FileEntry), nil
	}
	return c.fill(path)
}

func (c *Cache) fill(path string) (*FileEntry, error) {
	now := time.Now()
	info, err := os.Stat(path)
	if err != nil {
		entry := &FileEntry{Path: path, Exists: false}
		c.store(path, entry, metadata{addedAt: now, lastCheckedAt: now})
		return entry, nil
	}

	if info.IsDir() {
		entry := &FileEntry{Path: path, Exists: true, IsDirectory: true}
		c.store(path, entry, metadata{addedAt: now, lastCheckedAt: now, diskLastModified: info.ModTime()})
		return entry, nil
	}

	mimeType := mimeByExtension(path)
	entry := &FileEntry{
		Path:     path,
		Exists:   true,
		Length:   info.Size(),
		MimeType: mimeType,
	}

	if info.Size() > int64(c.settings.MaxSizePerFile) {
		entry.IsTooLargeToStore = true
	} else {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		entry.Raw = raw
		if c.ShouldCompress(mimeType, int64(len(raw))) {
			var buf bytes.Buffer
			if err := c.CompressContent(raw, &buf); err == nil {
				compressed := buf.Bytes()
				if float64(len(compressed)) <= 0.8*float64(len(raw)) {
					entry.Gzip = compressed
				}
			}
		}
	}

	c.store(path, entry, metadata{addedAt: now, lastCheckedAt: now, diskLastModified: info.ModTime()})
	return entry, nil
}

func (c *Cache) store(path string, entry *FileEntry, m metadata) {
	_, existed := c.entries.Load(path)
	c.entries.Store(path, entry)
	c.meta.Store(path, &m)
	if !existed {
		c.mu.Lock()
		c.count++
		c.mu.Unlock()
	}
}

func (c *Cache) evict(path string) {
	if _, existed := c.entries.Load(path); existed {
		c.mu.Lock()
		c.count--
		c.mu.Unlock()
	}
	c.entries.Delete(path)
	c.meta.Delete(path)
}

// Count returns the current number of cached items.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// ShouldCompress is the shared gzip-eligibility predicate (spec.md §3, §8):
// MIME prefix must be compressible and 1000 < length < 10 MiB.
func (c *Cache) ShouldCompress(mimeType string, length int64) bool {
	if !c.gzip.IsEnabled {
		return false
	}
	if length <= compressMinLen || length >= compressMaxLen {
		return false
	}
	for _, prefix := range c.gzip.CompressibleContentTypes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

// CompressContent gzips raw into out. Exposed for on-the-fly response
// compression (spec.md §4.C).
func (c *Cache) CompressContent(raw []byte, out io.Writer) error {
	w := gzip.NewWriter(out)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func mimeByExtension(path string) string {
	ext := filepath.Ext(path)
	if t := mime.TypeByExtension(ext); t != "" {
		if idx := strings.Index(t, ";"); idx >= 0 {
			return t[:idx]
		}
		return t
	}
	return "application/octet-stream"
}

// Revalidate runs one background revalidation tick (spec.md §4.C).
func (c *Cache) Revalidate() {
	capacity := c.settings.MaxItems
	threshold := c.settings.ForcedEvictionThresholdPct
	if capacity > 0 && threshold > 0 && c.Count() > capacity*threshold/100 {
		c.evictExpiredByLifetime()
		return
	}
	c.revalidateStale()
}

func (c *Cache) evictExpiredByLifetime() {
	maxAge := time.Duration(c.settings.MaxItemLifetimeS) * time.Second
	now := time.Now()
	var toEvict []string
	c.meta.Range(func(key, value any) bool {
		m := value.(*metadata)
		if now.Sub(m.addedAt) > maxAge {
			toEvict = append(toEvict, key.(string))
		}
		return true
	})
	for _, path := range toEvict {
		c.evict(path)
	}
	if len(toEvict) > 0 {
		log.Debugf("forced eviction: dropped %d stale entries", len(toEvict))
	}
}

func (c *Cache) revalidateStale() {
	checkInterval := time.Duration(c.settings.CheckIntervalS) * time.Second
	now := time.Now()

	type candidate struct {
		path string
		m    *metadata
	}
	var stale []candidate
	c.meta.Range(func(key, value any) bool {
		m := value.(*metadata)
		if now.Sub(m.lastCheckedAt) > checkInterval {
			stale = append(stale, candidate{path: key.(string), m: m})
		}
		return len(stale) < 100
	})

	for _, cand := range stale {
		v, ok := c.entries.Load(cand.path)
		if !ok {
			continue
		}
		entry := v.(*FileEntry)

		info, err := os.Stat(cand.path)
		if err != nil {
			if entry.Exists {
				c.evict(cand.path)
				continue
			}
			cand.m.lastCheckedAt = now
			continue
		}
		if !info.ModTime().Equal(cand.m.diskLastModified) {
			c.evict(cand.path)
			continue
		}
		cand.m.lastCheckedAt = now
		cand.m.diskLastModified = info.ModTime()
	}
}

// RunRevalidator starts the 10-second background revalidation loop. It
// exits when the reload_configuration trigger fires.
func (c *Cache) RunRevalidator(bus *trigger.Bus) {
	tok := bus.GetToken(trigger.ReloadConfiguration)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-tok.Done():
			return
		case <-ticker.C:
			c.Revalidate()
		}
	}
}
