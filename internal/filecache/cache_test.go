package filecache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gruxi/internal/model"
)

func newTestCache() *Cache {
	return New(
		model.FileCacheSettings{
			MaxItems:                   1000,
			MaxSizePerFile:             10 << 20,
			CheckIntervalS:             0,
			MaxItemLifetimeS:           60,
			ForcedEvictionThresholdPct: 90,
		},
		model.GzipSettings{
			IsEnabled:                true,
			CompressibleContentTypes: []string{"text/"},
		},
	)
}

func TestCompressionThreshold(t *testing.T) {
	c := newTestCache()
	if c.ShouldCompress("text/html", 500) {
		t.Error("below minimum should not compress")
	}
	if !c.ShouldCompress("text/html", 5000) {
		t.Error("within range should compress")
	}
	if c.ShouldCompress("text/html", 10485760) {
		t.Error("at/above maximum should not compress")
	}
	if c.ShouldCompress("image/png", 5000) {
		t.Error("non-compressible MIME should not compress")
	}
}

func TestCacheFillsAndHits(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "index.html")
	content := strings.Repeat("a", 5000)
	if err := os.WriteFile(fp, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCache()
	e, err := c.Get(fp)
	if err != nil {
		t.Fatal(err)
	}
	if !e.Exists || e.IsDirectory {
		t.Fatalf("expected existing file entry, got %+v", e)
	}
	if string(e.Raw) != content {
		t.Fatal("raw content mismatch")
	}
	if e.Gzip == nil {
		t.Fatal("expected gzip side-cache for compressible content")
	}

	e2, err := c.Get(fp)
	if err != nil {
		t.Fatal(err)
	}
	if e2 != e {
		t.Fatal("expected cache hit to return same entry pointer")
	}
}

func TestNonExistentFileCached(t *testing.T) {
	c := newTestCache()
	e, err := c.Get("/nonexistent/path/definitely")
	if err != nil {
		t.Fatal(err)
	}
	if e.Exists {
		t.Fatal("expected non-existent entry")
	}
}

func TestRevalidationEvictsAfterMtimeChange(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(fp, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestCache()
	c.settings.CheckIntervalS = 0
	if _, err := c.Get(fp); err != nil {
		t.Fatal(err)
	}

	// Force lastCheckedAt into the past so the next tick considers it stale.
	v, _ := c.meta.Load(fp)
	m := v.(*metadata)
	m.lastCheckedAt = time.Now().Add(-time.Hour)

	// Mutate the file's mtime.
	newTime := time.Now().Add(time.Hour)
	if err := os.Chtimes(fp, newTime, newTime); err != nil {
		t.Fatal(err)
	}

	c.Revalidate()

	if _, ok := c.entries.Load(fp); ok {
		t.Fatal("expected entry to be evicted after mtime change")
	}

	// Next read should repopulate from disk.
	e, err := c.Get(fp)
	if err != nil {
		t.Fatal(err)
	}
	if !e.Exists {
		t.Fatal("expected entry to exist after re-read")
	}
}
