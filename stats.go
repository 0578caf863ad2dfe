package imagecache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pixelvault/imagecache/internal/filename"
)

// Stats summarizes the current state of the cache directory, mirroring
// the teacher lineage's cache-introspection API so a CLI front end has
// something to report.
type Stats struct {
	Path       string
	EntryCount int
	TotalBytes int64
}

// Stats scans the cache directory and reports its current size and entry
// count. It does not consult the ETag index; it reports exactly what is
// on disk.
func (c *Cache) Stats() (Stats, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("imagecache: read cache dir: %w", err)
	}

	stats := Stats{Path: c.dir}
	for _, de := range entries {
		if !filename.Matches(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		stats.EntryCount++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}

// PruneOptions configures an explicit Prune call. A zero MaxSize falls
// back to the cap set with WithCacheMaxSize, so a size cap always applies;
// a zero MaxAge disables the TTL check entirely, matching
// blobstore.Store.ScanAndEvict's convention.
type PruneOptions struct {
	MaxSize int
	MaxAge  time.Duration
}

// PruneResult reports how many entries were removed and how many remain
// after a Prune call.
type PruneResult struct {
	EntriesRemoved int
	EntriesKept    int
}

// Prune runs the same capacity/TTL eviction policy the worker runs at
// startup, on demand. It runs on the calling goroutine and removes blob
// files directly, alongside the worker; the ETag index it updates is
// mutex-guarded.
func (c *Cache) Prune(opts PruneOptions) (PruneResult, error) {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = c.cacheMaxSize
	}

	result, err := c.blobs.ScanAndEvict(time.Now(), maxSize, opts.MaxAge, c.index)
	if err != nil {
		return PruneResult{}, err
	}
	return PruneResult{EntriesRemoved: result.Removed, EntriesKept: result.Kept}, nil
}

// Clear removes every blob file in the cache directory and discards the
// ETag index entirely, leaving an empty sidecar behind. Unlike Prune, this
// is not subject to CacheMaxSize: it always empties the cache.
func (c *Cache) Clear() (PruneResult, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return PruneResult{}, fmt.Errorf("imagecache: read cache dir: %w", err)
	}

	removed := 0
	for _, de := range entries {
		if !filename.Matches(de.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil && !os.IsNotExist(err) {
			return PruneResult{}, fmt.Errorf("imagecache: remove %s: %w", de.Name(), err)
		}
		removed++
	}

	c.index.Clear()
	if err := c.index.FlushToDisk(); err != nil {
		return PruneResult{}, fmt.Errorf("imagecache: flush cleared index: %w", err)
	}

	return PruneResult{EntriesRemoved: removed, EntriesKept: 0}, nil
}
