// Package etagindex maintains the in-memory URL -> ETag mapping and its
// on-disk sidecar, keeping the two consistent through atomic replacement.
package etagindex

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pixelvault/imagecache/internal/filename"
)

// SidecarName is the fixed filename of the index's on-disk sidecar, always
// located directly in the cache directory.
const SidecarName = ".etags"

// Entry records what is known about a single URL: whether it has ever been
// fetched, and the most recent validator returned by the origin, if any.
type Entry struct {
	URL    string
	ETag   string
	HasTag bool
}

// Index is the in-memory URL -> Entry map plus its sidecar path. Reads and
// writes are safe for concurrent use: the worker loads and evicts from it
// while the fetcher looks up and updates it on every completed transfer.
type Index struct {
	mu      sync.RWMutex
	dir     string
	entries map[string]*Entry
	dirty   bool
	logger  *slog.Logger
}

// New constructs an empty index rooted at dir. Call LoadFromDisk to
// populate it from an existing sidecar before first use.
func New(dir string, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{
		dir:     dir,
		entries: make(map[string]*Entry),
		logger:  logger,
	}
}

func (idx *Index) sidecarPath() string {
	return filepath.Join(idx.dir, SidecarName)
}

// LoadFromDisk populates the index from the sidecar file, tolerating
// truncation: parsing stops at the first line that does not split into
// exactly URL and ETag, and lines already parsed are kept. A missing
// sidecar is not an error (a fresh cache directory has none yet).
func (idx *Index) LoadFromDisk() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := os.Open(idx.sidecarPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("etagindex: open sidecar: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			idx.logger.Debug("etagindex: stopping at malformed sidecar line", "line", line)
			break
		}
		url, etag := fields[0], fields[1]
		if url == "" || etag == "" {
			idx.logger.Debug("etagindex: stopping at incomplete sidecar entry")
			break
		}
		idx.entries[url] = &Entry{URL: url, ETag: etag, HasTag: true}
	}
	if err := scanner.Err(); err != nil {
		idx.logger.Warn("etagindex: sidecar scan error, keeping entries parsed so far", "error", err)
	}
	return nil
}

// Lookup returns a copy of the entry for url, if one exists.
func (idx *Index) Lookup(url string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.entries[url]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// InsertOrUpdate creates the entry for url if absent, or replaces its ETag
// otherwise. Returns true if the index changed and should eventually be
// flushed.
func (idx *Index) InsertOrUpdate(url, etag string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[url]
	if !ok {
		idx.entries[url] = &Entry{URL: url, ETag: etag, HasTag: etag != ""}
		idx.dirty = true
		return true
	}
	if e.ETag == etag && e.HasTag == (etag != "") {
		return false
	}
	e.ETag = etag
	e.HasTag = etag != ""
	idx.dirty = true
	return true
}

// EnsurePresent creates an entry for url with no ETag if one does not
// already exist, without disturbing an existing entry's ETag.
func (idx *Index) EnsurePresent(url string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.entries[url]; !ok {
		idx.entries[url] = &Entry{URL: url}
		idx.dirty = true
	}
}

// ClearETag nulls the ETag for url without removing the entry, so the next
// fetch for that URL is unconditional but the URL is still tracked.
func (idx *Index) ClearETag(url string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[url]
	if !ok {
		return
	}
	if !e.HasTag && e.ETag == "" {
		return
	}
	e.ETag = ""
	e.HasTag = false
	idx.dirty = true
}

// DeleteByHash removes the entry whose URL hashes to hash, used by eviction
// when only the filename (and thus the hash, not the URL) is known. Returns
// true if an entry was found and removed.
func (idx *Index) DeleteByHash(hash [16]byte) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for url := range idx.entries {
		if filename.HashOf(url) == hash {
			delete(idx.entries, url)
			idx.dirty = true
			return true
		}
	}
	return false
}

// Clear discards all entries, used on shutdown.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string]*Entry)
	idx.dirty = false
}

// Dirty reports whether the index has changed since the last successful
// FlushToDisk.
func (idx *Index) Dirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dirty
}

// FlushToDisk atomically replaces the sidecar with the current contents of
// the index, skipping entries with no ETag. It writes to a temp file in the
// same directory, fsyncs it, then renames it into place, so readers never
// observe a partial write.
func (idx *Index) FlushToDisk() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.flushLocked()
}

// FlushIfDirty calls FlushToDisk only if the index has unflushed changes,
// matching the fetcher's once-per-batch flush policy.
func (idx *Index) FlushIfDirty() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}
	return idx.flushLocked()
}

func (idx *Index) flushLocked() error {
	var buf strings.Builder
	for _, e := range idx.entries {
		if e.URL == "" || !e.HasTag || e.ETag == "" {
			continue
		}
		buf.WriteString(e.URL)
		buf.WriteByte(' ')
		buf.WriteString(e.ETag)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(idx.dir, ".etags-*.tmp")
	if err != nil {
		return fmt.Errorf("etagindex: create temp sidecar: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("etagindex: write temp sidecar: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("etagindex: sync temp sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("etagindex: close temp sidecar: %w", err)
	}
	if err := os.Rename(tmpPath, idx.sidecarPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("etagindex: rename temp sidecar: %w", err)
	}

	idx.dirty = false
	return nil
}
