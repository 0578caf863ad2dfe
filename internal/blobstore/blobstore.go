// Package blobstore manages the on-disk directory of cached blob files:
// existence checks, reads, atomic writes, removal, and capacity/TTL
// eviction kept consistent with the ETag index.
package blobstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pixelvault/imagecache/internal/etagindex"
	"github.com/pixelvault/imagecache/internal/filename"
)

// Store is a directory of flat blob files named by filename.Of, with
// optional transparent on-disk compression.
type Store struct {
	dir      string
	compress bool
	logger   *slog.Logger
	atimeFn  func(os.FileInfo) time.Time
}

// Option configures a Store at construction.
type Option func(*Store)

// WithBlobCompression enables transparent zstd compression of blob
// contents on write, and decompression on read. Off by default so the
// on-disk format matches raw origin bytes unless explicitly requested.
func WithBlobCompression(enabled bool) Option {
	return func(s *Store) { s.compress = enabled }
}

// WithLogger attaches a structured logger. A discarding logger is used if
// none is given.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Store rooted at dir, creating the directory if it does
// not already exist.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create cache dir: %w", err)
	}
	s := &Store{
		dir:     dir,
		logger:  slog.New(slog.DiscardHandler),
		atimeFn: atime,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) path(url string) string {
	return filepath.Join(s.dir, string(filename.Of(url)))
}

// Exists reports whether a non-empty blob for url is present in the cache
// directory; an empty file counts as absent.
func (s *Store) Exists(url string) bool {
	info, err := os.Stat(s.path(url))
	return err == nil && info.Size() > 0
}

// Read returns the bytes of the blob for url. found is false if no blob
// exists or it is empty; err is non-nil only for a genuine I/O failure on
// an existing, non-empty file.
func (s *Store) Read(url string) (data []byte, found bool, err error) {
	p := s.path(url)
	info, statErr := os.Stat(p)
	if statErr != nil || info.Size() == 0 {
		return nil, false, nil
	}

	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, false, fmt.Errorf("blobstore: read %s: %w", p, err)
	}
	if !s.compress {
		return raw, true, nil
	}
	decoded, err := decompress(raw)
	if err != nil {
		return nil, false, fmt.Errorf("blobstore: decompress %s: %w", p, err)
	}
	return decoded, true, nil
}

// Write atomically installs data as the blob for url: the bytes are
// written to a temp sibling file, fsynced, then renamed into place. On any
// error the partial file is removed rather than left behind.
func (s *Store) Write(url string, data []byte) error {
	payload := data
	if s.compress {
		encoded, err := compress(data)
		if err != nil {
			return fmt.Errorf("blobstore: compress: %w", err)
		}
		payload = encoded
	}

	dst := s.path(url)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("blobstore: create temp blob: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := tmp.Write(payload)
	if err != nil || n != len(payload) {
		tmp.Close()
		os.Remove(tmpPath)
		if err != nil {
			return fmt.Errorf("blobstore: write blob: %w", err)
		}
		return fmt.Errorf("blobstore: short write for %s (%d of %d bytes)", dst, n, len(payload))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("blobstore: sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blobstore: close blob: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("blobstore: rename blob into place: %w", err)
	}
	return nil
}

// Remove best-effort deletes the blob for url; a missing file is not an
// error.
func (s *Store) Remove(url string) error {
	if err := os.Remove(s.path(url)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: remove blob: %w", err)
	}
	return nil
}

// EvictResult summarizes the outcome of a ScanAndEvict pass.
type EvictResult struct {
	Kept    int
	Removed int
}

// ScanAndEvict enumerates blob files matching this store's naming
// convention and removes any beyond maxKept (directory-iteration order is
// the tiebreak) or older than maxAge by access time. Every removal also
// deletes the corresponding ETag index entry by hash; if anything was
// removed, the index is flushed once at the end.
func (s *Store) ScanAndEvict(now time.Time, maxKept int, maxAge time.Duration, idx *etagindex.Index) (EvictResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return EvictResult{}, fmt.Errorf("blobstore: read cache dir: %w", err)
	}

	// os.ReadDir already returns entries sorted by name; the spec's
	// "directory-iteration order" tiebreak only needs to be stable, which
	// this satisfies.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var result EvictResult
	anyRemoved := false

	for _, de := range entries {
		name := de.Name()
		if !filename.Matches(name) {
			continue
		}
		hash, ok := filename.Decode(name)
		if !ok {
			continue
		}

		info, err := de.Info()
		if err != nil {
			s.logger.Warn("blobstore: stat during eviction scan failed, skipping", "name", name, "error", err)
			continue
		}

		remove := false
		if result.Kept >= maxKept {
			remove = true
		} else if maxAge > 0 && now.Sub(s.atimeFn(info)) > maxAge {
			remove = true
		}

		if !remove {
			result.Kept++
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("blobstore: evict remove failed", "name", name, "error", err)
			continue
		}
		result.Removed++
		anyRemoved = true
		idx.DeleteByHash(hash)
	}

	if anyRemoved {
		if err := idx.FlushToDisk(); err != nil {
			s.logger.Warn("blobstore: etag index flush after eviction failed", "error", err)
		}
	}

	return result, nil
}
