package imagecache

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callbackRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *callbackRecorder) handle(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *callbackRecorder) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

func (r *callbackRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func TestNewRejectsMissingCallback(t *testing.T) {
	_, err := New(t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrCallbackRequired)
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := New("", func(Result) {})
	assert.ErrorIs(t, err, ErrDirRequired)
}

func TestColdLoadDeliversFreshBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("B1")) //nolint:errcheck
	}))
	defer srv.Close()

	rec := &callbackRecorder{}
	cache, err := New(t.TempDir(), rec.handle)
	require.NoError(t, err)
	defer cache.Close()

	cache.Load(srv.URL)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	results := rec.snapshot()
	assert.Equal(t, srv.URL, results[0].URL)
	assert.Equal(t, []byte("B1"), results[0].Bytes)
}

func TestWarmLoadDeliversDiskHitThenRevalidation(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("B1")) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	rec := &callbackRecorder{}
	cache, err := New(dir, rec.handle)
	require.NoError(t, err)
	defer cache.Close()

	cache.Load(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)

	// Second load should be a warm hit: disk-hit callback first, then a
	// revalidation callback, in that order.
	cache.Load(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 10*time.Millisecond)

	results := rec.snapshot()
	assert.Equal(t, []byte("B1"), results[1].Bytes, "disk-hit callback should carry the previously cached bytes")
	assert.Equal(t, []byte("B1"), results[2].Bytes, "revalidation callback should carry the (unchanged) bytes")
}

func TestRemoveDeletesBlobAndClearsETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("B1")) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	rec := &callbackRecorder{}
	cache, err := New(dir, rec.handle)
	require.NoError(t, err)
	defer cache.Close()

	cache.Load(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	// The fetcher records the ETag just after handing the bytes to the
	// worker, so wait for it before removing.
	require.Eventually(t, func() bool {
		e, ok := cache.index.Lookup(srv.URL)
		return ok && e.HasTag
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, cache.Remove(srv.URL))
	assert.False(t, cache.blobs.Exists(srv.URL))

	e, ok := cache.index.Lookup(srv.URL)
	require.True(t, ok, "Remove should keep the index entry")
	assert.False(t, e.HasTag, "Remove should clear the entry's ETag")
	assert.Empty(t, e.ETag)
}

func TestStatsReportsEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello")) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	rec := &callbackRecorder{}
	cache, err := New(dir, rec.handle)
	require.NoError(t, err)
	defer cache.Close()

	cache.Load(srv.URL)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)

	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
	assert.EqualValues(t, len("hello"), stats.TotalBytes)
}

func TestPruneRespectsMaxSize(t *testing.T) {
	dir := t.TempDir()
	rec := &callbackRecorder{}
	cache, err := New(dir, rec.handle, WithCacheMaxSize(100))
	require.NoError(t, err)
	defer cache.Close()

	for i := 0; i < 4; i++ {
		require.NoError(t, cache.blobs.Write("https://ex/"+string(rune('a'+i))+".png", []byte("x")))
	}

	result, err := cache.Prune(PruneOptions{MaxSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, result.EntriesRemoved)
	assert.Equal(t, 2, result.EntriesKept)
}

func TestCloseIsIdempotent(t *testing.T) {
	cache, err := New(t.TempDir(), func(Result) {})
	require.NoError(t, err)

	assert.NoError(t, cache.Close())
	assert.NoError(t, cache.Close())
}

func TestColdLoadWithNoDiskCopyAndTransportFailureDeliversEmpty(t *testing.T) {
	rec := &callbackRecorder{}
	cache, err := New(t.TempDir(), rec.handle)
	require.NoError(t, err)
	defer cache.Close()

	cache.Load("http://127.0.0.1:1")

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
	results := rec.snapshot()
	assert.Empty(t, results[0].Bytes)
}

func TestNewCreatesCacheDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	cache, err := New(dir, func(Result) {})
	require.NoError(t, err)
	defer cache.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
