package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelvault/imagecache/internal/blobstore"
	"github.com/pixelvault/imagecache/internal/etagindex"
	"github.com/pixelvault/imagecache/internal/fetcher"
	"github.com/pixelvault/imagecache/internal/queue"
	"github.com/pixelvault/imagecache/internal/types"
)

type collector struct {
	mu    sync.Mutex
	calls [][2]string
}

func (c *collector) record(url string, bytes []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, [2]string{url, string(bytes)})
}

func (c *collector) snapshot() [][2]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][2]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func newTestWorker(t *testing.T, srv *httptest.Server, cb *collector) (*Worker, *queue.Queue[types.LoadItem], *queue.Queue[types.WorkItem], context.CancelFunc) {
	t.Helper()
	dir := t.TempDir()
	blobs, err := blobstore.New(dir)
	require.NoError(t, err)
	idx := etagindex.New(dir, nil)
	loadQ := queue.New[types.LoadItem]()
	workQ := queue.New[types.WorkItem]()

	f := fetcher.New(fetcher.Config{
		LoadQueue:   loadQ,
		WorkQueue:   workQ,
		Blobs:       blobs,
		Index:       idx,
		MaxRequests: 4,
	})

	w := New(Config{
		WorkQueue: workQ,
		Blobs:     blobs,
		Index:     idx,
		Fetcher:   f,
		MaxKept:   3,
		MaxAge:    0,
		Callback:  cb.record,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	return w, loadQ, workQ, cancel
}

func TestWorkerDeliversFreshDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("B1")) //nolint:errcheck
	}))
	defer srv.Close()

	cb := &collector{}
	_, loadQ, _, cancel := newTestWorker(t, srv, cb)
	defer cancel()

	loadQ.Push(types.LoadItem{URL: srv.URL})

	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	calls := cb.snapshot()
	assert.Equal(t, srv.URL, calls[0][0])
	assert.Equal(t, "B1", calls[0][1])
}

func TestWorkerNotModifiedIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	cb := &collector{}
	_, _, workQ, cancel := newTestWorker(t, srv, cb)
	defer cancel()

	// A bare WorkItem (no bytes, not failed, not a disk-hit) is the 304
	// shape: the disk copy is unchanged, so no callback should fire.
	workQ.Push(types.WorkItem{URL: srv.URL})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, cb.snapshot())
}

func TestWorkerDiskHitFastPathDelivers(t *testing.T) {
	cb := &collector{}
	dir := t.TempDir()
	blobs, err := blobstore.New(dir)
	require.NoError(t, err)
	idx := etagindex.New(dir, nil)
	loadQ := queue.New[types.LoadItem]()
	workQ := queue.New[types.WorkItem]()

	const url = "https://ex/warm.png"
	require.NoError(t, blobs.Write(url, []byte("warm-bytes")))

	f := fetcher.New(fetcher.Config{LoadQueue: loadQ, WorkQueue: workQ, Blobs: blobs, Index: idx, MaxRequests: 4})
	w := New(Config{WorkQueue: workQ, Blobs: blobs, Index: idx, Fetcher: f, MaxKept: 3, Callback: cb.record})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	workQ.Push(types.WorkItem{URL: url, DiskHit: true})

	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	calls := cb.snapshot()
	assert.Equal(t, url, calls[0][0])
	assert.Equal(t, "warm-bytes", calls[0][1])
}

func TestWorkerFallsBackToDiskOnRequestFailure(t *testing.T) {
	cb := &collector{}
	dir := t.TempDir()
	blobs, err := blobstore.New(dir)
	require.NoError(t, err)
	idx := etagindex.New(dir, nil)
	loadQ := queue.New[types.LoadItem]()
	workQ := queue.New[types.WorkItem]()

	const url = "https://ex/cached.png"
	require.NoError(t, blobs.Write(url, []byte("cached-bytes")))

	f := fetcher.New(fetcher.Config{LoadQueue: loadQ, WorkQueue: workQ, Blobs: blobs, Index: idx, MaxRequests: 4})
	w := New(Config{WorkQueue: workQ, Blobs: blobs, Index: idx, Fetcher: f, MaxKept: 3, Callback: cb.record})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	workQ.Push(types.WorkItem{URL: url, RequestFailed: true})

	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	calls := cb.snapshot()
	assert.Equal(t, "cached-bytes", calls[0][1])
}

func TestWorkerEmptyCallbackOnFailureWithNoDiskCopy(t *testing.T) {
	cb := &collector{}
	dir := t.TempDir()
	blobs, err := blobstore.New(dir)
	require.NoError(t, err)
	idx := etagindex.New(dir, nil)
	loadQ := queue.New[types.LoadItem]()
	workQ := queue.New[types.WorkItem]()

	f := fetcher.New(fetcher.Config{LoadQueue: loadQ, WorkQueue: workQ, Blobs: blobs, Index: idx, MaxRequests: 4})
	w := New(Config{WorkQueue: workQ, Blobs: blobs, Index: idx, Fetcher: f, MaxKept: 3, Callback: cb.record})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	workQ.Push(types.WorkItem{URL: "https://ex/nope.png", RequestFailed: true})

	require.Eventually(t, func() bool {
		return len(cb.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	calls := cb.snapshot()
	assert.Empty(t, calls[0][1])
}
