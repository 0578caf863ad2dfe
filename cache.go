package imagecache

import (
	"context"
	"sync"

	"github.com/pixelvault/imagecache/internal/blobstore"
	"github.com/pixelvault/imagecache/internal/etagindex"
	"github.com/pixelvault/imagecache/internal/fetcher"
	"github.com/pixelvault/imagecache/internal/queue"
	"github.com/pixelvault/imagecache/internal/types"
	"github.com/pixelvault/imagecache/internal/worker"
)

// Result is delivered to the callback supplied to New: the URL that was
// loaded and the bytes retrieved for it, which may be empty if both the
// network attempt and any disk fallback failed.
type Result struct {
	URL   string
	Bytes []byte
}

// Cache is the owning handle for one cache directory: its worker and
// fetcher goroutines, its ETag index, and its queues. Unlike the upstream
// design's process-global state, every field here lives on the value
// returned by New; there is no package-level state and no global shim.
type Cache struct {
	dir       string
	blobs     *blobstore.Store
	index     *etagindex.Index
	loadQueue *queue.Queue[types.LoadItem]
	workQueue *queue.Queue[types.WorkItem]

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	cacheMaxSize int
}

// New creates a Cache rooted at dir and starts its worker (which in turn
// starts the fetcher). callback is invoked once per Load in the miss/
// revalidation path, and up to twice in the cache-hit path (disk-hit then
// revalidation), per the ordering guarantee in SPEC_FULL.md §5.
func New(dir string, callback func(Result), opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}
	if callback == nil {
		return nil, ErrCallbackRequired
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	blobs, err := blobstore.New(dir,
		blobstore.WithBlobCompression(o.blobCompression),
		blobstore.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}
	index := etagindex.New(dir, o.logger)

	loadQueue := queue.New[types.LoadItem]()
	workQueue := queue.New[types.WorkItem]()

	f := fetcher.New(fetcher.Config{
		LoadQueue:          loadQueue,
		WorkQueue:          workQueue,
		Blobs:              blobs,
		Index:              index,
		MaxRequests:        o.maxRequests,
		MaxBlobSize:        o.maxBlobSize,
		InsecureSkipVerify: o.insecureSkipVerify,
		Logger:             o.logger,
	})

	w := worker.New(worker.Config{
		WorkQueue: workQueue,
		Blobs:     blobs,
		Index:     index,
		Fetcher:   f,
		MaxKept:   o.cacheMaxSize,
		MaxAge:    o.cacheMaxTime,
		Callback: func(url string, bytes []byte) {
			callback(Result{URL: url, Bytes: bytes})
		},
		Logger: o.logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		dir:          dir,
		blobs:        blobs,
		index:        index,
		loadQueue:    loadQueue,
		workQueue:    workQueue,
		cancel:       cancel,
		done:         make(chan struct{}),
		cacheMaxSize: o.cacheMaxSize,
	}

	go func() {
		defer close(c.done)
		// Errors during the run are logged internally by the worker;
		// there is no caller to surface them to beyond the logger.
		_ = w.Run(ctx)
	}()

	return c, nil
}

// Close stops the worker and fetcher, clears the ETag index, and drains
// both queues. It is safe to call more than once; only the first call has
// effect. Close blocks until the worker (and transitively the fetcher)
// have fully stopped.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.loadQueue.Close()
		c.workQueue.Close()
		<-c.done
		// Both queues are closed, so PopAll returns at once and discards
		// whatever was still pending.
		c.loadQueue.PopAll()
		c.workQueue.PopAll()
		c.index.Clear()
	})
	return nil
}

// Load requests url. If a blob already exists on disk, a disk-hit
// WorkItem is enqueued immediately so the worker reads and delivers it
// without waiting on the network; a LoadItem is always enqueued
// afterward so the fetcher revalidates in the background. This produces
// the stale-while-revalidate behavior: the application observes the
// disk-hit callback (if any) strictly before the revalidation callback.
func (c *Cache) Load(url string) {
	if c.blobs.Exists(url) {
		c.workQueue.Push(types.WorkItem{URL: url, DiskHit: true})
	}
	c.loadQueue.Push(types.LoadItem{URL: url})
}

// Remove deletes the blob for url, if any, clears (without deleting) its
// ETag index entry so the next Load is unconditional, and flushes the
// index.
func (c *Cache) Remove(url string) error {
	if err := c.blobs.Remove(url); err != nil {
		return err
	}
	c.index.ClearETag(url)
	return c.index.FlushToDisk()
}
