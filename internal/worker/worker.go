// Package worker runs the long-lived task that owns startup
// initialization (loading the ETag index and running eviction before any
// network activity starts), drains the work queue, persists or reads
// blobs as each WorkItem requires, and invokes the application callback
// at most once per item: once for a fresh download or a failed request,
// once for a disk hit whose blob is still on disk, and never for a
// not-modified outcome.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixelvault/imagecache/internal/blobstore"
	"github.com/pixelvault/imagecache/internal/etagindex"
	"github.com/pixelvault/imagecache/internal/fetcher"
	"github.com/pixelvault/imagecache/internal/queue"
	"github.com/pixelvault/imagecache/internal/types"
)

// Callback is invoked with the URL and the delivered bytes (possibly
// empty). It must not retain the slice past the call; the worker does not
// reuse the buffer today, but callers should treat it as borrowed.
type Callback func(url string, bytes []byte)

// Config collects the tunables and collaborators a Worker needs.
type Config struct {
	WorkQueue *queue.Queue[types.WorkItem]
	Blobs     *blobstore.Store
	Index     *etagindex.Index
	Fetcher   *fetcher.Fetcher
	MaxKept   int
	MaxAge    time.Duration
	Callback  Callback
	Logger    *slog.Logger
}

// Worker is the single long-lived task described in component §4.7.
type Worker struct {
	cfg Config
}

// New constructs a Worker from cfg.
func New(cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{cfg: cfg}
}

// Run performs the one-shot startup sequence (load index, evict, start the
// fetcher) and then drains the work queue until the queue is closed and
// empty, or until ctx is found canceled after a batch. It blocks until the fetcher goroutine it started has
// also returned, so a caller that joins Run has transitively joined the
// fetcher too.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.cfg.Index.LoadFromDisk(); err != nil {
		return fmt.Errorf("worker: load etag index: %w", err)
	}

	if result, err := w.cfg.Blobs.ScanAndEvict(time.Now(), w.cfg.MaxKept, w.cfg.MaxAge, w.cfg.Index); err != nil {
		w.cfg.Logger.Warn("worker: startup eviction failed", "error", err)
	} else {
		w.cfg.Logger.Debug("worker: startup eviction complete", "kept", result.Kept, "removed", result.Removed)
	}

	var fetcherDone sync.WaitGroup
	fetcherDone.Add(1)
	go func() {
		defer fetcherDone.Done()
		w.cfg.Fetcher.Run(ctx)
	}()
	defer fetcherDone.Wait()

	for {
		batch, ok := w.cfg.WorkQueue.PopAll()
		if !ok {
			return nil
		}
		for _, item := range batch {
			w.process(item)
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// process dispatches a single WorkItem per the shape described on
// types.WorkItem.
func (w *Worker) process(item types.WorkItem) {
	switch {
	case item.HasBytes:
		if err := w.cfg.Blobs.Write(item.URL, item.Bytes); err != nil {
			w.cfg.Logger.Warn("worker: writing blob failed, delivering in-memory bytes anyway", "url", item.URL, "error", err)
		}
		w.cfg.Callback(item.URL, item.Bytes)

	case item.RequestFailed:
		data, found, err := w.cfg.Blobs.Read(item.URL)
		if err != nil {
			w.cfg.Logger.Warn("worker: disk fallback read failed", "url", item.URL, "error", err)
		}
		if found {
			w.cfg.Callback(item.URL, data)
		} else {
			w.cfg.Callback(item.URL, nil)
		}

	case item.DiskHit:
		data, found, err := w.cfg.Blobs.Read(item.URL)
		if err != nil {
			w.cfg.Logger.Warn("worker: disk-hit fast path read failed", "url", item.URL, "error", err)
		}
		if found {
			w.cfg.Callback(item.URL, data)
		}

	default:
		// Not-modified: the disk copy is unchanged, nothing to deliver.
	}
}
