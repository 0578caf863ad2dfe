// Package types holds the handoff records passed between the public API,
// the fetcher, and the worker through the load and work queues.
package types

// LoadItem is a single URL awaiting revalidation by the fetcher. It is
// consumed exactly once.
type LoadItem struct {
	URL string
}

// WorkItem is a fetch outcome, or a cache-hit fast-path marker, awaiting
// processing by the worker. Exactly one of four shapes applies:
//
//   - HasBytes is true: a fresh download that must be persisted and
//     delivered.
//   - HasBytes is false and RequestFailed is true: the network attempt
//     failed; the worker falls back to a disk read if one exists.
//   - DiskHit is true: the cache-hit fast path pushed this ahead of the
//     revalidation LoadItem; the worker reads the existing blob and
//     delivers it without touching the network.
//   - All three flags are false: a 304 (not-modified) outcome — the disk
//     copy is unchanged and already reflects reality, so no action is
//     needed.
//
// DiskHit and the bare 304 shape both carry no bytes, which is why they
// need a distinct flag: a 304 must stay a no-op (the disk-hit delivery,
// if any, already happened earlier in the same load), while a DiskHit
// item is precisely the delivery.
type WorkItem struct {
	URL           string
	Bytes         []byte
	HasBytes      bool
	RequestFailed bool
	DiskHit       bool
}
