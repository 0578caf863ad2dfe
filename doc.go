// Package imagecache is an asynchronous, on-disk image cache. Given a
// stream of image URLs, it serves a cached copy immediately when one
// exists, revalidates against the origin using ETag conditional requests,
// installs fresh bytes back into the cache, and delivers the result
// through a single callback. Entries are evicted on a per-process
// capacity cap and an access-time TTL.
//
// A Cache is created with New and must be closed with Close when no
// longer needed. Load and Remove may be called concurrently from any
// number of goroutines; the supplied callback is invoked synchronously
// from a single internal worker goroutine and is never called
// concurrently with itself.
package imagecache
