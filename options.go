package imagecache

import (
	"log/slog"
	"time"
)

const (
	defaultMaxRequests  = int64(4)
	defaultMaxBlobSize  = int64(64 << 20)
	defaultCacheMaxSize = 3
	defaultCacheMaxTime = 7 * 24 * time.Hour
)

type options struct {
	maxRequests        int64
	maxBlobSize        int64
	insecureSkipVerify bool
	blobCompression    bool
	cacheMaxSize       int
	cacheMaxTime       time.Duration
	logger             *slog.Logger
}

func defaultOptions() options {
	return options{
		maxRequests: defaultMaxRequests,
		maxBlobSize: defaultMaxBlobSize,
		// TLS verification is off by default, matching the distilled spec's
		// historical default (see SPEC_FULL.md §4.6); a stricter deployment
		// should call WithInsecureSkipVerify(false).
		insecureSkipVerify: true,
		cacheMaxSize:       defaultCacheMaxSize,
		cacheMaxTime:       defaultCacheMaxTime,
		logger:             slog.New(slog.DiscardHandler),
	}
}

// Option configures a Cache at construction via New.
type Option func(*options)

// WithMaxRequests bounds the number of HTTP transfers the fetcher runs
// concurrently. Default 4.
func WithMaxRequests(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRequests = int64(n)
		}
	}
}

// WithMaxBlobSize caps the number of response bytes read per transfer.
// Default 64MiB.
func WithMaxBlobSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBlobSize = n
		}
	}
}

// WithInsecureSkipVerify disables TLS certificate verification on outgoing
// requests, matching the upstream design's historical default. On by
// default (verification disabled); a stricter deployment should call
// WithInsecureSkipVerify(false).
func WithInsecureSkipVerify(insecure bool) Option {
	return func(o *options) { o.insecureSkipVerify = insecure }
}

// WithBlobCompression stores blobs zstd-compressed on disk and transparently
// decompresses them on read. Off by default.
func WithBlobCompression(enabled bool) Option {
	return func(o *options) { o.blobCompression = enabled }
}

// WithCacheMaxSize sets the maximum number of blob files kept on disk.
// Default 3.
func WithCacheMaxSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheMaxSize = n
		}
	}
}

// WithCacheMaxTime sets the access-time TTL used during eviction. Default
// 7 days. A zero duration disables the TTL check (only the size cap
// applies).
func WithCacheMaxTime(d time.Duration) Option {
	return func(o *options) { o.cacheMaxTime = d }
}

// WithLogger attaches a structured logger used throughout the cache's
// internal components. A discarding logger is used if none is given.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
