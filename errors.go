package imagecache

import "errors"

// ErrCallbackRequired is returned by New when callback is nil; the public
// API's only reporting channel is the callback, so a cache without one is
// a configuration error.
var ErrCallbackRequired = errors.New("imagecache: callback must not be nil")

// ErrDirRequired is returned by New when dir is empty.
var ErrDirRequired = errors.New("imagecache: cache directory must not be empty")
