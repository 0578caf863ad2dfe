package blobstore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// compress zstd-encodes data for the optional WithBlobCompression path.
func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: new zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

// decompress reverses compress. It is only ever called when
// WithBlobCompression is enabled, so every on-disk blob is expected to be a
// valid zstd frame.
func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: new zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: decode zstd frame: %w", err)
	}
	return out, nil
}
