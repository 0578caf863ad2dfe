// Package filename derives fixed-length, collision-tolerant cache filenames
// from image URLs and provides the inverse hex decode used by eviction.
package filename

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Prefix tags every blob file this package names, distinguishing cache
// entries from unrelated files that may share the cache directory.
const Prefix = "I$"

// hashSalt seeds the second xxhash digest so the two halves of the 128-bit
// value are independent rather than the same 64 bits repeated twice.
const hashSalt = 0x5f

// Length is the fixed total length of every filename this package produces:
// the prefix plus the lowercase hex encoding of a 16-byte hash.
const Length = len(Prefix) + 2*16

// Filename is a fixed-length token derived from a URL. It never reveals the
// URL it was derived from; recovering it requires rehashing candidate URLs
// and comparing, which is exactly what Decode plus a reverse lookup does.
type Filename string

// Of derives the cache filename for url. It is pure and deterministic:
// the same URL always yields the same Filename, and unrelated URLs are
// vanishingly unlikely (but not guaranteed) to collide.
func Of(url string) Filename {
	h := hash128(url)
	return Filename(Prefix + hex.EncodeToString(h[:]))
}

// hash128 concatenates two independently seeded 64-bit xxhash digests into a
// 16-byte value. This stands in for "any stable 128-bit non-cryptographic
// hash", a dependency the distilled design leaves to the implementer.
func hash128(s string) [16]byte {
	var out [16]byte

	d1 := xxhash.Sum64String(s)

	d2 := xxhash.New()
	_, _ = d2.WriteString(s)
	d2.Write([]byte{hashSalt})

	putUint64(out[0:8], d1)
	putUint64(out[8:16], d2.Sum64())
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Decode parses the hex-encoded hash portion out of a candidate filename.
// It returns ok=false if s is not exactly Length bytes, does not carry the
// expected Prefix, or its hash portion is not valid hex.
func Decode(s string) (hash [16]byte, ok bool) {
	if len(s) != Length || s[:len(Prefix)] != Prefix {
		return hash, false
	}
	raw, err := hex.DecodeString(s[len(Prefix):])
	if err != nil || len(raw) != 16 {
		return hash, false
	}
	copy(hash[:], raw)
	return hash, true
}

// Matches reports whether a candidate directory entry name has the shape
// this package produces (right prefix, right length) without validating the
// hex payload. Used by eviction's directory scan before the more expensive
// full Decode.
func Matches(name string) bool {
	return len(name) == Length && len(name) >= len(Prefix) && name[:len(Prefix)] == Prefix
}

// HashOf returns the 128-bit hash of url without the prefix or hex
// encoding, used by the ETag index to compare a URL against a filename's
// decoded hash during eviction's delete-by-hash step.
func HashOf(url string) [16]byte {
	return hash128(url)
}
