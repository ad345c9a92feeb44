package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// XxHasher returns the xxHash hash of the given int64 key.
func XxHasher(key int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return xxhash.Sum64(buf[:])
}

// MurmurHasher returns the MurmurHash3 hash of the given int64 key.
func MurmurHasher(key int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return murmur3.Sum64(buf[:])
}

// BlobHasher returns the MurmurHash3 hash of a byte-blob key.
func BlobHasher(key string) uint64 {
	return murmur3.Sum64([]byte(key))
}
