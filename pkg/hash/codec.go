package hash

import (
	"encoding/binary"

	"hashdb/pkg/entry"
)

// Comparator reports the ordering of two keys: 0 when equal.
type Comparator[K any] func(a, b K) int

// HashFunc produces the 64-bit hash of a key. The table truncates it to 32
// bits before masking with the global depth.
type HashFunc[K any] func(key K) uint64

// Codec fixes the on-page footprint of a (key, value) pair and moves pairs in
// and out of raw page bytes. Keys and values are fixed-width.
type Codec[K any, V any] struct {
	KeySize   int
	ValueSize int
	PutKey    func(b []byte, key K)
	GetKey    func(b []byte) K
	PutValue  func(b []byte, value V)
	GetValue  func(b []byte) V
}

// PairSize returns the number of bytes one slot occupies.
func (c Codec[K, V]) PairSize() int {
	return c.KeySize + c.ValueSize
}

// Int64Codec lays out an int64 key and int64 value as two little-endian
// 8-byte fields.
func Int64Codec() Codec[int64, int64] {
	putInt64 := func(b []byte, v int64) {
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
	getInt64 := func(b []byte) int64 {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return Codec[int64, int64]{
		KeySize:   8,
		ValueSize: 8,
		PutKey:    putInt64,
		GetKey:    getInt64,
		PutValue:  putInt64,
		GetValue:  getInt64,
	}
}

// BlobCodec lays out a fixed-width byte-blob key (held as a Go string of
// exactly width bytes) paired with a record id. Shorter keys are zero-padded
// on the page and read back at full width.
func BlobCodec(width int) Codec[string, entry.RID] {
	return Codec[string, entry.RID]{
		KeySize:   width,
		ValueSize: entry.RIDSize,
		PutKey: func(b []byte, key string) {
			clear(b[:width])
			copy(b[:width], key)
		},
		GetKey: func(b []byte) string {
			return string(b[:width])
		},
		PutValue: func(b []byte, value entry.RID) {
			value.Marshal(b)
		},
		GetValue: func(b []byte) entry.RID {
			return entry.UnmarshalRID(b)
		},
	}
}

// Int64Comparator orders int64 keys numerically.
func Int64Comparator(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// BlobComparator orders blob keys bytewise.
func BlobComparator(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
