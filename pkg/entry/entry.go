// Package entry defines the key/value pair and record id types stored by the
// hash index.
package entry

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Pair is a key-value pair held in a hash bucket slot.
type Pair[K any, V any] struct {
	Key   K
	Value V
}

// NewPair constructs and returns a new Pair with the specified key and value.
func NewPair[K any, V any](key K, value V) Pair[K, V] {
	return Pair[K, V]{key, value}
}

// Print writes the pair to the specified writer in the following format,
// including the trailing separator: (<key>, <value>),
func (pair Pair[K, V]) Print(w io.Writer) {
	fmt.Fprintf(w, "(%v, %v), ", pair.Key, pair.Value)
}

// RIDSize is the on-page footprint of a RID.
const RIDSize = 8

// RID identifies a record by the page it lives on and its slot within that page.
type RID struct {
	PageID  int32
	SlotNum int32
}

// Marshal serializes the RID into an 8-byte little-endian representation.
func (rid RID) Marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(b[4:8], uint32(rid.SlotNum))
}

// UnmarshalRID deserializes an 8-byte little-endian representation into a RID.
func UnmarshalRID(b []byte) RID {
	return RID{
		PageID:  int32(binary.LittleEndian.Uint32(b[0:4])),
		SlotNum: int32(binary.LittleEndian.Uint32(b[4:8])),
	}
}
