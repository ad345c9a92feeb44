package hash

import (
	"math/bits"

	"hashdb/pkg/buffer"
	"hashdb/pkg/entry"
)

// BucketCapacity returns the largest slot count B such that the occupied and
// readable bitmaps (one byte per 8 slots each) plus B pairs fit within one page.
func BucketCapacity(pairSize int) int {
	b := int(PageSize) * 8 / (pairSize*8 + 2)
	for 2*((b+7)/8)+b*pairSize > int(PageSize) {
		b--
	}
	return b
}

// bucketPage is a view over one pinned page holding up to capacity key/value
// slots plus two bitmaps: occupied (slot was ever written) and readable (slot
// currently holds a live entry). Callers hold the page's latch.
//
// Layout: occupied[⌈B/8⌉] | readable[⌈B/8⌉] | array[B].
// Bitmaps are MSB-first within each byte.
type bucketPage[K any, V comparable] struct {
	data      []byte
	codec     Codec[K, V]
	capacity  int
	bitmapLen int
}

// newBucketPage wraps a pinned page in a bucket view.
func newBucketPage[K any, V comparable](page *buffer.Page, codec Codec[K, V]) *bucketPage[K, V] {
	capacity := BucketCapacity(codec.PairSize())
	return &bucketPage[K, V]{
		data:      page.GetData(),
		codec:     codec,
		capacity:  capacity,
		bitmapLen: (capacity + 7) / 8,
	}
}

// slotOffset returns the byte-position of the slot with the given index.
func (bucket *bucketPage[K, V]) slotOffset(idx int) int {
	return 2*bucket.bitmapLen + idx*bucket.codec.PairSize()
}

func (bucket *bucketPage[K, V]) isOccupied(idx int) bool {
	return bucket.data[idx/8]&(1<<(7-idx%8)) != 0
}

func (bucket *bucketPage[K, V]) setOccupied(idx int) {
	bucket.data[idx/8] |= 1 << (7 - idx%8)
}

func (bucket *bucketPage[K, V]) isReadable(idx int) bool {
	return bucket.data[bucket.bitmapLen+idx/8]&(1<<(7-idx%8)) != 0
}

func (bucket *bucketPage[K, V]) setReadable(idx int) {
	bucket.data[bucket.bitmapLen+idx/8] |= 1 << (7 - idx%8)
}

func (bucket *bucketPage[K, V]) resetReadable(idx int) {
	bucket.data[bucket.bitmapLen+idx/8] &^= 1 << (7 - idx%8)
}

// keyAt returns the key stored in the slot with the given index.
func (bucket *bucketPage[K, V]) keyAt(idx int) K {
	off := bucket.slotOffset(idx)
	return bucket.codec.GetKey(bucket.data[off:])
}

// valueAt returns the value stored in the slot with the given index.
func (bucket *bucketPage[K, V]) valueAt(idx int) V {
	off := bucket.slotOffset(idx) + bucket.codec.KeySize
	return bucket.codec.GetValue(bucket.data[off:])
}

// getValue collects the values of every live slot whose key matches.
func (bucket *bucketPage[K, V]) getValue(key K, cmp Comparator[K]) []V {
	var values []V
	for i := 0; i < bucket.capacity; i++ {
		if bucket.isReadable(i) && cmp(key, bucket.keyAt(i)) == 0 {
			values = append(values, bucket.valueAt(i))
		}
	}
	return values
}

// insert writes the pair into the first non-readable slot. Returns false if
// the exact (key, value) pair already lives here or no slot is free.
//
// The scan keeps going past the chosen free slot: a duplicate pair may sit
// anywhere among the live slots and must be detected before committing.
func (bucket *bucketPage[K, V]) insert(key K, value V, cmp Comparator[K]) bool {
	slot := -1
	for i := 0; i < bucket.capacity; i++ {
		if !bucket.isOccupied(i) {
			// Nothing was ever written at or beyond this slot.
			if slot == -1 {
				slot = i
			}
			break
		}
		if bucket.isReadable(i) {
			if cmp(key, bucket.keyAt(i)) == 0 && value == bucket.valueAt(i) {
				return false
			}
		} else if slot == -1 {
			slot = i
		}
	}
	if slot == -1 {
		return false
	}
	off := bucket.slotOffset(slot)
	bucket.codec.PutKey(bucket.data[off:], key)
	bucket.codec.PutValue(bucket.data[off+bucket.codec.KeySize:], value)
	bucket.setOccupied(slot)
	bucket.setReadable(slot)
	return true
}

// remove tombstones the first live slot holding the exact (key, value) pair:
// readable is cleared, occupied stays set so scans keep looking past it.
func (bucket *bucketPage[K, V]) remove(key K, value V, cmp Comparator[K]) bool {
	for i := 0; i < bucket.capacity; i++ {
		if !bucket.isOccupied(i) {
			return false
		}
		if bucket.isReadable(i) && cmp(key, bucket.keyAt(i)) == 0 && value == bucket.valueAt(i) {
			bucket.resetReadable(i)
			return true
		}
	}
	return false
}

// removeAt tombstones the slot with the given index.
func (bucket *bucketPage[K, V]) removeAt(idx int) {
	bucket.resetReadable(idx)
}

// isFull reports whether every slot holds a live entry.
func (bucket *bucketPage[K, V]) isFull() bool {
	return bucket.numReadable() == bucket.capacity
}

// isEmpty reports whether no slot holds a live entry.
func (bucket *bucketPage[K, V]) isEmpty() bool {
	for i := 0; i < bucket.bitmapLen; i++ {
		if bucket.data[bucket.bitmapLen+i] != 0 {
			return false
		}
	}
	return true
}

// numReadable counts the live slots.
func (bucket *bucketPage[K, V]) numReadable() int {
	count := 0
	for i := 0; i < bucket.bitmapLen; i++ {
		count += bits.OnesCount8(bucket.data[bucket.bitmapLen+i])
	}
	return count
}

// arrayCopy returns the live pairs in slot order.
func (bucket *bucketPage[K, V]) arrayCopy() []entry.Pair[K, V] {
	pairs := make([]entry.Pair[K, V], 0, bucket.numReadable())
	for i := 0; i < bucket.capacity; i++ {
		if bucket.isReadable(i) {
			pairs = append(pairs, entry.NewPair(bucket.keyAt(i), bucket.valueAt(i)))
		}
	}
	return pairs
}

// clear wipes both bitmaps, logically emptying the bucket.
func (bucket *bucketPage[K, V]) clear() {
	clear(bucket.data[:2*bucket.bitmapLen])
}
