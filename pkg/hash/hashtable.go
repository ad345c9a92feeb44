// Package hash implements a disk-backed concurrent extendible hash index
// layered on top of a buffer pool.
package hash

import (
	"io"
	"sync"
	"sync/atomic"

	"hashdb/pkg/buffer"
	"hashdb/pkg/concurrency"
	"hashdb/pkg/disk"
)

// HashTable is a persistent multimap from fixed-width keys to fixed-width
// values using extendible hashing. The directory grows and shrinks with data
// volume; buckets split when full and merge when emptied by removes.
//
// The table lock protects the directory's shape: shared by gets and the fast
// paths of insert/remove, exclusive by split and merge. Bucket bytes are
// additionally protected by their page latches. Lock ordering is always table
// lock first, then page latch.
type HashTable[K any, V comparable] struct {
	name   string
	pool   Pool
	cmp    Comparator[K]
	hashFn HashFunc[K]
	codec  Codec[K, V]

	dirPID    atomic.Int32 // Page id of the directory page; InvalidPageID until first access
	tableLock sync.RWMutex
	createMtx sync.Mutex // One-shot guard for lazy directory creation
}

// NewHashTable constructs a fresh HashTable whose directory page is allocated
// lazily on first access.
func NewHashTable[K any, V comparable](name string, pool Pool, cmp Comparator[K], hashFn HashFunc[K], codec Codec[K, V]) *HashTable[K, V] {
	return NewHashTableWithDirectory(name, pool, cmp, hashFn, codec, disk.InvalidPageID)
}

// NewHashTableWithDirectory constructs a HashTable over an existing directory
// page, whose id the catalog stored externally and passes back in on open.
func NewHashTableWithDirectory[K any, V comparable](name string, pool Pool, cmp Comparator[K], hashFn HashFunc[K], codec Codec[K, V], directoryPID disk.PageID) *HashTable[K, V] {
	table := &HashTable[K, V]{
		name:   name,
		pool:   pool,
		cmp:    cmp,
		hashFn: hashFn,
		codec:  codec,
	}
	table.dirPID.Store(int32(directoryPID))
	return table
}

// GetName returns the table's name.
func (table *HashTable[K, V]) GetName() string {
	return table.name
}

// DirectoryPageID returns the id of the directory page, for the catalog to
// persist. InvalidPageID until the table has been accessed once.
func (table *HashTable[K, V]) DirectoryPageID() disk.PageID {
	return disk.PageID(table.dirPID.Load())
}

// hash downcasts the pluggable hash function's 64-bit value to the 32 bits
// extendible hashing indexes with.
func (table *HashTable[K, V]) hash(key K) uint32 {
	return uint32(table.hashFn(key))
}

// keyToDirectoryIndex masks the key's hash down to the active directory slots.
func (table *HashTable[K, V]) keyToDirectoryIndex(key K, dir *directoryPage) uint32 {
	return table.hash(key) & dir.GetGlobalDepthMask()
}

// fetchDirectory returns the directory page pinned, creating it on first
// access with a single initial bucket of local depth 0 registered at slot 0.
func (table *HashTable[K, V]) fetchDirectory() (*buffer.Page, *directoryPage, error) {
	if disk.PageID(table.dirPID.Load()) == disk.InvalidPageID {
		table.createMtx.Lock()
		if disk.PageID(table.dirPID.Load()) == disk.InvalidPageID {
			dirPage, err := table.pool.NewPage()
			if err != nil {
				table.createMtx.Unlock()
				return nil, nil, err
			}
			dir := newDirectoryPage(dirPage)
			dir.SetPageID(dirPage.GetPageID())
			bucketPage, err := table.pool.NewPage()
			if err != nil {
				table.pool.UnpinPage(dirPage.GetPageID(), false)
				table.createMtx.Unlock()
				return nil, nil, err
			}
			dir.SetBucketPageID(0, bucketPage.GetPageID())
			if err := table.pool.UnpinPage(bucketPage.GetPageID(), true); err != nil {
				table.pool.UnpinPage(dirPage.GetPageID(), true)
				table.createMtx.Unlock()
				return nil, nil, err
			}
			if err := table.pool.UnpinPage(dirPage.GetPageID(), true); err != nil {
				table.createMtx.Unlock()
				return nil, nil, err
			}
			table.dirPID.Store(int32(dirPage.GetPageID()))
		}
		table.createMtx.Unlock()
	}
	page, err := table.pool.FetchPage(disk.PageID(table.dirPID.Load()))
	if err != nil {
		return nil, nil, err
	}
	return page, newDirectoryPage(page), nil
}

// GetValue returns all values stored under key that exist at some point
// during the call. An empty result means the key is absent.
func (table *HashTable[K, V]) GetValue(txn *concurrency.Transaction, key K) ([]V, error) {
	table.tableLock.RLock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		table.tableLock.RUnlock()
		return nil, err
	}
	dirPID := dirPage.GetPageID()
	bucketPID := dir.GetBucketPageID(table.keyToDirectoryIndex(key, dir))
	page, err := table.pool.FetchPage(bucketPID)
	if err != nil {
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.RUnlock()
		return nil, err
	}
	page.RLatch()
	values := newBucketPage(page, table.codec).getValue(key, table.cmp)
	page.RUnlatch()
	table.pool.UnpinPage(bucketPID, false)
	table.pool.UnpinPage(dirPID, false)
	table.tableLock.RUnlock()
	return values, nil
}

// Insert adds the (key, value) pair if it is not already present. Returns
// false if the exact pair already exists, or if the pair's bucket can no
// longer split because its local depth reached MaxDepth.
func (table *HashTable[K, V]) Insert(txn *concurrency.Transaction, key K, value V) (bool, error) {
	table.tableLock.RLock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		table.tableLock.RUnlock()
		return false, err
	}
	dirPID := dirPage.GetPageID()
	bucketPID := dir.GetBucketPageID(table.keyToDirectoryIndex(key, dir))
	page, err := table.pool.FetchPage(bucketPID)
	if err != nil {
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.RUnlock()
		return false, err
	}
	page.WLatch()
	bucket := newBucketPage(page, table.codec)
	if !bucket.isFull() {
		inserted := bucket.insert(key, value, table.cmp)
		page.WUnlatch()
		table.pool.UnpinPage(bucketPID, inserted)
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.RUnlock()
		return inserted, nil
	}
	// Full bucket: drop everything, then split under the exclusive lock.
	page.WUnlatch()
	table.pool.UnpinPage(bucketPID, false)
	table.pool.UnpinPage(dirPID, false)
	table.tableLock.RUnlock()
	return table.splitInsert(txn, key, value)
}

// splitInsert splits the full bucket the key hashes to, growing the directory
// when the bucket's local depth matches the global depth, then retries the
// insert from the top. The retry may split again when every rehashed pair
// lands in the same half.
func (table *HashTable[K, V]) splitInsert(txn *concurrency.Transaction, key K, value V) (bool, error) {
	table.tableLock.Lock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		table.tableLock.Unlock()
		return false, err
	}
	dirPID := dirPage.GetPageID()
	bucketIdx := table.keyToDirectoryIndex(key, dir)
	localDepth := dir.GetLocalDepth(bucketIdx)
	if localDepth >= MaxDepth {
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.Unlock()
		return false, nil
	}
	originPID := dir.GetBucketPageID(bucketIdx)
	originPage, err := table.pool.FetchPage(originPID)
	if err != nil {
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.Unlock()
		return false, err
	}
	originBucket := newBucketPage(originPage, table.codec)
	if !originBucket.isFull() {
		// Another writer split this bucket first; restart as a normal insert.
		table.pool.UnpinPage(originPID, false)
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.Unlock()
		return table.Insert(txn, key, value)
	}
	// Allocate the new bucket before touching the directory so an exhausted
	// pool surfaces as a failed insert with the table unchanged.
	splitPage, err := table.pool.NewPage()
	if err != nil {
		table.pool.UnpinPage(originPID, false)
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.Unlock()
		return false, err
	}
	splitPID := splitPage.GetPageID()

	if localDepth == dir.GetGlobalDepth() {
		dir.IncrGlobalDepth()
	}
	dir.IncrLocalDepth(bucketIdx)
	newDepth := dir.GetLocalDepth(bucketIdx)
	splitIdx := dir.GetSplitImageIndex(bucketIdx)
	dir.SetBucketPageID(splitIdx, splitPID)

	// Rewire every slot that agrees with either half in its low newDepth bits.
	lowMask := (uint32(1) << newDepth) - 1
	originLow := bucketIdx & lowMask
	splitLow := splitIdx & lowMask
	for i := uint32(0); i < dir.Size(); i++ {
		switch i & lowMask {
		case originLow:
			dir.SetBucketPageID(i, originPID)
			dir.SetLocalDepth(i, newDepth)
		case splitLow:
			dir.SetBucketPageID(i, splitPID)
			dir.SetLocalDepth(i, newDepth)
		}
	}

	// Rehash the original bucket's live pairs into the two halves.
	originPage.WLatch()
	splitPage.WLatch()
	splitBucket := newBucketPage(splitPage, table.codec)
	pairs := originBucket.arrayCopy()
	originBucket.clear()
	for _, pair := range pairs {
		if table.keyToDirectoryIndex(pair.Key, dir)&lowMask == originLow {
			originBucket.insert(pair.Key, pair.Value, table.cmp)
		} else {
			splitBucket.insert(pair.Key, pair.Value, table.cmp)
		}
	}
	splitPage.WUnlatch()
	originPage.WUnlatch()

	// Unpin everything before recursing; the retry re-fetches from scratch.
	table.pool.UnpinPage(originPID, true)
	table.pool.UnpinPage(splitPID, true)
	table.pool.UnpinPage(dirPID, true)
	table.tableLock.Unlock()
	return table.Insert(txn, key, value)
}

// Remove deletes one live slot holding the exact (key, value) pair. A remove
// that empties its bucket triggers a merge with the bucket's split image.
func (table *HashTable[K, V]) Remove(txn *concurrency.Transaction, key K, value V) (bool, error) {
	table.tableLock.RLock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		table.tableLock.RUnlock()
		return false, err
	}
	dirPID := dirPage.GetPageID()
	bucketPID := dir.GetBucketPageID(table.keyToDirectoryIndex(key, dir))
	page, err := table.pool.FetchPage(bucketPID)
	if err != nil {
		table.pool.UnpinPage(dirPID, false)
		table.tableLock.RUnlock()
		return false, err
	}
	page.WLatch()
	bucket := newBucketPage(page, table.codec)
	removed := bucket.remove(key, value, table.cmp)
	emptied := removed && bucket.isEmpty()
	page.WUnlatch()
	table.pool.UnpinPage(bucketPID, removed)
	table.pool.UnpinPage(dirPID, false)
	table.tableLock.RUnlock()
	if emptied {
		if err := table.merge(txn, key); err != nil {
			return true, err
		}
	}
	return removed, nil
}

// merge folds the now-empty bucket the key hashes to into its split image,
// provided both still carry the same local depth, then shrinks the directory
// while every slot's local depth sits below the global depth. A single remove
// triggers at most one merge; later empties are cleaned by later removes.
func (table *HashTable[K, V]) merge(txn *concurrency.Transaction, key K) error {
	table.tableLock.Lock()
	defer table.tableLock.Unlock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		return err
	}
	dirPID := dirPage.GetPageID()
	curIdx := table.keyToDirectoryIndex(key, dir)
	curDepth := dir.GetLocalDepth(curIdx)
	if curIdx >= dir.Size() || curDepth == 0 {
		table.pool.UnpinPage(dirPID, false)
		return nil
	}
	splitIdx := dir.GetSplitImageIndex(curIdx)
	if dir.GetLocalDepth(splitIdx) != curDepth {
		// The sibling has split further; merging would corrupt the mapping.
		table.pool.UnpinPage(dirPID, false)
		return nil
	}
	curPID := dir.GetBucketPageID(curIdx)
	page, err := table.pool.FetchPage(curPID)
	if err != nil {
		table.pool.UnpinPage(dirPID, false)
		return err
	}
	page.RLatch()
	empty := newBucketPage(page, table.codec).isEmpty()
	page.RUnlatch()
	table.pool.UnpinPage(curPID, false)
	if !empty {
		// Another thread reinserted between the remove and this merge.
		table.pool.UnpinPage(dirPID, false)
		return nil
	}
	table.pool.DeletePage(curPID)
	splitPID := dir.GetBucketPageID(splitIdx)
	lowMask := (uint32(1) << curDepth) - 1
	curLow := curIdx & lowMask
	splitLow := splitIdx & lowMask
	for i := uint32(0); i < dir.Size(); i++ {
		switch i & lowMask {
		case curLow:
			dir.SetBucketPageID(i, splitPID)
			dir.SetLocalDepth(i, curDepth-1)
		case splitLow:
			dir.SetLocalDepth(i, curDepth-1)
		}
	}
	for dir.CanShrink() {
		dir.DecrGlobalDepth()
	}
	table.pool.UnpinPage(dirPID, true)
	return nil
}

// GlobalDepth returns the directory's global depth.
func (table *HashTable[K, V]) GlobalDepth() (uint32, error) {
	table.tableLock.RLock()
	defer table.tableLock.RUnlock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	depth := dir.GetGlobalDepth()
	table.pool.UnpinPage(dirPage.GetPageID(), false)
	return depth, nil
}

// Size returns the number of active directory slots, 2^global_depth.
func (table *HashTable[K, V]) Size() (uint32, error) {
	table.tableLock.RLock()
	defer table.tableLock.RUnlock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		return 0, err
	}
	size := dir.Size()
	table.pool.UnpinPage(dirPage.GetPageID(), false)
	return size, nil
}

// VerifyIntegrity checks the directory invariants, returning the first
// violation found.
func (table *HashTable[K, V]) VerifyIntegrity() error {
	table.tableLock.RLock()
	defer table.tableLock.RUnlock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		return err
	}
	verifyErr := dir.VerifyIntegrity()
	table.pool.UnpinPage(dirPage.GetPageID(), false)
	return verifyErr
}

// Print writes a representation of the directory (each active slot's bucket
// page id and local depth) to the specified writer. Bucket contents are not
// printed.
func (table *HashTable[K, V]) Print(w io.Writer) {
	table.tableLock.RLock()
	defer table.tableLock.RUnlock()
	dirPage, dir, err := table.fetchDirectory()
	if err != nil {
		return
	}
	dir.Print(w)
	table.pool.UnpinPage(dirPage.GetPageID(), false)
}
