package hash

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"hashdb/pkg/buffer"
	"hashdb/pkg/concurrency"
	"hashdb/pkg/config"
	"hashdb/pkg/disk"
)

// HashIndex owns the disk manager and buffer pool backing one HashTable and
// plays catalog for it: the directory page id lives in a sidecar meta file
// next to the database file and is passed back in on open.
type HashIndex[K any, V comparable] struct {
	table *HashTable[K, V]
	pool  Pool
	dm    *disk.Manager
}

func metaPath(filename string) string {
	return filename + ".meta"
}

// OpenIndex opens (or creates) a hash index backed by the database file at
// filename, sharding its cache across a parallel buffer pool.
func OpenIndex[K any, V comparable](filename string, cmp Comparator[K], hashFn HashFunc[K], codec Codec[K, V]) (*HashIndex[K, V], error) {
	dm, err := disk.NewManager(filename)
	if err != nil {
		return nil, err
	}
	pool := buffer.NewParallelBufferPool(config.NumPoolInstances, config.BufferPoolSize, dm)
	dirPID := disk.InvalidPageID
	if raw, err := os.ReadFile(metaPath(filename)); err == nil && len(raw) >= 4 {
		dirPID = disk.PageID(binary.LittleEndian.Uint32(raw))
	}
	table := NewHashTableWithDirectory(filepath.Base(filename), pool, cmp, hashFn, codec, dirPID)
	return &HashIndex[K, V]{table: table, pool: pool, dm: dm}, nil
}

// OpenInt64Index opens a hash index over int64 keys and values with the
// default xxHash hasher.
func OpenInt64Index(filename string) (*HashIndex[int64, int64], error) {
	return OpenIndex(filename, Int64Comparator, XxHasher, Int64Codec())
}

// GetName returns the base file name of the file backing this index.
func (index *HashIndex[K, V]) GetName() string {
	return index.table.GetName()
}

// GetTable returns the underlying hash table.
func (index *HashIndex[K, V]) GetTable() *HashTable[K, V] {
	return index.table
}

// GetDiskManager returns the disk manager backing this index.
func (index *HashIndex[K, V]) GetDiskManager() *disk.Manager {
	return index.dm
}

// Close flushes all cached pages, persists the directory page id, and closes
// the backing file.
func (index *HashIndex[K, V]) Close() error {
	if err := index.pool.FlushAllPages(); err != nil {
		index.dm.Close()
		return err
	}
	if pid := index.table.DirectoryPageID(); pid != disk.InvalidPageID {
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], uint32(pid))
		if err := os.WriteFile(metaPath(index.dm.GetFileName()), raw[:], 0666); err != nil {
			index.dm.Close()
			return err
		}
	}
	return index.dm.Close()
}

// Find returns all values stored under key.
func (index *HashIndex[K, V]) Find(txn *concurrency.Transaction, key K) ([]V, error) {
	return index.table.GetValue(txn, key)
}

// Insert adds the given (key, value) pair.
func (index *HashIndex[K, V]) Insert(txn *concurrency.Transaction, key K, value V) (bool, error) {
	return index.table.Insert(txn, key, value)
}

// Remove deletes the given (key, value) pair.
func (index *HashIndex[K, V]) Remove(txn *concurrency.Transaction, key K, value V) (bool, error) {
	return index.table.Remove(txn, key, value)
}

// Print writes a representation of the index to the specified writer.
func (index *HashIndex[K, V]) Print(w io.Writer) {
	index.table.Print(w)
}
