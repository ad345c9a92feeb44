package buffer

import (
	"sync"

	"hashdb/pkg/disk"
)

// ParallelBufferPool shards pages across several BufferPool instances by page
// id modulo instance count, reducing contention on the per-instance mutex.
type ParallelBufferPool struct {
	instances []*BufferPool
	mtx       sync.Mutex
	next      int // Cursor for round-robin NewPage allocation
}

// NewParallelBufferPool constructs numInstances buffer pool instances of
// poolSize frames each, all backed by the same disk manager.
func NewParallelBufferPool(numInstances int, poolSize int, dm *disk.Manager) *ParallelBufferPool {
	pool := &ParallelBufferPool{instances: make([]*BufferPool, numInstances)}
	for i := 0; i < numInstances; i++ {
		pool.instances[i] = NewBufferPoolInstance(poolSize, dm, i, numInstances)
	}
	return pool
}

// instanceFor returns the BufferPool responsible for the given page id.
func (pool *ParallelBufferPool) instanceFor(id disk.PageID) *BufferPool {
	return pool.instances[int(id)%len(pool.instances)]
}

// NewPage allocates a fresh pinned page, trying each instance round-robin
// starting from a rotating cursor to balance load.
func (pool *ParallelBufferPool) NewPage() (*Page, error) {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	err := ErrNoFrames
	for i := 0; i < len(pool.instances); i++ {
		instance := pool.instances[pool.next]
		pool.next = (pool.next + 1) % len(pool.instances)
		var page *Page
		if page, err = instance.NewPage(); err == nil {
			return page, nil
		}
	}
	return nil, err
}

// FetchPage fetches a page from the instance responsible for it.
func (pool *ParallelBufferPool) FetchPage(id disk.PageID) (*Page, error) {
	return pool.instanceFor(id).FetchPage(id)
}

// UnpinPage unpins a page from the instance responsible for it.
func (pool *ParallelBufferPool) UnpinPage(id disk.PageID, dirty bool) error {
	return pool.instanceFor(id).UnpinPage(id, dirty)
}

// DeletePage deletes a page from the instance responsible for it.
func (pool *ParallelBufferPool) DeletePage(id disk.PageID) bool {
	return pool.instanceFor(id).DeletePage(id)
}

// FlushPage flushes a page from the instance responsible for it.
func (pool *ParallelBufferPool) FlushPage(id disk.PageID) error {
	return pool.instanceFor(id).FlushPage(id)
}

// FlushAllPages flushes all resident dirty pages from every instance.
func (pool *ParallelBufferPool) FlushAllPages() error {
	for _, instance := range pool.instances {
		if err := instance.FlushAllPages(); err != nil {
			return err
		}
	}
	return nil
}
