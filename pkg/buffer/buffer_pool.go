// Package buffer implements the buffer pool that caches disk pages in a fixed
// set of in-memory frames, plus the LRU replacer it evicts with.
package buffer

import (
	"errors"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/ncw/directio"

	"hashdb/pkg/disk"
)

// Error for when every frame is pinned and no page can be brought in.
var ErrNoFrames = errors.New("no available frames")

// Error for operations against a page id that is not resident in the pool.
var ErrPageNotResident = errors.New("page not resident in buffer pool")

// BufferPool caches up to a fixed number of disk pages in aligned memory
// frames. Pinned pages are never evicted; unpinned pages are reclaimed in LRU
// order.
type BufferPool struct {
	mtx       sync.Mutex
	dm        *disk.Manager           // Disk manager serving page io
	frames    []*Page                 // The frame arena, one Page struct per frame
	pageTable map[disk.PageID]FrameID // Maps resident page ids to their frames
	free      *bitset.BitSet          // Set bits mark frames holding no page
	replacer  *LRUReplacer            // Victim selection among unpinned frames

	// Page id allocation. Instances of a parallel pool hand out ids congruent
	// to their index so that routing by id mod numInstances stays consistent.
	nextPageID    disk.PageID
	freeIDs       []disk.PageID // Deallocated page ids available for reuse
	instanceIndex int
	numInstances  int
}

// NewBufferPool constructs a standalone BufferPool with the given number of
// frames, backed by the given disk manager.
func NewBufferPool(poolSize int, dm *disk.Manager) *BufferPool {
	return NewBufferPoolInstance(poolSize, dm, 0, 1)
}

// NewBufferPoolInstance constructs one instance of a sharded buffer pool.
// The instance only allocates page ids congruent to instanceIndex modulo
// numInstances.
func NewBufferPoolInstance(poolSize int, dm *disk.Manager, instanceIndex int, numInstances int) *BufferPool {
	pool := &BufferPool{
		dm:            dm,
		frames:        make([]*Page, poolSize),
		pageTable:     make(map[disk.PageID]FrameID, poolSize),
		free:          bitset.New(uint(poolSize)),
		replacer:      NewLRUReplacer(poolSize),
		instanceIndex: instanceIndex,
		numInstances:  numInstances,
	}
	arena := directio.AlignedBlock(int(disk.PageSize) * poolSize)
	for i := 0; i < poolSize; i++ {
		pool.frames[i] = &Page{
			id:   disk.InvalidPageID,
			data: arena[i*int(disk.PageSize) : (i+1)*int(disk.PageSize)],
		}
		pool.free.Set(uint(i))
	}
	// Start allocation at the first id beyond the existing file that lands on
	// this instance's residue class.
	next := disk.PageID(dm.NumPages())
	if rem := int(next) % numInstances; rem != instanceIndex {
		next += disk.PageID((instanceIndex - rem + numInstances) % numInstances)
	}
	pool.nextPageID = next
	return pool
}

// allocatePageID hands out the next page id owned by this instance.
// The pool's mutex must be held on entry.
func (pool *BufferPool) allocatePageID() disk.PageID {
	if n := len(pool.freeIDs); n > 0 {
		id := pool.freeIDs[n-1]
		pool.freeIDs = pool.freeIDs[:n-1]
		return id
	}
	id := pool.nextPageID
	pool.nextPageID += disk.PageID(pool.numInstances)
	return id
}

// getFrame claims a frame to hold a new resident page, evicting an unpinned
// page if no frame is free. The pool's mutex must be held on entry.
func (pool *BufferPool) getFrame() (FrameID, error) {
	if idx, ok := pool.free.NextSet(0); ok {
		pool.free.Clear(idx)
		return FrameID(idx), nil
	}
	victim, ok := pool.replacer.Victim()
	if !ok {
		return 0, ErrNoFrames
	}
	page := pool.frames[victim]
	if page.dirty {
		if err := pool.dm.WritePage(page.id, page.data); err != nil {
			// Put the victim back; its contents are still the only copy.
			pool.replacer.Unpin(victim)
			return 0, err
		}
		page.dirty = false
	}
	delete(pool.pageTable, page.id)
	return victim, nil
}

// NewPage allocates a fresh zeroed page and returns it pinned with pin count 1.
func (pool *BufferPool) NewPage() (*Page, error) {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	fid, err := pool.getFrame()
	if err != nil {
		return nil, err
	}
	page := pool.frames[fid]
	page.id = pool.allocatePageID()
	page.dirty = false
	page.pinCount.Store(1)
	clear(page.data)
	pool.pageTable[page.id] = fid
	pool.replacer.Pin(fid)
	return page, nil
}

// FetchPage returns the page with the given id pinned, reading it from disk
// if it is not already resident. Returns ErrNoFrames if every frame is pinned.
func (pool *BufferPool) FetchPage(id disk.PageID) (*Page, error) {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	if fid, ok := pool.pageTable[id]; ok {
		page := pool.frames[fid]
		page.pinCount.Add(1)
		pool.replacer.Pin(fid)
		return page, nil
	}
	fid, err := pool.getFrame()
	if err != nil {
		return nil, err
	}
	page := pool.frames[fid]
	if err := pool.dm.ReadPage(id, page.data); err != nil {
		page.id = disk.InvalidPageID
		pool.free.Set(uint(fid))
		return nil, err
	}
	page.id = id
	page.dirty = false
	page.pinCount.Store(1)
	pool.pageTable[id] = fid
	pool.replacer.Pin(fid)
	return page, nil
}

// UnpinPage decrements the pin count of a resident page. When the count
// reaches zero the frame becomes eligible for eviction. dirty=true sets the
// page's sticky dirty flag.
func (pool *BufferPool) UnpinPage(id disk.PageID, dirty bool) error {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	fid, ok := pool.pageTable[id]
	if !ok {
		return ErrPageNotResident
	}
	page := pool.frames[fid]
	if dirty {
		page.dirty = true
	}
	remaining := page.pinCount.Add(-1)
	if remaining < 0 {
		return errors.New("pin count for page is < 0")
	}
	if remaining == 0 {
		pool.replacer.Unpin(fid)
	}
	return nil
}

// DeletePage drops a page from the pool and returns its id for reuse.
// Returns false if the page is still pinned.
func (pool *BufferPool) DeletePage(id disk.PageID) bool {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	fid, ok := pool.pageTable[id]
	if !ok {
		pool.freeIDs = append(pool.freeIDs, id)
		return true
	}
	page := pool.frames[fid]
	if page.pinCount.Load() > 0 {
		return false
	}
	delete(pool.pageTable, id)
	pool.replacer.Pin(fid)
	page.id = disk.InvalidPageID
	page.dirty = false
	pool.free.Set(uint(fid))
	pool.freeIDs = append(pool.freeIDs, id)
	return true
}

// FlushPage writes a resident page's data to disk regardless of its pin count.
func (pool *BufferPool) FlushPage(id disk.PageID) error {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	fid, ok := pool.pageTable[id]
	if !ok {
		return ErrPageNotResident
	}
	page := pool.frames[fid]
	if err := pool.dm.WritePage(page.id, page.data); err != nil {
		return err
	}
	page.dirty = false
	return nil
}

// FlushAllPages writes every resident dirty page to disk.
func (pool *BufferPool) FlushAllPages() error {
	pool.mtx.Lock()
	defer pool.mtx.Unlock()
	for _, fid := range pool.pageTable {
		page := pool.frames[fid]
		if !page.dirty {
			continue
		}
		if err := pool.dm.WritePage(page.id, page.data); err != nil {
			return err
		}
		page.dirty = false
	}
	return nil
}

// PoolSize returns the number of frames this instance manages.
func (pool *BufferPool) PoolSize() int {
	return len(pool.frames)
}
