package buffer

import (
	"sync"
	"sync/atomic"

	"hashdb/pkg/disk"
)

// FrameID identifies a frame slot within a buffer pool instance.
type FrameID int

// Page caches a page from disk and stores additional metadata.
type Page struct {
	id       disk.PageID  // Identifier of the disk page currently held by this frame
	pinCount atomic.Int32 // The number of active references to this page
	dirty    bool         // Flag on whether the page's data has changed and needs to be written to disk
	rwlatch  sync.RWMutex // Reader-writer latch on the page's bytes
	data     []byte       // Serialized data (the actual 4096 bytes of the page)
}

// GetPageID returns the id of the disk page this frame holds.
func (page *Page) GetPageID() disk.PageID {
	return page.id
}

// GetData returns the byte data held by the page.
func (page *Page) GetData() []byte {
	return page.data
}

// IsDirty reports whether the page's data has changed and needs to be written to disk.
func (page *Page) IsDirty() bool {
	return page.dirty
}

// GetPinCount returns the number of active references to this page.
func (page *Page) GetPinCount() int32 {
	return page.pinCount.Load()
}

// WLatch grabs a writer latch on the page's bytes.
func (page *Page) WLatch() {
	page.rwlatch.Lock()
}

// WUnlatch releases a writer latch.
func (page *Page) WUnlatch() {
	page.rwlatch.Unlock()
}

// RLatch grabs a reader latch on the page's bytes.
func (page *Page) RLatch() {
	page.rwlatch.RLock()
}

// RUnlatch releases a reader latch.
func (page *Page) RUnlatch() {
	page.rwlatch.RUnlock()
}
