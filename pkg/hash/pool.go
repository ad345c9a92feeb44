package hash

import (
	"hashdb/pkg/buffer"
	"hashdb/pkg/disk"
)

// Pool is the buffer pool contract the hash table assumes. Every fetched or
// newly allocated page comes back pinned; callers pair each NewPage/FetchPage
// with an UnpinPage on every exit path.
//
// Both buffer.BufferPool and buffer.ParallelBufferPool satisfy it.
type Pool interface {
	NewPage() (*buffer.Page, error)
	FetchPage(id disk.PageID) (*buffer.Page, error)
	UnpinPage(id disk.PageID, dirty bool) error
	DeletePage(id disk.PageID) bool
	FlushPage(id disk.PageID) error
	FlushAllPages() error
}

var _ Pool = (*buffer.BufferPool)(nil)
var _ Pool = (*buffer.ParallelBufferPool)(nil)
