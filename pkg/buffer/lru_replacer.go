package buffer

import (
	"sync"

	"hashdb/pkg/list"
)

// LRUReplacer tracks the frames of a buffer pool instance that are eligible
// for eviction and picks victims least-recently-made-available first.
type LRUReplacer struct {
	mtx    sync.Mutex
	frames *list.List[FrameID]               // Eviction order: most recently made available at the head
	table  map[FrameID]*list.Link[FrameID]   // Maps frame ids to their links in frames
}

// NewLRUReplacer constructs an LRUReplacer able to hold up to numFrames frames.
func NewLRUReplacer(numFrames int) *LRUReplacer {
	return &LRUReplacer{
		frames: list.NewList[FrameID](),
		table:  make(map[FrameID]*list.Link[FrameID], numFrames),
	}
}

// Victim removes and returns the least recently made-available frame.
// Returns false if no frame is eligible for eviction.
func (replacer *LRUReplacer) Victim() (FrameID, bool) {
	replacer.mtx.Lock()
	defer replacer.mtx.Unlock()
	tail := replacer.frames.PeekTail()
	if tail == nil {
		return 0, false
	}
	id := tail.GetValue()
	tail.PopSelf()
	delete(replacer.table, id)
	return id, true
}

// Pin removes a frame from eviction eligibility because a page was pinned in it.
func (replacer *LRUReplacer) Pin(id FrameID) {
	replacer.mtx.Lock()
	defer replacer.mtx.Unlock()
	if link, ok := replacer.table[id]; ok {
		link.PopSelf()
		delete(replacer.table, id)
	}
}

// Unpin makes a frame eligible for eviction as the most recently available one.
func (replacer *LRUReplacer) Unpin(id FrameID) {
	replacer.mtx.Lock()
	defer replacer.mtx.Unlock()
	if _, ok := replacer.table[id]; !ok {
		replacer.table[id] = replacer.frames.PushHead(id)
	}
}

// Size returns the number of frames currently eligible for eviction.
func (replacer *LRUReplacer) Size() int {
	replacer.mtx.Lock()
	defer replacer.mtx.Unlock()
	return len(replacer.table)
}
