package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"hashdb/pkg/buffer"
	"hashdb/pkg/disk"
)

// directoryPage is a view over the single page mapping hash-prefix values to
// bucket page ids. The table's lock protects it: shared for reads of the
// directory shape, exclusive for split and merge.
//
// Layout (little-endian): u32 page_id | u32 lsn (reserved) | u32 global_depth
// | u8 local_depths[DirectorySize] | u32 bucket_page_ids[DirectorySize].
type directoryPage struct {
	data []byte
}

// newDirectoryPage wraps a pinned page in a directory view.
func newDirectoryPage(page *buffer.Page) *directoryPage {
	return &directoryPage{data: page.GetData()}
}

// GetPageID returns the directory page's own id as recorded on the page.
func (dir *directoryPage) GetPageID() disk.PageID {
	return disk.PageID(binary.LittleEndian.Uint32(dir.data[dirPageIDOffset:]))
}

// SetPageID records the directory page's own id on the page.
func (dir *directoryPage) SetPageID(id disk.PageID) {
	binary.LittleEndian.PutUint32(dir.data[dirPageIDOffset:], uint32(id))
}

// GetGlobalDepth returns the number of hash-prefix bits currently indexing
// the directory.
func (dir *directoryPage) GetGlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(dir.data[dirGlobalDepthOffset:])
}

func (dir *directoryPage) setGlobalDepth(depth uint32) {
	binary.LittleEndian.PutUint32(dir.data[dirGlobalDepthOffset:], depth)
}

// GetGlobalDepthMask returns a mask of global_depth low-order 1 bits.
func (dir *directoryPage) GetGlobalDepthMask() uint32 {
	return (uint32(1) << dir.GetGlobalDepth()) - 1
}

// Size returns the number of active directory slots, 2^global_depth.
func (dir *directoryPage) Size() uint32 {
	return uint32(1) << dir.GetGlobalDepth()
}

// IncrGlobalDepth doubles the directory, copying each existing slot into its
// new high-bit twin.
func (dir *directoryPage) IncrGlobalDepth() {
	size := dir.Size()
	for i := uint32(0); i < size; i++ {
		dir.SetBucketPageID(size+i, dir.GetBucketPageID(i))
		dir.SetLocalDepth(size+i, dir.GetLocalDepth(i))
	}
	dir.setGlobalDepth(dir.GetGlobalDepth() + 1)
}

// DecrGlobalDepth halves the directory.
func (dir *directoryPage) DecrGlobalDepth() {
	dir.setGlobalDepth(dir.GetGlobalDepth() - 1)
}

// GetLocalDepth returns the local depth of the bucket at the given slot.
func (dir *directoryPage) GetLocalDepth(idx uint32) uint32 {
	return uint32(dir.data[dirLocalDepthsOffset+int(idx)])
}

// SetLocalDepth sets the local depth of the bucket at the given slot.
func (dir *directoryPage) SetLocalDepth(idx uint32, depth uint32) {
	dir.data[dirLocalDepthsOffset+int(idx)] = uint8(depth)
}

// IncrLocalDepth increments the local depth of the bucket at the given slot.
func (dir *directoryPage) IncrLocalDepth(idx uint32) {
	dir.data[dirLocalDepthsOffset+int(idx)]++
}

// GetBucketPageID returns the page id of the bucket at the given slot.
func (dir *directoryPage) GetBucketPageID(idx uint32) disk.PageID {
	return disk.PageID(binary.LittleEndian.Uint32(dir.data[dirBucketIDsOffset+4*int(idx):]))
}

// SetBucketPageID sets the page id of the bucket at the given slot.
func (dir *directoryPage) SetBucketPageID(idx uint32, id disk.PageID) {
	binary.LittleEndian.PutUint32(dir.data[dirBucketIDsOffset+4*int(idx):], uint32(id))
}

// GetSplitImageIndex returns the slot that becomes the sibling of the given
// slot when its bucket splits: the index differing only in the highest in-use
// bit. Undefined when the slot's local depth is 0.
func (dir *directoryPage) GetSplitImageIndex(idx uint32) uint32 {
	return idx ^ (uint32(1) << (dir.GetLocalDepth(idx) - 1))
}

// CanShrink reports whether the directory can be halved, which requires every
// active slot's local depth to be strictly less than the global depth.
func (dir *directoryPage) CanShrink() bool {
	gd := dir.GetGlobalDepth()
	if gd == 0 {
		return false
	}
	for i := uint32(0); i < dir.Size(); i++ {
		if dir.GetLocalDepth(i) >= gd {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks the shared-bucket invariant: slots i and j point to
// the same bucket page iff they agree in their low local-depth bits and carry
// the same local depth, and each bucket of local depth d is referenced by
// exactly 2^(global_depth - d) slots.
func (dir *directoryPage) VerifyIntegrity() error {
	gd := dir.GetGlobalDepth()
	if gd > MaxDepth {
		return fmt.Errorf("global depth %d exceeds max depth %d", gd, MaxDepth)
	}
	size := dir.Size()
	seen := bitset.New(uint(size))
	for i := uint32(0); i < size; i++ {
		if seen.Test(uint(i)) {
			continue
		}
		ld := dir.GetLocalDepth(i)
		if ld > gd {
			return fmt.Errorf("slot %d: local depth %d exceeds global depth %d", i, ld, gd)
		}
		pid := dir.GetBucketPageID(i)
		canonical := i & ((uint32(1) << ld) - 1)
		count := uint32(0)
		for j := uint32(0); j < size; j++ {
			if dir.GetBucketPageID(j) != pid {
				continue
			}
			if jd := dir.GetLocalDepth(j); jd != ld {
				return fmt.Errorf("slots %d and %d share bucket page %d with local depths %d and %d", i, j, pid, ld, jd)
			}
			if j&((uint32(1)<<ld)-1) != canonical {
				return fmt.Errorf("slot %d shares bucket page %d but differs in its low %d bits", j, pid, ld)
			}
			seen.Set(uint(j))
			count++
		}
		if want := uint32(1) << (gd - ld); count != want {
			return fmt.Errorf("bucket page %d referenced by %d slots, want %d", pid, count, want)
		}
	}
	return nil
}

// Print writes a string representation of the active directory slots to the
// specified writer.
func (dir *directoryPage) Print(w io.Writer) {
	fmt.Fprintf(w, "====\nglobal depth: %d\n", dir.GetGlobalDepth())
	for i := uint32(0); i < dir.Size(); i++ {
		fmt.Fprintf(w, "slot %d -> page %d (local depth %d)\n", i, dir.GetBucketPageID(i), dir.GetLocalDepth(i))
	}
	fmt.Fprintf(w, "====\n")
}
