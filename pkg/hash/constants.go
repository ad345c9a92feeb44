package hash

import (
	"hashdb/pkg/disk"
)

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Low-level Constants //////////////////////////////
/////////////////////////////////////////////////////////////////////////////

const PageSize = disk.PageSize

// MaxDepth bounds both global and local depth; the directory never holds more
// than 2^MaxDepth entries.
const MaxDepth uint32 = 9

// DirectorySize is the number of directory slots persisted on the directory
// page. Only the first 2^globalDepth are significant.
const DirectorySize = 1 << MaxDepth

// Directory page layout (little-endian within one page).
const (
	dirPageIDOffset      = 0                          // u32: the directory page's own id
	dirLSNOffset         = 4                          // u32: reserved for recovery integration
	dirGlobalDepthOffset = 8                          // u32
	dirLocalDepthsOffset = 12                         // u8[DirectorySize]
	dirBucketIDsOffset   = 12 + DirectorySize         // u32[DirectorySize]
	dirPageUsedBytes     = 12 + DirectorySize + 4*DirectorySize
)
