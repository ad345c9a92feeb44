// Package disk implements page-granular block io on a single database file.
package disk

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ncw/directio"
)

// PageSize is the size of an individual page (ie the maximum number of bytes
// that a page can hold) - defaults to 4kb.
const PageSize int64 = directio.BlockSize

// PageID identifies a page within the database file by its position.
type PageID int32

// InvalidPageID denotes the absence of a page.
const InvalidPageID PageID = -1

// Error for when a database file's length is not a multiple of PageSize.
var ErrCorruptFile = errors.New("db file has been corrupted")

// Manager performs page-aligned reads and writes against a single backing file.
type Manager struct {
	file     *os.File // File descriptor for the backing file on disk.
	numPages int64    // The number of pages currently stored in the file.
	mtx      sync.Mutex
}

// NewManager constructs a Manager backed by a database file at the specified filePath.
//
// If the database file didn't exist previously, it is created.
// If the database file does exist but it can't be opened or its contents are
// not properly aligned to PageSize, returns an error.
func NewManager(filePath string) (*Manager, error) {
	// Create the necessary prerequisite directories.
	if idx := strings.LastIndex(filePath, "/"); idx != -1 {
		if err := os.MkdirAll(filePath[:idx], 0775); err != nil {
			return nil, err
		}
	}
	// Open or create the db file.
	file, err := directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	// Get info about the size of the backing file.
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size()%PageSize != 0 {
		file.Close()
		return nil, ErrCorruptFile
	}
	return &Manager{file: file, numPages: info.Size() / PageSize}, nil
}

// GetFileName returns the file name/path used to open the manager's backing file.
func (dm *Manager) GetFileName() string {
	return dm.file.Name()
}

// NumPages returns the number of pages currently stored in the backing file.
func (dm *Manager) NumPages() int64 {
	dm.mtx.Lock()
	defer dm.mtx.Unlock()
	return dm.numPages
}

// ReadPage fills buf with the contents of the given page.
// Pages beyond the end of the file read back as zeroes.
func (dm *Manager) ReadPage(id PageID, buf []byte) error {
	dm.mtx.Lock()
	defer dm.mtx.Unlock()
	if int64(id) >= dm.numPages {
		clear(buf)
		return nil
	}
	if _, err := dm.file.ReadAt(buf, int64(id)*PageSize); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// WritePage writes one page worth of data at the given page's offset,
// extending the file if the page lies beyond its current end.
// The data slice must come from an aligned frame.
func (dm *Manager) WritePage(id PageID, data []byte) error {
	dm.mtx.Lock()
	defer dm.mtx.Unlock()
	if _, err := dm.file.WriteAt(data, int64(id)*PageSize); err != nil {
		return err
	}
	if int64(id) >= dm.numPages {
		dm.numPages = int64(id) + 1
	}
	return nil
}

// Close flushes the backing file's contents and closes it.
func (dm *Manager) Close() error {
	dm.mtx.Lock()
	defer dm.mtx.Unlock()
	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		return err
	}
	return dm.file.Close()
}
