package bridge

import (
	"os"
	"time"

	"github.com/peerdav/peerdav/internal/mfs"
)

// fileInfo adapts a remote entry to os.FileInfo. Directories always report
// size 0: the remote store's directory size is a DAG accounting figure, not
// a byte count, and must not leak to clients.
type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

var _ os.FileInfo = (*fileInfo)(nil)

func (b *FS) fileInfo(e mfs.Entry) *fileInfo {
	size := int64(e.Size)
	if e.Dir {
		size = 0
	}
	mod := e.ModTime
	if mod.IsZero() {
		mod = b.epoch
	}
	return &fileInfo{
		name:    e.Name,
		size:    size,
		isDir:   e.Dir,
		modTime: mod,
	}
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) IsDir() bool        { return fi.isDir }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) Sys() interface{}   { return nil }

func (fi *fileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0755
	}
	return 0644
}
