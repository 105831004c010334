package bridge

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/peerdav/peerdav/internal/logging"
	"github.com/peerdav/peerdav/internal/mfs"
)

// File is one open read or write session. The remote store only does
// whole-object transfers, so a read handle fetches the object once and
// slices from it, and a write handle accumulates a buffer that is committed
// in a single replace on Close. A handle belongs to the request that opened
// it and is never shared across goroutines.
//
// Two write handles on the same path race as last-writer-wins; that is the
// remote store's own object-replace semantic and is not papered over here.
type File struct {
	fs   *FS
	ctx  context.Context
	name string
	path string

	// read state
	entry   *mfs.Entry
	fetched bool
	data    []byte

	// write state
	writable bool
	buf      []byte

	pos int64
}

var _ webdav.File = (*File)(nil)

// Close commits a write handle's buffer to the remote store in one call.
// On failure the remote object keeps its prior content. An aborted request
// discards the buffer instead of committing it.
func (f *File) Close() error {
	f.data = nil
	if !f.writable {
		return nil
	}

	buf := f.buf
	f.buf = nil
	if err := f.ctx.Err(); err != nil {
		logging.Debug("write discarded", zap.String("path", f.path), zap.Error(err))
		return err
	}
	if err := f.fs.api.WriteAll(f.ctx, f.path, buf); err != nil {
		return davError("close", f.name, err)
	}
	// Flushing pins the new root hash down to the datastore. The commit
	// already succeeded, so a flush failure is not the client's problem.
	if err := f.fs.api.Flush(f.ctx, f.path); err != nil {
		logging.Warn("flush failed", zap.String("path", f.path), zap.Error(err))
	}
	return nil
}

func (f *File) Read(p []byte) (int, error) {
	if f.writable {
		return 0, fmt.Errorf("%s: opened for writing", f.name)
	}
	if f.entry != nil && f.entry.Dir {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrInvalid}
	}

	// One fetch per handle; WebDAV clients read sequentially in chunks and
	// slicing locally avoids a round-trip per chunk.
	if !f.fetched {
		data, err := f.fs.api.ReadAll(f.ctx, f.path)
		if err != nil {
			return 0, davError("read", f.name, err)
		}
		f.data = data
		f.fetched = true
	}

	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write stores p at the current offset, growing the buffer and zero-filling
// any gap so sparse and out-of-order writes overlay correctly.
func (f *File) Write(p []byte) (int, error) {
	if !f.writable {
		return 0, fmt.Errorf("%s: not opened for writing", f.name)
	}

	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[f.pos:end], p)
	f.pos = end
	return len(p), nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	var size int64
	switch {
	case f.writable:
		size = int64(len(f.buf))
	case f.fetched:
		size = int64(len(f.data))
	case f.entry != nil:
		size = int64(f.entry.Size)
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	f.pos = pos
	return pos, nil
}

// Readdir lists the directory fresh from the remote store on every call,
// so concurrent external mutations are visible immediately.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if f.entry != nil && !f.entry.Dir {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: fs.ErrInvalid}
	}

	entries, err := f.fs.api.List(f.ctx, f.path)
	if err != nil {
		return nil, davError("readdir", f.name, err)
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, f.fs.fileInfo(e))
	}
	if count > 0 && len(infos) > count {
		infos = infos[:count]
	}
	return infos, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	if f.writable {
		return &fileInfo{
			name:    baseName(f.name),
			size:    int64(len(f.buf)),
			modTime: time.Now(),
		}, nil
	}
	if f.entry == nil {
		return nil, &fs.PathError{Op: "stat", Path: f.name, Err: fs.ErrNotExist}
	}
	return f.fs.fileInfo(*f.entry), nil
}
