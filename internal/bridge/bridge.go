// Package bridge implements webdav.FileSystem on top of the remote MFS
// API. Every operation is independent: normalize the client path, consult
// the lock table for mutations, dispatch the RPC, map the failure. Nothing
// is cached across operations, so external mutations of the remote store
// are visible on the next call.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	gopath "path"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/peerdav/peerdav/internal/logging"
	"github.com/peerdav/peerdav/internal/mfs"
)

// LockChecker is the bridge's view of the lock emulation layer: it only
// ever asks whether a mutation may proceed. The narrow interface keeps the
// in-process table swappable for a shared lock service later.
type LockChecker interface {
	Allows(path string, tokens ...string) bool
}

// FS is the filesystem bridge. The lock table is injected rather than
// global so the bridge can be exercised against a fake in tests.
type FS struct {
	api   mfs.API
	locks LockChecker
	root  string

	// epoch substitutes for modification times the remote store does not
	// track. Clients get a stable, usable timestamp but must not rely on
	// its accuracy.
	epoch time.Time
}

var _ webdav.FileSystem = (*FS)(nil)

// New creates a bridge confined to the given MFS root prefix.
func New(api mfs.API, table LockChecker, root string) *FS {
	return &FS{
		api:   api,
		locks: table,
		root:  root,
		epoch: time.Now().Truncate(time.Second),
	}
}

// Mkdir creates a directory.
func (b *FS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	path, err := mfs.Resolve(b.root, name)
	if err != nil {
		return davError("mkdir", name, err)
	}
	if err := b.checkLock(ctx, name); err != nil {
		return err
	}
	return davError("mkdir", name, b.api.Mkdir(ctx, path))
}

// RemoveAll removes a file or directory tree.
func (b *FS) RemoveAll(ctx context.Context, name string) error {
	path, err := mfs.Resolve(b.root, name)
	if err != nil {
		return davError("remove", name, err)
	}
	if path == b.rootPath() {
		return davError("remove", name, fmt.Errorf("%w: cannot remove root", mfs.ErrInvalidPath))
	}
	if err := b.checkLock(ctx, name); err != nil {
		return err
	}
	return davError("remove", name, b.api.Remove(ctx, path))
}

// Rename moves oldName to newName. Both endpoints must be free of foreign
// exclusive locks.
func (b *FS) Rename(ctx context.Context, oldName, newName string) error {
	src, err := mfs.Resolve(b.root, oldName)
	if err != nil {
		return davError("rename", oldName, err)
	}
	dest, err := mfs.Resolve(b.root, newName)
	if err != nil {
		return davError("rename", newName, err)
	}
	if err := b.checkLock(ctx, oldName); err != nil {
		return err
	}
	if err := b.checkLock(ctx, newName); err != nil {
		return err
	}
	if err := b.api.Move(ctx, src, dest); err != nil {
		return davError("rename", oldName, err)
	}
	logging.Debug("rename", zap.String("from", src), zap.String("to", dest))
	return nil
}

// Copy duplicates oldName at newName in a single remote call; the copy is
// cheap on the remote side because objects are content-addressed.
func (b *FS) Copy(ctx context.Context, oldName, newName string, overwrite bool) error {
	src, err := mfs.Resolve(b.root, oldName)
	if err != nil {
		return davError("copy", oldName, err)
	}
	dest, err := mfs.Resolve(b.root, newName)
	if err != nil {
		return davError("copy", newName, err)
	}
	if err := b.checkLock(ctx, newName); err != nil {
		return err
	}
	if _, statErr := b.api.Stat(ctx, dest); statErr == nil {
		if !overwrite {
			return davError("copy", newName, fmt.Errorf("%w: %s", mfs.ErrExists, newName))
		}
		if err := b.api.Remove(ctx, dest); err != nil {
			return davError("copy", newName, err)
		}
	} else if !errors.Is(statErr, mfs.ErrNotFound) {
		return davError("copy", newName, statErr)
	}
	return davError("copy", oldName, b.api.Copy(ctx, src, dest))
}

// Stat returns metadata for name, freshly fetched from the remote store.
func (b *FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	path, err := mfs.Resolve(b.root, name)
	if err != nil {
		return nil, davError("stat", name, err)
	}
	entry, err := b.api.Stat(ctx, path)
	if err != nil {
		return nil, davError("stat", name, err)
	}
	return b.fileInfo(entry), nil
}

// OpenFile opens name for reading or writing. Write handles buffer all
// content locally and commit it in one remote call on Close.
func (b *FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	path, err := mfs.Resolve(b.root, name)
	if err != nil {
		return nil, davError("open", name, err)
	}

	writable := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0
	if !writable {
		entry, err := b.api.Stat(ctx, path)
		if err != nil {
			return nil, davError("open", name, err)
		}
		return &File{fs: b, ctx: ctx, name: name, path: path, entry: &entry}, nil
	}

	entry, statErr := b.api.Stat(ctx, path)
	switch {
	case statErr == nil:
		// Only an existing object is lock-checked here. A LOCK on an
		// unmapped path creates its empty placeholder through this very
		// method before the minted token could be presented.
		if err := b.checkLock(ctx, name); err != nil {
			return nil, err
		}
		if entry.Dir {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
		}
		if flag&os.O_EXCL != 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
		}
	case errors.Is(statErr, mfs.ErrNotFound):
		if flag&os.O_CREATE == 0 {
			return nil, davError("open", name, statErr)
		}
	default:
		return nil, davError("open", name, statErr)
	}

	f := &File{fs: b, ctx: ctx, name: name, path: path, writable: true}
	if statErr == nil && flag&os.O_TRUNC == 0 {
		// Keeping existing content lets offset writes overlay it.
		data, err := b.api.ReadAll(ctx, path)
		if err != nil {
			return nil, davError("open", name, err)
		}
		f.buf = data
	}
	return f, nil
}

// checkLock fails with a Locked error when name carries an exclusive lock
// whose token the caller did not present. Locks are keyed by the
// client-visible path — the namespace LOCK requests use — never by the
// MFS-resolved one, so enforcement does not depend on the configured root.
func (b *FS) checkLock(ctx context.Context, name string) error {
	if b.locks == nil {
		return nil
	}
	key, err := mfs.Resolve("/", name)
	if err != nil {
		return davError("lock", name, err)
	}
	if !b.locks.Allows(key, Tokens(ctx)...) {
		return fmt.Errorf("%w: %w: %s", webdav.ErrLocked, mfs.ErrLocked, name)
	}
	return nil
}

func (b *FS) rootPath() string {
	path, _ := mfs.Resolve(b.root, "/")
	return path
}

// davError maps the error taxonomy onto the os-level sentinels the WebDAV
// handler inspects when picking status codes. The most specific kind wins;
// in particular a missing path is never reported as a remote failure.
func davError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mfs.ErrNotFound):
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	case errors.Is(err, mfs.ErrExists):
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrExist}
	case errors.Is(err, mfs.ErrInvalidPath):
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	default:
		return err
	}
}

type ctxKey int

const tokensKey ctxKey = iota

// WithTokens records the lock tokens a request presented (from its If
// header) so mutating operations can recognize the lock holder.
func WithTokens(ctx context.Context, tokens []string) context.Context {
	if len(tokens) == 0 {
		return ctx
	}
	return context.WithValue(ctx, tokensKey, tokens)
}

// Tokens returns the lock tokens presented by the request, if any.
func Tokens(ctx context.Context) []string {
	tokens, _ := ctx.Value(tokensKey).([]string)
	return tokens
}

// baseName returns the display name for a client path.
func baseName(name string) string {
	base := gopath.Base(gopath.Clean(name))
	if base == "." || base == "" {
		return "/"
	}
	return base
}
