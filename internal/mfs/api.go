// Package mfs talks to an IPFS daemon's Mutable File System over its HTTP
// RPC API. The API interface is the only surface the rest of the server
// depends on, so tests can substitute an in-memory store.
package mfs

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy returned by every layer above the raw RPC transport.
// Handlers map these onto WebDAV status codes, so a more specific error must
// never be collapsed into a less specific one (NotFound is permanent,
// RemoteUnavailable is transient).
var (
	ErrInvalidPath       = errors.New("invalid path")
	ErrNotFound          = errors.New("not found")
	ErrExists            = errors.New("already exists")
	ErrLocked            = errors.New("path is locked")
	ErrLockConflict      = errors.New("lock conflict")
	ErrUnknownToken      = errors.New("unknown lock token")
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	ErrInternal          = errors.New("internal error")
)

// Entry describes one MFS object. ModTime is zero when the daemon does not
// report one; callers substitute their own fallback.
type Entry struct {
	Path    string
	Name    string
	Dir     bool
	Size    uint64
	ModTime time.Time
}

// API is the set of remote MFS operations the bridge needs. Every method is
// a single RPC round-trip; none of them retry beyond what the implementation
// chooses to do at the transport level.
type API interface {
	// Stat returns the entry at path.
	Stat(ctx context.Context, path string) (Entry, error)

	// List returns the immediate children of the directory at path.
	List(ctx context.Context, path string) ([]Entry, error)

	// ReadAll returns the full content of the file at path.
	ReadAll(ctx context.Context, path string) ([]byte, error)

	// WriteAll replaces the file at path with data, creating it if needed.
	// The replacement is atomic at the object level.
	WriteAll(ctx context.Context, path string, data []byte) error

	// Mkdir creates the directory at path.
	Mkdir(ctx context.Context, path string) error

	// Remove deletes the file or directory tree at path.
	Remove(ctx context.Context, path string) error

	// Move renames src to dest.
	Move(ctx context.Context, src, dest string) error

	// Copy copies src to dest.
	Copy(ctx context.Context, src, dest string) error

	// Flush asks the daemon to flush path's data to its datastore.
	Flush(ctx context.Context, path string) error
}
