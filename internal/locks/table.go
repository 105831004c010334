// Package locks emulates path locking for a remote store that has no lock
// primitive of its own. The table is process-local and in-memory; locks do
// not survive a restart, which forfeits nothing because the remote store
// cannot hold a lock across restarts either.
package locks

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peerdav/peerdav/internal/metrics"
	"github.com/peerdav/peerdav/internal/mfs"
)

// Scope is the sharing mode of a lock.
type Scope int

const (
	Shared Scope = iota
	Exclusive
)

func (s Scope) String() string {
	if s == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Entry is one live lock. Expiry is the absolute deadline; a zero Expiry
// never expires. OwnerXML and ZeroDepth carry protocol detail the WebDAV
// layer needs to echo back on refresh; the table itself never reads them.
type Entry struct {
	Path      string
	Token     string
	Scope     Scope
	Expiry    time.Time
	OwnerXML  string
	ZeroDepth bool
}

// ConflictError reports the tokens holding the locks that blocked an
// acquisition. Unwraps to mfs.ErrLockConflict.
type ConflictError struct {
	Path   string
	Tokens []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("lock conflict on %s (held by %s)", e.Path, strings.Join(e.Tokens, ", "))
}

func (e *ConflictError) Unwrap() error {
	return mfs.ErrLockConflict
}

// Table is the lock registry. A single mutex guards every operation; it is
// held only for the in-memory mutation, never across an RPC call. Expired
// entries are evicted lazily by whichever operation touches their path
// next — there is no background sweeper.
type Table struct {
	mu      sync.Mutex
	byToken map[string]*Entry
	byPath  map[string][]*Entry
	held    map[string]bool

	now func() time.Time
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{
		byToken: make(map[string]*Entry),
		byPath:  make(map[string][]*Entry),
		held:    make(map[string]bool),
		now:     time.Now,
	}
}

// Acquire takes a new lock on path, minting a fresh token. ttl <= 0 means
// the lock never expires. Returns a ConflictError when an incompatible lock
// is live on the path.
func (t *Table) Acquire(path string, scope Scope, ttl time.Duration) (Entry, error) {
	return t.AcquireToken(path, scope, ttl, "")
}

// AcquireToken is Acquire with a caller-supplied token. An empty token asks
// the table to mint one; a token already in use is a conflict.
func (t *Table) AcquireToken(path string, scope Scope, ttl time.Duration, token string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired(path)

	if blocking := t.conflicting(path, scope); len(blocking) > 0 {
		return Entry{}, &ConflictError{Path: path, Tokens: blocking}
	}

	if token == "" {
		token = newToken()
	} else if _, live := t.byToken[token]; live {
		return Entry{}, &ConflictError{Path: path, Tokens: []string{token}}
	}

	e := &Entry{
		Path:  path,
		Token: token,
		Scope: scope,
	}
	if ttl > 0 {
		e.Expiry = t.now().Add(ttl)
	}
	t.byToken[token] = e
	t.byPath[path] = append(t.byPath[path], e)
	metrics.SetActiveLocks(len(t.byToken))
	return *e, nil
}

// Release drops the lock identified by token. An unknown or already-expired
// token yields mfs.ErrUnknownToken.
func (t *Table) Release(token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.live(token)
	if e == nil {
		return fmt.Errorf("%w: %s", mfs.ErrUnknownToken, token)
	}
	t.drop(e)
	metrics.SetActiveLocks(len(t.byToken))
	return nil
}

// Renew pushes the deadline of a live lock out by ttl from now.
func (t *Table) Renew(token string, ttl time.Duration) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.live(token)
	if e == nil {
		return Entry{}, fmt.Errorf("%w: %s", mfs.ErrUnknownToken, token)
	}
	if ttl > 0 {
		e.Expiry = t.now().Add(ttl)
	} else {
		e.Expiry = time.Time{}
	}
	return *e, nil
}

// Check reports whether a lock of the given scope could be acquired on path
// right now.
func (t *Table) Check(path string, scope Scope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired(path)
	return len(t.conflicting(path, scope)) == 0
}

// Allows reports whether a mutation of path may proceed for a caller
// presenting the given tokens. Only an exclusive lock blocks; the holder's
// own token passes.
func (t *Table) Allows(path string, tokens ...string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired(path)
	for _, e := range t.byPath[path] {
		if e.Scope != Exclusive {
			continue
		}
		for _, tok := range tokens {
			if tok == e.Token {
				return true
			}
		}
		return false
	}
	return true
}

// live returns the entry for token, evicting it first if expired.
func (t *Table) live(token string) *Entry {
	e, ok := t.byToken[token]
	if !ok {
		return nil
	}
	if t.expired(e) {
		t.drop(e)
		return nil
	}
	return e
}

func (t *Table) conflicting(path string, scope Scope) []string {
	var blocking []string
	for _, e := range t.byPath[path] {
		if scope == Exclusive || e.Scope == Exclusive {
			blocking = append(blocking, e.Token)
		}
	}
	return blocking
}

func (t *Table) evictExpired(path string) {
	entries := t.byPath[path]
	for i := 0; i < len(entries); {
		if t.expired(entries[i]) {
			t.drop(entries[i])
			entries = t.byPath[path]
			continue
		}
		i++
	}
}

func (t *Table) expired(e *Entry) bool {
	return !e.Expiry.IsZero() && e.Expiry.Before(t.now())
}

func (t *Table) drop(e *Entry) {
	delete(t.byToken, e.Token)
	delete(t.held, e.Token)
	entries := t.byPath[e.Path]
	for i, cand := range entries {
		if cand == e {
			t.byPath[e.Path] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(t.byPath[e.Path]) == 0 {
		delete(t.byPath, e.Path)
	}
}

// newToken mints an opaque token unique among live entries. UUIDs make
// collisions with concurrently live tokens a non-concern.
func newToken() string {
	return "opaquelocktoken:" + uuid.NewString()
}
