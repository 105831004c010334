package locks

import (
	"errors"
	"time"

	"golang.org/x/net/webdav"

	"github.com/peerdav/peerdav/internal/mfs"
)

// System adapts a Table to webdav.LockSystem so LOCK, UNLOCK and REFRESH
// requests and the handler's If-header confirmation all drive the same
// table the filesystem bridge consults. WebDAV write locks are exclusive,
// so every lock created through this adapter is Exclusive; the table's
// shared scope stays available to other callers of the capability.
type System struct {
	table *Table
}

var _ webdav.LockSystem = (*System)(nil)

// NewSystem wraps table in a webdav.LockSystem.
func NewSystem(table *Table) *System {
	return &System{table: table}
}

// canonical collapses a lock root to the slash-rooted spelling the table is
// keyed by, so "/a//b" and "a/b" land on one entry. The bridge keys its own
// lock checks the same way. Empty means "no path" and stays empty.
func canonical(path string) string {
	if path == "" {
		return ""
	}
	p, err := mfs.Resolve("/", path)
	if err != nil {
		return path
	}
	return p
}

// Create takes an exclusive lock on details.Root. A non-positive duration
// means the lock never expires.
func (s *System) Create(now time.Time, details webdav.LockDetails) (string, error) {
	ttl := details.Duration
	if ttl < 0 {
		ttl = 0
	}
	e, err := s.table.Acquire(canonical(details.Root), Exclusive, ttl)
	if err != nil {
		if errors.Is(err, mfs.ErrLockConflict) {
			return "", webdav.ErrLocked
		}
		return "", err
	}

	t := s.table
	t.mu.Lock()
	if live := t.byToken[e.Token]; live != nil {
		live.OwnerXML = details.OwnerXML
		live.ZeroDepth = details.ZeroDepth
	}
	t.mu.Unlock()
	return e.Token, nil
}

// Refresh extends the lock's deadline and echoes back its details.
func (s *System) Refresh(now time.Time, token string, duration time.Duration) (webdav.LockDetails, error) {
	if duration < 0 {
		duration = 0
	}
	e, err := s.table.Renew(token, duration)
	if err != nil {
		if errors.Is(err, mfs.ErrUnknownToken) {
			return webdav.LockDetails{}, webdav.ErrNoSuchLock
		}
		return webdav.LockDetails{}, err
	}
	return webdav.LockDetails{
		Root:      e.Path,
		Duration:  duration,
		OwnerXML:  e.OwnerXML,
		ZeroDepth: e.ZeroDepth,
	}, nil
}

// Unlock releases the lock. A lock confirmed for an in-flight request
// cannot be unlocked until that request finishes.
func (s *System) Unlock(now time.Time, token string) error {
	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.live(token)
	if e == nil {
		return webdav.ErrNoSuchLock
	}
	if t.held[token] {
		return webdav.ErrLocked
	}
	t.drop(e)
	return nil
}

// Confirm checks that the caller's conditions carry a token for every
// locked path named, and holds the matched locks until release is called.
func (s *System) Confirm(now time.Time, name0, name1 string, conditions ...webdav.Condition) (func(), error) {
	var tokens []string
	for _, c := range conditions {
		if !c.Not && c.Token != "" {
			tokens = append(tokens, c.Token)
		}
	}

	name0, name1 = canonical(name0), canonical(name1)
	var paths []string
	if name0 != "" {
		paths = append(paths, name0)
	}
	if name1 != "" && name1 != name0 {
		paths = append(paths, name1)
	}

	t := s.table
	t.mu.Lock()
	defer t.mu.Unlock()

	var confirmed []*Entry
	for _, p := range paths {
		t.evictExpired(p)
		entries := t.byPath[p]
		if len(entries) == 0 {
			continue
		}
		var match *Entry
		for _, e := range entries {
			for _, tok := range tokens {
				if tok == e.Token {
					match = e
					break
				}
			}
			if match != nil {
				break
			}
		}
		if match == nil || t.held[match.Token] {
			return nil, webdav.ErrConfirmationFailed
		}
		confirmed = append(confirmed, match)
	}

	for _, e := range confirmed {
		t.held[e.Token] = true
	}
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, e := range confirmed {
			delete(t.held, e.Token)
		}
	}, nil
}
