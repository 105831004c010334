package locks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"
)

func TestSystemCreateAndConflict(t *testing.T) {
	tbl := NewTable()
	sys := NewSystem(tbl)
	now := time.Now()

	token, err := sys.Create(now, webdav.LockDetails{
		Root:     "/a",
		Duration: -1,
		OwnerXML: "<D:owner>alice</D:owner>",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = sys.Create(now, webdav.LockDetails{Root: "/a", Duration: -1})
	assert.ErrorIs(t, err, webdav.ErrLocked)
}

func TestSystemConfirm(t *testing.T) {
	tbl := NewTable()
	sys := NewSystem(tbl)
	now := time.Now()

	token, err := sys.Create(now, webdav.LockDetails{Root: "/a", Duration: -1})
	require.NoError(t, err)

	// No token presented: confirmation fails.
	_, err = sys.Confirm(now, "/a", "")
	assert.ErrorIs(t, err, webdav.ErrConfirmationFailed)

	// Correct token: confirmed, and held until release.
	release, err := sys.Confirm(now, "/a", "", webdav.Condition{Token: token})
	require.NoError(t, err)

	_, err = sys.Confirm(now, "/a", "", webdav.Condition{Token: token})
	assert.ErrorIs(t, err, webdav.ErrConfirmationFailed, "held lock cannot be confirmed twice")

	assert.ErrorIs(t, sys.Unlock(now, token), webdav.ErrLocked, "held lock cannot be unlocked")

	release()

	require.NoError(t, sys.Unlock(now, token))
}

func TestSystemConfirmUnlockedPath(t *testing.T) {
	sys := NewSystem(NewTable())
	release, err := sys.Confirm(time.Now(), "/free", "")
	require.NoError(t, err)
	release()
}

func TestSystemConfirmBothEndpoints(t *testing.T) {
	tbl := NewTable()
	sys := NewSystem(tbl)
	now := time.Now()

	token, err := sys.Create(now, webdav.LockDetails{Root: "/dst", Duration: -1})
	require.NoError(t, err)

	_, err = sys.Confirm(now, "/src", "/dst")
	assert.ErrorIs(t, err, webdav.ErrConfirmationFailed)

	release, err := sys.Confirm(now, "/src", "/dst", webdav.Condition{Token: token})
	require.NoError(t, err)
	release()
}

func TestSystemRefresh(t *testing.T) {
	tbl := NewTable()
	sys := NewSystem(tbl)
	now := time.Now()

	token, err := sys.Create(now, webdav.LockDetails{
		Root:      "/a",
		Duration:  time.Minute,
		OwnerXML:  "<D:owner>alice</D:owner>",
		ZeroDepth: true,
	})
	require.NoError(t, err)

	details, err := sys.Refresh(now, token, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "/a", details.Root)
	assert.Equal(t, "<D:owner>alice</D:owner>", details.OwnerXML)
	assert.True(t, details.ZeroDepth)

	_, err = sys.Refresh(now, "opaquelocktoken:gone", time.Hour)
	assert.ErrorIs(t, err, webdav.ErrNoSuchLock)
}

func TestSystemUnlockUnknown(t *testing.T) {
	sys := NewSystem(NewTable())
	assert.ErrorIs(t, sys.Unlock(time.Now(), "opaquelocktoken:gone"), webdav.ErrNoSuchLock)
}
