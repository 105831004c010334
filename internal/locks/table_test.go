package locks

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerdav/peerdav/internal/mfs"
)

// fakeClock pins the table's notion of now so expiry can be tested without
// sleeping.
func fakeClock(t *Table) *time.Time {
	now := time.Now()
	t.now = func() time.Time { return now }
	return &now
}

func TestAcquireConflicts(t *testing.T) {
	tests := []struct {
		name     string
		first    Scope
		second   Scope
		conflict bool
	}{
		{"exclusive blocks exclusive", Exclusive, Exclusive, true},
		{"exclusive blocks shared", Exclusive, Shared, true},
		{"shared blocks exclusive", Shared, Exclusive, true},
		{"shared allows shared", Shared, Shared, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable()
			first, err := tbl.Acquire("/a", tt.first, 0)
			require.NoError(t, err)

			_, err = tbl.Acquire("/a", tt.second, 0)
			if !tt.conflict {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, mfs.ErrLockConflict)

			var conflict *ConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Contains(t, conflict.Tokens, first.Token)
		})
	}
}

func TestAcquireDifferentPathsIndependent(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Acquire("/a", Exclusive, 0)
	require.NoError(t, err)
	_, err = tbl.Acquire("/b", Exclusive, 0)
	assert.NoError(t, err)
}

func TestReleaseAllowsReacquire(t *testing.T) {
	tbl := NewTable()
	e, err := tbl.Acquire("/a", Exclusive, 0)
	require.NoError(t, err)

	_, err = tbl.Acquire("/a", Exclusive, 0)
	require.ErrorIs(t, err, mfs.ErrLockConflict)

	require.NoError(t, tbl.Release(e.Token))

	_, err = tbl.Acquire("/a", Exclusive, 0)
	assert.NoError(t, err)
}

func TestReleaseUnknownToken(t *testing.T) {
	tbl := NewTable()
	assert.ErrorIs(t, tbl.Release("opaquelocktoken:nope"), mfs.ErrUnknownToken)
}

func TestTokensAreOpaqueAndUnique(t *testing.T) {
	tbl := NewTable()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		e, err := tbl.Acquire("/a", Shared, 0)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(e.Token, "opaquelocktoken:"))
		assert.False(t, seen[e.Token], "token reused among live entries")
		seen[e.Token] = true
	}
}

func TestAcquireTokenRequested(t *testing.T) {
	tbl := NewTable()
	e, err := tbl.AcquireToken("/a", Exclusive, 0, "opaquelocktoken:mine")
	require.NoError(t, err)
	assert.Equal(t, "opaquelocktoken:mine", e.Token)

	// A live token cannot be handed out twice.
	_, err = tbl.AcquireToken("/b", Exclusive, 0, "opaquelocktoken:mine")
	assert.ErrorIs(t, err, mfs.ErrLockConflict)
}

func TestExpiryEvictedOnAcquire(t *testing.T) {
	tbl := NewTable()
	now := fakeClock(tbl)

	_, err := tbl.Acquire("/a", Exclusive, time.Minute)
	require.NoError(t, err)

	_, err = tbl.Acquire("/a", Exclusive, time.Minute)
	require.ErrorIs(t, err, mfs.ErrLockConflict)

	*now = now.Add(2 * time.Minute)

	_, err = tbl.Acquire("/a", Exclusive, time.Minute)
	assert.NoError(t, err, "expired entry should be evicted on the next acquire")
}

func TestExpiryEvictedOnCheck(t *testing.T) {
	tbl := NewTable()
	now := fakeClock(tbl)

	_, err := tbl.Acquire("/a", Exclusive, time.Minute)
	require.NoError(t, err)
	assert.False(t, tbl.Check("/a", Shared))

	*now = now.Add(2 * time.Minute)
	assert.True(t, tbl.Check("/a", Shared))
}

func TestRenewExtendsDeadline(t *testing.T) {
	tbl := NewTable()
	now := fakeClock(tbl)

	e, err := tbl.Acquire("/a", Exclusive, time.Minute)
	require.NoError(t, err)

	*now = now.Add(30 * time.Second)
	renewed, err := tbl.Renew(e.Token, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), renewed.Expiry)

	*now = now.Add(45 * time.Second)
	assert.False(t, tbl.Check("/a", Shared), "renewed lock must still be live")
}

func TestRenewExpiredToken(t *testing.T) {
	tbl := NewTable()
	now := fakeClock(tbl)

	e, err := tbl.Acquire("/a", Exclusive, time.Minute)
	require.NoError(t, err)

	*now = now.Add(2 * time.Minute)
	_, err = tbl.Renew(e.Token, time.Minute)
	assert.ErrorIs(t, err, mfs.ErrUnknownToken)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	tbl := NewTable()
	now := fakeClock(tbl)

	_, err := tbl.Acquire("/a", Exclusive, 0)
	require.NoError(t, err)

	*now = now.Add(24 * 365 * time.Hour)
	assert.False(t, tbl.Check("/a", Shared))
}

func TestAllows(t *testing.T) {
	tbl := NewTable()

	assert.True(t, tbl.Allows("/a"), "unlocked path allows mutation")

	e, err := tbl.Acquire("/a", Exclusive, 0)
	require.NoError(t, err)

	assert.False(t, tbl.Allows("/a"))
	assert.False(t, tbl.Allows("/a", "opaquelocktoken:other"))
	assert.True(t, tbl.Allows("/a", e.Token))
	assert.True(t, tbl.Allows("/a", "opaquelocktoken:other", e.Token))

	// Shared locks do not block mutation on their own.
	tbl2 := NewTable()
	_, err = tbl2.Acquire("/b", Shared, 0)
	require.NoError(t, err)
	assert.True(t, tbl2.Allows("/b"))
}
