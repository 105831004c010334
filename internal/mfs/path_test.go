package mfs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerdav/peerdav/internal/mfs"
	"github.com/peerdav/peerdav/internal/mfs/mfstest"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{"root of root", "/", "/", "/"},
		{"simple file", "/", "a/b", "/a/b"},
		{"leading slash", "/", "/a/b", "/a/b"},
		{"repeated separators collapse", "/", "//a///b//", "/a/b"},
		{"trailing separator stripped", "/", "/a/", "/a"},
		{"dot segments collapse", "/", "./a/./b", "/a/b"},
		{"prefixed root", "/dav", "/x.txt", "/dav/x.txt"},
		{"prefixed root itself", "/dav", "/", "/dav"},
		{"prefix trailing slash", "/dav/", "sub/", "/dav/sub"},
		{"empty root means slash", "", "a", "/a"},
		{"empty path", "/dav", "", "/dav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mfs.Resolve(tt.root, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRejectsParentSegments(t *testing.T) {
	paths := []string{
		"..",
		"/..",
		"../x",
		"a/../b",
		"a/..",
		"/a/b/../../..",
		"..//x",
	}

	for _, p := range paths {
		_, err := mfs.Resolve("/dav", p)
		assert.ErrorIs(t, err, mfs.ErrInvalidPath, "path %q", p)
	}
}

func TestEnsurePath(t *testing.T) {
	ctx := context.Background()
	mem := mfstest.New()

	require.NoError(t, mfs.EnsurePath(ctx, mem, "/a/b/c"))

	entry, err := mem.Stat(ctx, "/a/b/c")
	require.NoError(t, err)
	assert.True(t, entry.Dir)

	// A second run over existing directories is a no-op.
	require.NoError(t, mfs.EnsurePath(ctx, mem, "/a/b/c"))

	require.NoError(t, mfs.EnsurePath(ctx, mem, "/"))
}
