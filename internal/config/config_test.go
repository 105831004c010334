package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost:5001", cfg.IPFSAPIAddr)
	assert.Equal(t, 30*time.Second, cfg.RPCTimeout)
	assert.Equal(t, "/", cfg.MFSRoot)
	assert.Empty(t, cfg.DavPrefix)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("MFS_ROOT", "/webdav")
	t.Setenv("DAV_PREFIX", "/dav")
	t.Setenv("RPC_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "/webdav", cfg.MFSRoot)
	assert.Equal(t, "/dav", cfg.DavPrefix)
	assert.Equal(t, 5*time.Second, cfg.RPCTimeout)
}

func TestLoadRejectsBadRoot(t *testing.T) {
	t.Setenv("MFS_ROOT", "relative/path")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("MFS_ROOT", "/a/../b")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadPrefix(t *testing.T) {
	t.Setenv("DAV_PREFIX", "dav")
	_, err := Load()
	assert.Error(t, err)
}

func TestBadDurationFallsBack(t *testing.T) {
	t.Setenv("RPC_TIMEOUT", "not-a-duration")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.RPCTimeout)
}
