package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbd-wtf/keystache"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err, "an explicitly named missing file is an error")

	cfg, err = loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultSocketPath, cfg.Socket)
	assert.Equal(t, keystache.DefaultDecisionTimeout, cfg.decisionTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystache.toml")
	require.NoError(t, os.WriteFile(path, []byte("socket = \"/run/signer.sock\"\ntimeout = \"90s\"\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/run/signer.sock", cfg.Socket)
	assert.Equal(t, 90*time.Second, cfg.decisionTimeout)
}

func TestLoadConfigBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystache.toml")
	require.NoError(t, os.WriteFile(path, []byte("timeout = \"soon\"\n"), 0o600))

	_, err := loadConfig(path)
	require.Error(t, err)
}
