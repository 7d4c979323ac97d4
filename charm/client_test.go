package charm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientKeysWithPrefixAndReset(t *testing.T) {
	c := NewTestClient(t)

	require.NoError(t, c.Set([]byte("settings:agent-1"), []byte("{}")))
	require.NoError(t, c.Set([]byte("settings:agent-2"), []byte("{}")))
	require.NoError(t, c.Set([]byte("other"), []byte("x")))

	keys, err := c.KeysWithPrefix([]byte(settingsPrefix))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, c.Delete([]byte("settings:agent-2")))
	keys, err = c.KeysWithPrefix([]byte(settingsPrefix))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("settings:agent-1")}, keys)

	require.NoError(t, c.Sync())
	require.NoError(t, c.Reset())
	_, err = c.Get([]byte("other"))
	assert.ErrorIs(t, err, badger.ErrKeyNotFound)
}

func useDataHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	xdg.Reload()
	t.Cleanup(xdg.Reload)
	return dir
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	dir := useDataHome(t)
	t.Setenv(HostEnv, "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	require.NoError(t, cfg.SetAutoSync(false))
	_, err = os.Stat(filepath.Join(dir, AppName, ConfigFileName))
	require.NoError(t, err)

	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.AutoSync)
	assert.Equal(t, DefaultCharmHost, cfg.Host)

	t.Setenv(HostEnv, "charm.example.com")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "charm.example.com", cfg.Host)
}

func TestLoadConfigIgnoresCorruptFile(t *testing.T) {
	dir := useDataHome(t)
	t.Setenv(HostEnv, "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, AppName), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, AppName, ConfigFileName), []byte("{not json"), 0600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
