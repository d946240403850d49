package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	assert.True(t, cfg.Fallbacks)
	assert.Zero(t, cfg.MaxCalls)
	assert.Empty(t, cfg.Entry)
	assert.Empty(t, cfg.History.Path)
	assert.Equal(t, "127.0.0.1:7447", cfg.Serve.Addr)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Serve.Addr, cfg.Serve.Addr)
	assert.True(t, cfg.Fallbacks)
}

func TestLoadParsesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "loris.yaml")
	data := []byte(`
verbose: true
max_calls: 500
entry: run_main
fallbacks: false
disabled:
  - pool
  - dl
script: hooks.js
history:
  path: sessions.db
serve:
  addr: "127.0.0.1:9900"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Verbose)
	assert.Equal(t, 500, cfg.MaxCalls)
	assert.Equal(t, "run_main", cfg.Entry)
	assert.False(t, cfg.Fallbacks)
	assert.Equal(t, []string{"pool", "dl"}, cfg.Disabled)
	assert.Equal(t, "hooks.js", cfg.Script)
	assert.Equal(t, "sessions.db", cfg.History.Path)
	assert.Equal(t, "127.0.0.1:9900", cfg.Serve.Addr)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("verbose: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LORIS_HISTORY", "/tmp/env.db")
	t.Setenv("LORIS_HISTORY_KEY", "00112233445566778899aabbccddeeff")
	t.Setenv("LORIS_ADDR", "127.0.0.1:7001")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.db", cfg.History.Path)
	assert.Equal(t, "00112233445566778899aabbccddeeff", cfg.History.Key)
	assert.Equal(t, "127.0.0.1:7001", cfg.Serve.Addr)
}

func TestHistoryKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		key     string
		wantLen int
		wantErr bool
	}{
		{name: "empty disables encryption", key: "", wantLen: 0},
		{name: "aes-128", key: "00112233445566778899aabbccddeeff", wantLen: 16},
		{name: "aes-256", key: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", wantLen: 32},
		{name: "not hex", key: "zz", wantErr: true},
		{name: "wrong length", key: "0011", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			cfg.History.Key = tc.key

			key, err := cfg.HistoryKey()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, tc.wantLen)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Verbose = true
	cfg.Quiet = true
	require.Error(t, cfg.Validate(), "verbose and quiet together")

	cfg = Default()
	cfg.MaxCalls = -1
	require.Error(t, cfg.Validate(), "negative max_calls")

	cfg = Default()
	cfg.Serve.Addr = "no-port"
	require.Error(t, cfg.Validate(), "address without port")

	cfg = Default()
	cfg.Serve.Addr = ""
	require.NoError(t, cfg.Validate(), "empty address disables serving")
}

func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "loris.yaml")

	cfg := Default()
	cfg.MaxCalls = 42
	cfg.Entry = "wasm_main"
	cfg.Disabled = []string{"cond"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.MaxCalls)
	assert.Equal(t, "wasm_main", loaded.Entry)
	assert.Equal(t, []string{"cond"}, loaded.Disabled)
}
