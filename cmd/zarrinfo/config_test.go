package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(configEnv, "")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "zarrinfo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: yaml\nzarr_format: 3\n"), 0644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, &Config{Format: "yaml", ZarrFormat: 3, LogLevel: "warn"}, cfg)

	t.Setenv(configEnv, path)
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Format)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("format: [json\n"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := []Config{
		{Format: "xml", LogLevel: "warn"},
		{Format: "json", NodeType: "dataset", LogLevel: "warn"},
		{Format: "json", ZarrFormat: 1, LogLevel: "warn"},
		{Format: "json", LogLevel: "loud"},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate(), "%+v", c)
	}

	ok := Config{Format: "info", NodeType: "group", ZarrFormat: 2, LogLevel: "debug"}
	assert.NoError(t, ok.Validate())
}
