package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, rest, err := Load([]string{"list"})
	require.NoError(t, err)
	require.Equal(t, []string{"list"}, rest)

	require.Equal(t, constants.DefaultServerURL, cfg.Server.URL)
	require.Equal(t, constants.DefaultHTTPTimeout, cfg.HTTP.Timeout)
	require.Equal(t, "dark", cfg.UI.Theme)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, constants.DefaultStatusTTL, cfg.Status.TTL)
	require.Equal(t, constants.DefaultServeAddr, cfg.Serve.Addr)
	require.Equal(t, constants.DefaultTokenTTL, cfg.Serve.TokenTTL)
	require.Equal(t, constants.DatabaseFileName, filepath.Base(cfg.Storage.Path))
	require.Empty(t, cfg.ConfigFile)
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)

	yaml := `
server:
  url: http://file:1
http:
  timeout: 5s
ui:
  theme: light
status:
  ttl: 1s
serve:
  token_ttl: 1h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notekeeper.yaml"), []byte(yaml), 0o600))

	t.Setenv("NOTEKEEPER_SERVER_URL", "http://env:2")
	t.Setenv("NOTEKEEPER_LOG_LEVEL", "debug")

	cfg, rest, err := Load([]string{"-timeout", "7s", "add", "-title", "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"add", "-title", "x"}, rest)

	require.Equal(t, "http://env:2", cfg.Server.URL, "env beats file")
	require.Equal(t, 7*time.Second, cfg.HTTP.Timeout, "flag beats file")
	require.Equal(t, "light", cfg.UI.Theme)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, time.Second, cfg.Status.TTL)
	require.Equal(t, time.Hour, cfg.Serve.TokenTTL)
	require.NotEmpty(t, cfg.ConfigFile)

	cfg, _, err = Load([]string{"-server", "http://flag:3"})
	require.NoError(t, err)
	require.Equal(t, "http://flag:3", cfg.Server.URL, "flag beats env")
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  path: \"\"\n"), 0o600))

	cfg, _, err := Load([]string{"-config", path})
	require.NoError(t, err)
	require.Empty(t, cfg.Storage.Path, "empty path selects in-memory storage")
	require.Equal(t, path, cfg.ConfigFile)

	_, _, err = Load([]string{"-config", filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad theme", []string{"-theme", "neon"}},
		{"bad url", []string{"-server", "localhost:8080"}},
		{"negative timeout", []string{"-timeout", "-1s"}},
		{"bad log level", []string{"-log-level", "loud"}},
		{"unknown flag", []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, _, err := Load(tt.args)
			require.Error(t, err)
		})
	}
}
