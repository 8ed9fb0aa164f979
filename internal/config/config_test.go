package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Storage.MaxAge)
	assert.Equal(t, 10*time.Minute, cfg.Storage.SweepInterval)
	assert.Equal(t, "ffmpeg", cfg.Media.FFmpeg)
	assert.Equal(t, "gemini", cfg.Recognition.Provider)
	assert.Equal(t, "python3", cfg.Selector.Command)
	assert.Equal(t, []string{"main.py"}, cfg.Selector.Args)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("STORAGE_MAX_AGE", "30m")
	t.Setenv("RECOGNITION_PROVIDER", " OpenAI ")
	t.Setenv("PYTHON_BIN", "/usr/bin/python3.12")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Storage.MaxAge)
	assert.Equal(t, "openai", cfg.Recognition.Provider)
	assert.Equal(t, "/usr/bin/python3.12", cfg.Selector.Command)
}

func TestLoad_SecretFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	secretPath := filepath.Join(dir, "key.txt")
	require.NoError(t, os.WriteFile(secretPath, []byte("  s3cret\n"), 0o600))
	t.Setenv("RECOGNITION_API_KEY", "")
	t.Setenv("RECOGNITION_API_KEY_FILE", secretPath)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Recognition.APIKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := "storage:\n  root: /srv/framebeat\n  sweep_interval: 5m\nselector:\n  args: [\"select.py\", \"--quiet\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/framebeat", cfg.Storage.Root)
	assert.Equal(t, 5*time.Minute, cfg.Storage.SweepInterval)
	assert.Equal(t, []string{"select.py", "--quiet"}, cfg.Selector.Args)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
