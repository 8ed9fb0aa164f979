package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFileAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestNew_CreatesDirectories(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, 0)
	require.NoError(t, err)

	for _, dir := range []string{s.UploadsDir, s.FramesDir, s.OutputsDir, s.AssetsDir, s.DataDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, DefaultMaxAge, s.MaxAge)
}

func TestPathsDerivedFromJobID(t *testing.T) {
	s, err := New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	frames := s.FramePaths("job-1", 9)
	require.Len(t, frames, 9)
	assert.Equal(t, filepath.Join(s.FramesDir, "job-1-frame1.png"), frames[0])
	assert.Equal(t, filepath.Join(s.FramesDir, "job-1-frame9.png"), frames[8])
	assert.Equal(t, filepath.Join(s.FramesDir, "job-1-contact.png"), s.SheetPath("job-1"))
	assert.Equal(t, filepath.Join(s.OutputsDir, "job-1.mp4"), s.OutputPath("job-1"))
	assert.Equal(t, filepath.Join(s.UploadsDir, "up.mp4"), s.UploadPath("up", ".MP4"))
	assert.Equal(t, filepath.Join(s.UploadsDir, "up.mov"), s.UploadPath("up", "mov"))
}

func TestSweep_DeletesOnlyExpiredFiles(t *testing.T) {
	s, err := New(t.TempDir(), time.Hour)
	require.NoError(t, err)

	old := filepath.Join(s.OutputsDir, "old.mp4")
	oldAsset := filepath.Join(s.AssetsDir, "old.mp3")
	fresh := filepath.Join(s.FramesDir, "fresh.png")
	writeFileAged(t, old, 2*time.Hour)
	writeFileAged(t, oldAsset, time.Hour+time.Minute)
	writeFileAged(t, fresh, time.Second)

	deleted := s.Sweep(time.Now())
	assert.Equal(t, 2, deleted)

	assert.NoFileExists(t, old)
	assert.NoFileExists(t, oldAsset)
	assert.FileExists(t, fresh)
}

func TestSweep_LeavesSubdirectoriesAndLedger(t *testing.T) {
	s, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)

	sub := filepath.Join(s.UploadsDir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	ledger := s.LedgerPath("counter.csv")
	writeFileAged(t, ledger, 48*time.Hour)

	assert.Equal(t, 0, s.Sweep(time.Now()))
	assert.DirExists(t, sub)
	assert.FileExists(t, ledger)
}

func TestSweep_MissingDirectoryIsIgnored(t *testing.T) {
	s, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(s.FramesDir))

	assert.NotPanics(t, func() { s.Sweep(time.Now()) })
}

func TestStartSweeper_RunsOnInterval(t *testing.T) {
	s, err := New(t.TempDir(), time.Minute)
	require.NoError(t, err)

	old := filepath.Join(s.UploadsDir, "old.mp4")
	writeFileAged(t, old, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartSweeper(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}
