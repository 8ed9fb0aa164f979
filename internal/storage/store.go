// Package storage manages the working directories shared by all pipeline
// jobs and the retention sweep that keeps them bounded.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/metrics"
)

const DefaultMaxAge = time.Hour

// Store owns the uploads, frames, outputs and assets directories plus the
// data directory holding the usage ledger. Every job-scoped path is derived
// from the job identifier so concurrent jobs never collide.
type Store struct {
	UploadsDir string
	FramesDir  string
	OutputsDir string
	AssetsDir  string
	DataDir    string
	MaxAge     time.Duration
}

// New lays out the directories under root and creates any that are missing.
func New(root string, maxAge time.Duration) (*Store, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s := &Store{
		UploadsDir: filepath.Join(root, "uploads"),
		FramesDir:  filepath.Join(root, "frames"),
		OutputsDir: filepath.Join(root, "outputs"),
		AssetsDir:  filepath.Join(root, "assets"),
		DataDir:    filepath.Join(root, "data"),
		MaxAge:     maxAge,
	}
	for _, dir := range []string{s.UploadsDir, s.FramesDir, s.OutputsDir, s.AssetsDir, s.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// UploadPath returns where an upload with the given id and extension is stored.
func (s *Store) UploadPath(id, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(s.UploadsDir, id+strings.ToLower(ext))
}

// FramePaths returns n ordered still-frame paths for a job.
func (s *Store) FramePaths(jobID string, n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(s.FramesDir, fmt.Sprintf("%s-frame%d.png", jobID, i+1))
	}
	return paths
}

func (s *Store) SheetPath(jobID string) string {
	return filepath.Join(s.FramesDir, jobID+"-contact.png")
}

func (s *Store) OutputPath(jobID string) string {
	return filepath.Join(s.OutputsDir, jobID+".mp4")
}

// AssetPath resolves a track filename inside the assets directory.
func (s *Store) AssetPath(name string) string {
	return filepath.Join(s.AssetsDir, name)
}

func (s *Store) LedgerPath(name string) string {
	return filepath.Join(s.DataDir, name)
}

// Sweep deletes files directly under the working directories whose
// modification time is strictly older than MaxAge. It is best-effort: files
// that cannot be inspected or removed are skipped. Returns the number deleted.
func (s *Store) Sweep(now time.Time) int {
	deleted := 0
	for _, dir := range []string{s.UploadsDir, s.FramesDir, s.OutputsDir, s.AssetsDir} {
		deleted += sweepDir(dir, now, s.MaxAge)
	}
	if deleted > 0 {
		metrics.SweptFiles.Add(float64(deleted))
		log.Debug().Int("deleted", deleted).Msg("retention sweep removed files")
	}
	return deleted
}

func sweepDir(dir string, now time.Time, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(p); err != nil {
			log.Debug().Err(err).Str("path", p).Msg("sweep skipped file")
			continue
		}
		log.Debug().Str("path", p).Msg("deleted old file")
		deleted++
	}
	return deleted
}

// StartSweeper runs Sweep every interval until ctx is done. It never waits on
// job processing.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Sweep(now)
			}
		}
	}()
}
