package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/framebeat/api/internal/config"
)

var (
	ErrEmptySelection   = errors.New("track selector did not return a track filename")
	ErrInvalidSelection = errors.New("track selector returned an invalid filename")
)

// SelectorExitError is returned when the selector process fails to run or
// exits non-zero.
type SelectorExitError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SelectorExitError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("track selector exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("track selector failed: %v", e.Err)
}

func (e *SelectorExitError) Unwrap() error { return e.Err }

// SelectorClient runs the external track selection program once per job.
// The identity string is passed as the last argument; stdout (trimmed) is
// the chosen file name inside the assets directory.
type SelectorClient struct {
	command string
	args    []string
	workDir string
	timeout time.Duration
}

func NewSelectorClient(cfg *config.SelectorConfig) *SelectorClient {
	return &SelectorClient{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		workDir: cfg.WorkDir,
		timeout: cfg.Timeout,
	}
}

// Select returns the bare file name printed by the selector.
func (c *SelectorClient) Select(ctx context.Context, songArtist string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.args...), songArtist)
	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Dir = c.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitErr := &SelectorExitError{ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitErr.ExitCode = ee.ExitCode()
		}
		return "", exitErr
	}

	name := strings.TrimSpace(stdout.String())
	log.Debug().Str("identity", songArtist).Str("track", name).Msg("track selector answered")
	if err := ValidateTrackName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateTrackName accepts only a bare file name with no directory part.
func ValidateTrackName(name string) error {
	if name == "" {
		return ErrEmptySelection
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidSelection, name)
	}
	return nil
}
