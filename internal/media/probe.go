package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidDuration is returned when a video has no finite positive duration.
var ErrInvalidDuration = errors.New("could not read video duration")

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober reads container metadata with ffprobe.
type Prober struct {
	Binary string
	Runner Runner
}

func NewProber(binary string, runner Runner) *Prober {
	return &Prober{Binary: binaryOr(binary, "ffprobe"), Runner: runner}
}

// Duration returns the container duration in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("ffprobe: empty path")
	}

	output, err := p.Runner.Run(ctx, p.Binary, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return 0, fmt.Errorf("probe duration: parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil {
		return 0, ErrInvalidDuration
	}
	if err := ValidateDuration(duration); err != nil {
		return 0, err
	}
	return duration, nil
}

// ValidateDuration rejects non-finite and non-positive durations.
func ValidateDuration(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return ErrInvalidDuration
	}
	return nil
}
