package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// endMargin keeps the last sample away from the final (often black) frame.
const endMargin = 0.1

// Timestamps returns n sample points spread evenly inside the video:
// clamp(duration*i/(n+1), 0, duration-0.1) for i in 1..n.
func Timestamps(duration float64, n int) ([]float64, error) {
	if err := ValidateDuration(duration); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}

	times := make([]float64, n)
	for i := range times {
		t := duration * float64(i+1) / float64(n+1)
		times[i] = math.Max(0, math.Min(duration-endMargin, t))
	}
	return times, nil
}

// FrameSampler extracts single still frames with ffmpeg.
type FrameSampler struct {
	FFmpeg string
	Runner Runner
}

func NewFrameSampler(ffmpeg string, runner Runner) *FrameSampler {
	return &FrameSampler{FFmpeg: binaryOr(ffmpeg, "ffmpeg"), Runner: runner}
}

// Sample writes one frame per output path, in order, one extraction at a
// time. The first failed extraction aborts the whole sample.
func (s *FrameSampler) Sample(ctx context.Context, videoPath string, duration float64, outPaths []string) ([]string, error) {
	if len(outPaths) == 0 {
		return nil, errors.New("sample: no output paths")
	}
	times, err := Timestamps(duration, len(outPaths))
	if err != nil {
		return nil, err
	}

	for i, ts := range times {
		if err := s.extractAt(ctx, videoPath, ts, outPaths[i]); err != nil {
			return nil, fmt.Errorf("extract frame %d at %.3fs: %w", i+1, ts, err)
		}
	}

	log.Debug().Str("video", videoPath).Int("frames", len(outPaths)).Msg("frames sampled")
	return append([]string(nil), outPaths...), nil
}

func (s *FrameSampler) extractAt(ctx context.Context, videoPath string, ts float64, outPath string) error {
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		outPath,
	}
	if _, err := s.Runner.Run(ctx, s.FFmpeg, args...); err != nil {
		return err
	}
	// ffmpeg exits 0 without writing anything when the seek lands past the last frame.
	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("frame not written: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("frame not written: empty file")
	}
	return nil
}
