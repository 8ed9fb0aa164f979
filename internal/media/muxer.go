package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Muxer lays a selected audio track under the source video's picture.
type Muxer struct {
	FFmpeg string
	Runner Runner
}

func NewMuxer(ffmpeg string, runner Runner) *Muxer {
	return &Muxer{FFmpeg: binaryOr(ffmpeg, "ffmpeg"), Runner: runner}
}

// SeekSeconds is the whole-second audio offset actually applied.
func SeekSeconds(start float64) int {
	if math.IsNaN(start) || math.IsInf(start, 0) || start < 0 {
		return 0
	}
	return int(math.Floor(start))
}

// MuxArgs builds the ffmpeg argument list: the video stream is copied as-is,
// only the audio is transcoded, the output stops with the shorter stream and
// the moov atom is moved to the front for progressive playback.
func MuxArgs(videoPath, audioPath string, start float64, outPath string) []string {
	return []string{
		"-y",
		"-ss", strconv.Itoa(SeekSeconds(start)),
		"-i", audioPath,
		"-i", videoPath,
		"-map", "1:v:0",
		"-map", "0:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	}
}

func (m *Muxer) Mux(ctx context.Context, videoPath, audioPath string, start float64, outPath string) (string, error) {
	if _, err := m.Runner.Run(ctx, m.FFmpeg, MuxArgs(videoPath, audioPath, start, outPath)...); err != nil {
		return "", fmt.Errorf("mux audio onto video: %w", err)
	}
	// A seek past the end of the audio still exits 0 with "Output file is empty".
	info, err := os.Stat(outPath)
	if err != nil {
		return "", fmt.Errorf("mux audio onto video: output not written: %w", err)
	}
	if info.Size() == 0 {
		return "", errors.New("mux audio onto video: output not written: empty file")
	}
	return outPath, nil
}
