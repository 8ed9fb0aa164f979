// Package mediatest provides a scripted stand-in for ffmpeg and ffprobe so
// pipeline code can be exercised without the real tools installed.
package mediatest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Call records one invocation of the fake runner.
type Call struct {
	Name string
	Args []string
}

// Runner fakes ffprobe (returns Duration as JSON) and ffmpeg (writes a small
// PNG for frame extractions and a placeholder file for any other output).
type Runner struct {
	Duration    string
	FrameWidth  int
	FrameHeight int

	// FailOn makes the call whose output path contains the substring fail.
	FailOn string

	mu    sync.Mutex
	calls []Call
}

func NewRunner(duration string) *Runner {
	return &Runner{Duration: duration, FrameWidth: 320, FrameHeight: 240}
}

func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the calls whose binary base name matches name.
func (r *Runner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if filepath.Base(c.Name) == name {
			out = append(out, c)
		}
	}
	return out
}

func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if strings.Contains(filepath.Base(name), "ffprobe") {
		return []byte(fmt.Sprintf(`{"format":{"filename":"in","duration":%q}}`, r.Duration)), nil
	}

	out := args[len(args)-1]
	if r.FailOn != "" && strings.Contains(out, r.FailOn) {
		return []byte("simulated failure"), fmt.Errorf("%s: exit status 1: simulated failure", filepath.Base(name))
	}
	if strings.EqualFold(filepath.Ext(out), ".png") {
		return nil, WritePNG(out, r.FrameWidth, r.FrameHeight)
	}
	return nil, os.WriteFile(out, []byte("muxed"), 0o644)
}

// WritePNG writes a solid w x h image to path.
func WritePNG(path string, w, h int) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 200, G: 80, B: 40, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	return f.Close()
}
