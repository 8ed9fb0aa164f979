package media

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Contact sheet geometry. SheetFrames must match the sampler's frame count.
const (
	SheetCols   = 3
	SheetRows   = 3
	SheetFrames = SheetCols * SheetRows
	CellWidth   = 640
	CellHeight  = 360
	SheetWidth  = SheetCols * CellWidth
	SheetHeight = SheetRows * CellHeight
)

var ErrSheetFrameCount = fmt.Errorf("contact sheet requires exactly %d frames", SheetFrames)

// SheetComposer tiles sampled frames into a single grid image.
type SheetComposer struct{}

// Compose fills every cell with a centre-cropped frame (never letterboxed),
// places them row-major and writes the sheet to outPath. The output format
// follows the extension of outPath.
func (SheetComposer) Compose(frames []string, outPath string) (string, error) {
	if len(frames) != SheetFrames {
		return "", fmt.Errorf("%w, got %d", ErrSheetFrameCount, len(frames))
	}
	if outPath == "" {
		return "", errors.New("compose: empty output path")
	}

	canvas := imaging.New(SheetWidth, SheetHeight, color.Black)
	for i, framePath := range frames {
		img, err := imaging.Open(framePath)
		if err != nil {
			return "", fmt.Errorf("open frame %d: %w", i+1, err)
		}
		cell := imaging.Fill(img, CellWidth, CellHeight, imaging.Center, imaging.Lanczos)
		canvas = imaging.Paste(canvas, cell, cellOrigin(i))
	}

	if err := imaging.Save(canvas, outPath); err != nil {
		return "", fmt.Errorf("save contact sheet: %w", err)
	}
	return outPath, nil
}

func cellOrigin(i int) image.Point {
	return image.Pt((i%SheetCols)*CellWidth, (i/SheetCols)*CellHeight)
}
