// Package source decodes input video into RGBA frames.
package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrOpen      = errors.New("cannot open input")
	ErrNoFrames  = errors.New("input has no readable frames")
	ErrFrameSize = errors.New("frame size differs from the stream size")
)

// Info describes the decoded stream. FrameCount is the container's estimate
// and may be zero when unknown.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
}

func (i Info) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.Width, i.Height)
}

// Source yields frames in presentation order. Next returns io.EOF after the
// last frame; Rewind restarts from the first frame. Frames returned by Next
// belong to the caller.
type Source interface {
	Info() Info
	Next(ctx context.Context) (*image.RGBA, error)
	Rewind(ctx context.Context) error
	Close() error
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Open picks a decoder for path: a directory or a single still image is read
// as an image sequence at the given frame rate, anything else goes through
// ffmpeg.
func Open(ctx context.Context, path string, fps float64) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if fi.IsDir() || imageExts[strings.ToLower(filepath.Ext(path))] {
		return NewImageSource(path, fps)
	}
	return NewFFmpegSource(ctx, path)
}
