package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/ivlev/vidstab/internal/system"
)

// ImageSource plays a directory of still images, sorted by name, as a video.
type ImageSource struct {
	paths []string
	info  Info
	next  int
}

func NewImageSource(path string, fps float64) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrNoFrames, path)
	}

	w, h, err := dimensions(paths[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoFrames, err)
	}

	return &ImageSource{
		paths: paths,
		info:  Info{Width: w, Height: h, FPS: fps, FrameCount: len(paths)},
	}, nil
}

func (s *ImageSource) Info() Info {
	return s.info
}

func (s *ImageSource) Next(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.paths) {
		return nil, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	img, err := decode(path)
	if err != nil {
		if s.next == 1 {
			return nil, err
		}
		// An unreadable frame ends the sequence, as a decoder failure does for
		// FFmpegSource.
		logrus.WithFields(logrus.Fields{
			"function": "ImageSource.Next",
			"path":     path,
			"frames":   s.next - 1,
			"error":    err.Error(),
		}).Warn("Undecodable frame, treating as end of stream")
		s.next = len(s.paths)
		return nil, io.EOF
	}
	b := img.Bounds()
	if b.Dx() != s.info.Width || b.Dy() != s.info.Height {
		return nil, fmt.Errorf("%s: %w: %dx%d, want %dx%d", path, ErrFrameSize, b.Dx(), b.Dy(), s.info.Width, s.info.Height)
	}

	frame := system.GetImage(s.info.Bounds())
	draw.Draw(frame, frame.Bounds(), img, b.Min, draw.Src)
	return frame, nil
}

func (s *ImageSource) Rewind(ctx context.Context) error {
	s.next = 0
	return ctx.Err()
}

func (s *ImageSource) Close() error {
	return nil
}

func dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
