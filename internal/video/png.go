package video

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
)

// PNGSink stores every frame as frame_NNNNNN.png inside a directory.
type PNGSink struct {
	dir     string
	format  Format
	encoder png.Encoder

	mu     sync.Mutex
	next   int
	closed bool
}

func NewPNGSink(dir string, f Format) (*PNGSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &PNGSink{
		dir:     dir,
		format:  f,
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
	}, nil
}

func (s *PNGSink) WriteFrame(ctx context.Context, frame *image.RGBA) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkSize(frame, s.format); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.png", s.next))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.encoder.Encode(f, frame); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.next++
	return nil
}

// Written returns the number of frames stored so far.
func (s *PNGSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *PNGSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
