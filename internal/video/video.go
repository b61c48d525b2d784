// Package video writes processed frames to an output file or directory.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

var (
	ErrSinkSize   = errors.New("frame size differs from the output size")
	ErrSinkClosed = errors.New("sink is closed")
)

// Sink consumes frames in presentation order.
type Sink interface {
	WriteFrame(ctx context.Context, frame *image.RGBA) error
	Close() error
}

// Format describes the stream the sink is created for.
type Format struct {
	Width   int
	Height  int
	FPS     float64
	Codec   string
	Quality int
}

// Open creates a PNG sequence sink for a directory (existing or without a file
// extension) and an ffmpeg sink otherwise.
func Open(ctx context.Context, path string, f Format) (Sink, error) {
	if fi, err := os.Stat(path); (err == nil && fi.IsDir()) || filepath.Ext(path) == "" {
		return NewPNGSink(path, f)
	}
	return NewFFmpegSink(ctx, path, f)
}

// FFmpegSink pipes raw RGBA frames into a single ffmpeg encoder process.
type FFmpegSink struct {
	format Format
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	mu     sync.Mutex
	closed bool
}

func NewFFmpegSink(ctx context.Context, path string, f Format) (*FFmpegSink, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", f.Width, f.Height)
	}
	if f.FPS <= 0 {
		f.FPS = 30
	}
	if f.Codec == "" {
		f.Codec = "mpeg4"
	}

	s := &FFmpegSink{format: f}
	s.cmd = exec.CommandContext(ctx, "ffmpeg", buildFFmpegArgs(path, f)...)
	s.cmd.Stderr = &s.stderr

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	s.stdin = stdin

	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return s, nil
}

func buildFFmpegArgs(path string, f Format) []string {
	args := []string{
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", f.Width, f.Height),
		"-framerate", strconv.FormatFloat(f.FPS, 'f', -1, 64),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		"-c:v", f.Codec,
	}

	// Quality depends on the encoder; zero keeps the encoder default.
	if f.Quality > 0 {
		switch f.Codec {
		case "h264_videotoolbox":
			args = append(args, "-b:v", fmt.Sprintf("%dk", f.Quality*100))
		case "h264_nvenc":
			args = append(args, "-cq", strconv.Itoa(f.Quality))
		case "libx264":
			args = append(args, "-crf", strconv.Itoa(f.Quality), "-preset", "medium")
		default: // mpeg4 and friends
			args = append(args, "-q:v", strconv.Itoa(f.Quality))
		}
	}

	return append(args, path)
}

func (s *FFmpegSink) WriteFrame(ctx context.Context, frame *image.RGBA) error {
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
	if err := writeRawRGBA(s.stdin, frame); err != nil {
		return fmt.Errorf("write raw error: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

// Close flushes the encoder and waits for it to finish the container.
func (s *FFmpegSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

// writeRawRGBA writes tightly packed rows, repacking sub-images whose stride
// is wider than the frame.
func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	if img.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		packed := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(packed, packed.Bounds(), img, bounds.Min, draw.Src)
		img = packed
	}
	_, err := w.Write(img.Pix)
	return err
}

func checkSize(frame *image.RGBA, f Format) error {
	if frame == nil {
		return errors.New("nil frame")
	}
	b := frame.Bounds()
	if b.Dx() != f.Width || b.Dy() != f.Height {
		return fmt.Errorf("%w: %dx%d, want %dx%d", ErrSinkSize, b.Dx(), b.Dy(), f.Width, f.Height)
	}
	return nil
}
