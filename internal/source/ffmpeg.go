package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/vidstab/internal/system"
)

// FFmpegSource decodes any container ffmpeg understands by streaming raw RGBA
// frames from an ffmpeg child process.
type FFmpegSource struct {
	path string
	info Info

	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr bytes.Buffer
	eof    bool
	read   int
}

func NewFFmpegSource(ctx context.Context, path string) (*FFmpegSource, error) {
	info, err := probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	s := &FFmpegSource{path: path, info: info}
	if err := s.start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return s, nil
}

func (s *FFmpegSource) Info() Info {
	return s.info
}

func (s *FFmpegSource) start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-nostdin",
		"-i", s.path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	s.stderr.Reset()
	s.eof = false
	s.read = 0
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.reader = bufio.NewReaderSize(stdout, 4*s.info.Width*s.info.Height)
	return nil
}

// Next reads one frame. A truncated trailing frame is dropped and reported as
// the end of the stream.
func (s *FFmpegSource) Next(ctx context.Context) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.reader == nil {
		return nil, io.EOF
	}

	frame := system.GetImage(s.info.Bounds())
	_, err := io.ReadFull(s.reader, frame.Pix)
	switch {
	case err == nil:
		s.read++
		return frame, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		system.PutImage(frame)
		s.eof = true
		if errors.Is(err, io.ErrUnexpectedEOF) {
			logrus.WithFields(logrus.Fields{
				"function": "FFmpegSource.Next",
				"path":     s.path,
			}).Warn("Dropping truncated final frame")
		}
		if werr := s.stop(); werr != nil {
			if s.read == 0 {
				return nil, werr
			}
			logrus.WithFields(logrus.Fields{
				"function": "FFmpegSource.Next",
				"frames":   s.read,
				"error":    werr.Error(),
			}).Warn("Decoder stopped early, treating as end of stream")
		}
		return nil, io.EOF
	default:
		system.PutImage(frame)
		return nil, fmt.Errorf("read frame: %w", err)
	}
}

func (s *FFmpegSource) Rewind(ctx context.Context) error {
	if err := s.stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "FFmpegSource.Rewind",
			"error":    err.Error(),
		}).Debug("Previous decoder exited with an error")
	}
	return s.start(ctx)
}

func (s *FFmpegSource) Close() error {
	return s.stop()
}

// stop releases the decoder. Stopping a decoder that has not reached the end
// of the stream kills it and is not an error.
func (s *FFmpegSource) stop() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd, s.reader = nil, nil

	if !s.eof && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = s.stdout.Close()

	err := cmd.Wait()
	if err != nil && s.eof {
		return fmt.Errorf("ffmpeg decode error: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}
