// Package engine runs the two stabilization passes over a frame source.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/motion"
	"github.com/ivlev/vidstab/internal/report"
	"github.com/ivlev/vidstab/internal/source"
	"github.com/ivlev/vidstab/internal/system"
	"github.com/ivlev/vidstab/internal/tracker"
	"github.com/ivlev/vidstab/internal/trajectory"
	"github.com/ivlev/vidstab/internal/video"
)

// Result summarises a finished run.
type Result struct {
	RunID       string
	Frames      int
	Written     int
	Measured    int
	Fallback    int
	AnalyzeTime time.Duration
	RenderTime  time.Duration
	Sequence    *trajectory.Sequence
}

// Stabilizer measures camera motion over the whole source (pass 1) and then
// re-reads it, writing every frame compensated by the smoothed motion and
// enhanced (pass 2).
type Stabilizer struct {
	Config   *config.Config
	Source   source.Source
	Sink     video.Sink
	Backend  *Backend
	Progress Progress

	runID string
	log   *logrus.Entry
}

func NewStabilizer(cfg *config.Config, src source.Source, sink video.Sink, backend *Backend) *Stabilizer {
	id := uuid.NewString()
	return &Stabilizer{
		Config:   cfg,
		Source:   src,
		Sink:     sink,
		Backend:  backend,
		Progress: nopProgress{},
		runID:    id,
		log: logrus.WithFields(logrus.Fields{
			"run":     id,
			"backend": backend.Name,
		}),
	}
}

func (s *Stabilizer) RunID() string {
	return s.runID
}

func (s *Stabilizer) workers() int {
	return max(s.Config.Workers, 1)
}

// Run performs both passes. The sink is not closed.
func (s *Stabilizer) Run(ctx context.Context) (*Result, error) {
	info := s.Source.Info()
	s.log.WithFields(logrus.Fields{
		"function": "Run",
		"input":    s.Config.InputPath,
		"size":     fmt.Sprintf("%dx%d", info.Width, info.Height),
		"fps":      info.FPS,
		"frames":   info.FrameCount,
		"radius":   s.Config.Radius,
	}).Info("Starting stabilization")

	res := &Result{RunID: s.runID}

	start := time.Now()
	seq, frames, err := s.Analyze(ctx)
	if err != nil {
		return nil, err
	}
	res.AnalyzeTime = time.Since(start)
	res.Frames = frames
	res.Sequence = seq
	res.Measured, res.Fallback = seq.Stats()

	if s.Config.ReportPath != "" {
		if err := s.writeReport(seq, frames); err != nil {
			return nil, err
		}
	}

	start = time.Now()
	written, err := s.Render(ctx, seq)
	if err != nil {
		return nil, err
	}
	res.RenderTime = time.Since(start)
	res.Written = written

	if written != frames {
		s.log.WithFields(logrus.Fields{
			"function": "Run",
			"analyzed": frames,
			"written":  written,
		}).Warn("Second pass read a different number of frames")
	}
	return res, nil
}

// Analyze is pass 1: it decodes every frame, tracks features between each
// consecutive pair and fits the frame-to-frame motion. Pairs are processed
// concurrently; the returned sequence is complete and in frame order.
func (s *Stabilizer) Analyze(ctx context.Context) (*trajectory.Sequence, int, error) {
	log := s.log.WithField("function", "Analyze")
	s.Progress.Start("analyze", s.Source.Info().FrameCount)
	defer s.Progress.Finish()

	first, err := s.Source.Next(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", source.ErrNoFrames, err)
	}
	prev := toGray(first)
	s.Progress.Add(1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	var slots []*motion.Estimate
	frames := 1
	for {
		frame, err := s.Source.Next(gctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A failed worker cancels gctx, which surfaces here first.
			if werr := g.Wait(); werr != nil {
				return nil, 0, werr
			}
			return nil, 0, fmt.Errorf("decode frame %d: %w", frames, err)
		}
		next := toGray(frame)

		slot := new(motion.Estimate)
		slots = append(slots, slot)
		pair := frames - 1
		a, b := prev, next
		g.Go(func() error {
			corr, err := s.Backend.Tracker.Track(a, b)
			if err != nil {
				return fmt.Errorf("track frames %d-%d: %w", pair, pair+1, err)
			}
			*slot = s.Backend.Estimator.Estimate(corr)
			if slot.IsFallback() {
				log.WithFields(logrus.Fields{
					"frame":   pair,
					"matches": slot.Matches,
					"reason":  slot.Reason,
				}).Debug("Motion estimate fell back to identity")
			}
			s.Progress.Add(1)
			return nil
		})

		prev = next
		frames++
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	estimates := make([]motion.Estimate, len(slots))
	for i, e := range slots {
		estimates[i] = *e
	}
	seq := trajectory.NewSequence(estimates)

	measured, fallback := seq.Stats()
	log.WithFields(logrus.Fields{
		"frames":   frames,
		"measured": measured,
		"fallback": fallback,
	}).Info("Motion analysis complete")
	return seq, frames, nil
}

// Render is pass 2: it rewinds the source, compensates and enhances every
// frame and writes the results to the sink in presentation order.
func (s *Stabilizer) Render(ctx context.Context, seq *trajectory.Sequence) (int, error) {
	log := s.log.WithField("function", "Render")
	if err := s.Source.Rewind(ctx); err != nil {
		return 0, fmt.Errorf("rewind source: %w", err)
	}
	s.Progress.Start("render", s.Source.Info().FrameCount)
	defer s.Progress.Finish()

	radius := s.Config.Radius
	g, gctx := errgroup.WithContext(ctx)

	// Each decoded frame gets its own result channel; queueing those channels
	// in decode order lets workers finish out of order while the writer still
	// emits frames in order. The queue depth bounds the frames in flight.
	pending := make(chan chan *image.RGBA, s.workers())

	g.Go(func() error {
		defer close(pending)
		for i := 0; ; i++ {
			frame, err := s.Source.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("decode frame %d: %w", i, err)
			}

			out := make(chan *image.RGBA, 1)
			select {
			case pending <- out:
			case <-gctx.Done():
				system.PutImage(frame)
				return gctx.Err()
			}

			t := seq.Smoothed(i, radius)
			idx := i
			g.Go(func() error {
				img, err := s.compensate(frame, t)
				if err != nil {
					return fmt.Errorf("frame %d: %w", idx, err)
				}
				out <- img
				return nil
			})
		}
	})

	written := 0
	g.Go(func() error {
		for out := range pending {
			var img *image.RGBA
			select {
			case img = <-out:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := s.Sink.WriteFrame(gctx, img); err != nil {
				return fmt.Errorf("write frame %d: %w", written, err)
			}
			system.PutImage(img)
			written++
			s.Progress.Add(1)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return written, err
	}
	log.WithField("frames", written).Info("Rendering complete")
	return written, nil
}

// compensate warps one frame by t and runs the enhancer. The input frame is
// returned to the buffer pool.
func (s *Stabilizer) compensate(frame *image.RGBA, t motion.Affine) (*image.RGBA, error) {
	warped := s.Backend.Warper.Warp(frame, t)
	system.PutImage(frame)

	out, err := s.Backend.Enhancer.Apply(warped)
	if err != nil {
		return nil, err
	}
	if out != warped {
		system.PutImage(warped)
	}
	return out, nil
}

func (s *Stabilizer) writeReport(seq *trajectory.Sequence, frames int) error {
	info := s.Source.Info()
	r := report.Build(report.Meta{
		RunID:   s.runID,
		Input:   s.Config.InputPath,
		Output:  s.Config.OutputPath,
		Backend: s.Backend.Name,
		Width:   info.Width,
		Height:  info.Height,
		FPS:     info.FPS,
	}, seq, frames, s.Config.Radius)

	if err := report.Write(r, s.Config.ReportPath); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"function": "writeReport",
		"path":     s.Config.ReportPath,
	}).Info("Run report written")
	return nil
}

// toGray converts a decoded frame and hands its buffer back to the pool.
func toGray(frame *image.RGBA) *image.Gray {
	g := tracker.ToGray(frame)
	system.PutImage(frame)
	return g
}
