// Package report records what the stabilizer measured and applied, frame by
// frame, as a YAML document for offline inspection.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/vidstab/internal/motion"
	"github.com/ivlev/vidstab/internal/trajectory"
)

const Version = "1.0"

// Report is a complete run description.
type Report struct {
	Version   string    `yaml:"version"`
	RunID     string    `yaml:"run_id"`
	CreatedAt time.Time `yaml:"created_at"`
	Input     string    `yaml:"input"`
	Output    string    `yaml:"output"`
	Backend   string    `yaml:"backend"`
	Radius    int       `yaml:"radius"`
	Width     int       `yaml:"width"`
	Height    int       `yaml:"height"`
	FPS       float64   `yaml:"fps"`
	Summary   Summary   `yaml:"summary"`
	Frames    []Frame   `yaml:"frames"`
}

type Summary struct {
	Frames   int `yaml:"frames"`
	Measured int `yaml:"measured"`
	Fallback int `yaml:"fallback"`
}

// Frame describes one frame index. The raw estimate fields are empty for the
// final frame, which has no successor.
type Frame struct {
	Index    int         `yaml:"index"`
	Raw      *[6]float64 `yaml:"raw,omitempty,flow"`
	Kind     string      `yaml:"kind,omitempty"`
	Reason   string      `yaml:"reason,omitempty"`
	Matches  int         `yaml:"matches,omitempty"`
	Inliers  int         `yaml:"inliers,omitempty"`
	Smoothed [6]float64  `yaml:"smoothed,flow"`
}

// Meta is the run context recorded alongside the trajectory.
type Meta struct {
	RunID   string
	Input   string
	Output  string
	Backend string
	Width   int
	Height  int
	FPS     float64
}

// Build describes frames 0..frames-1 of a run whose measured motion is seq.
func Build(meta Meta, seq *trajectory.Sequence, frames, radius int) *Report {
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	measured, fallback := seq.Stats()

	r := &Report{
		Version:   Version,
		RunID:     meta.RunID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Input:     meta.Input,
		Output:    meta.Output,
		Backend:   meta.Backend,
		Radius:    radius,
		Width:     meta.Width,
		Height:    meta.Height,
		FPS:       meta.FPS,
		Summary:   Summary{Frames: frames, Measured: measured, Fallback: fallback},
		Frames:    make([]Frame, frames),
	}

	smoothed := seq.SmoothedAll(frames, radius)
	for i := range r.Frames {
		f := Frame{Index: i, Smoothed: [6]float64(smoothed[i])}
		if i < seq.Len() {
			est := seq.At(i)
			raw := [6]float64(est.Transform)
			f.Raw = &raw
			f.Kind = est.Kind.String()
			f.Matches = est.Matches
			f.Inliers = est.Inliers
			if est.Reason != nil {
				f.Reason = est.Reason.Error()
			}
		}
		r.Frames[i] = f
	}
	return r
}

// SmoothedTransform returns the transform applied to frame i.
func (f Frame) SmoothedTransform() motion.Affine {
	return motion.Affine(f.Smoothed)
}
