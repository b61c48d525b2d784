// Package trajectory stores the measured frame-to-frame motion of a video and
// smooths it with a clipped moving average.
package trajectory

import "github.com/ivlev/vidstab/internal/motion"

// Sequence is the ordered list of frame-to-frame estimates: entry i describes the
// motion from frame i to frame i+1. It is immutable once built, so it can be read
// from any number of goroutines.
type Sequence struct {
	estimates []motion.Estimate
}

// NewSequence copies the estimates; later changes to the argument are not seen.
func NewSequence(estimates []motion.Estimate) *Sequence {
	return &Sequence{estimates: append([]motion.Estimate(nil), estimates...)}
}

// FromTransforms wraps raw transforms as measured estimates.
func FromTransforms(ts []motion.Affine) *Sequence {
	est := make([]motion.Estimate, len(ts))
	for i, t := range ts {
		est[i] = motion.Estimate{Kind: motion.Measured, Transform: t}
	}
	return &Sequence{estimates: est}
}

func (s *Sequence) Len() int {
	return len(s.estimates)
}

func (s *Sequence) At(i int) motion.Estimate {
	return s.estimates[i]
}

func (s *Sequence) Transform(i int) motion.Affine {
	return s.estimates[i].Transform
}

// Smoothed returns the element-wise mean of the transforms with indices in
// [i-radius, i+radius], clipped to the sequence. i may range over every frame
// index, including the last frame which has no outgoing transform. With no
// transforms at all the identity is returned.
func (s *Sequence) Smoothed(i, radius int) motion.Affine {
	lo := max(0, i-radius)
	hi := min(len(s.estimates)-1, i+radius)
	if lo > hi {
		return motion.Identity()
	}

	var sum motion.Affine
	for k := lo; k <= hi; k++ {
		sum = sum.Add(s.estimates[k].Transform)
	}
	n := float64(hi - lo + 1)
	for k := range sum {
		sum[k] /= n
	}
	return sum
}

// SmoothedAll returns Smoothed(i, radius) for every frame index 0..frames-1.
func (s *Sequence) SmoothedAll(frames, radius int) []motion.Affine {
	out := make([]motion.Affine, frames)
	for i := range out {
		out[i] = s.Smoothed(i, radius)
	}
	return out
}

// Stats counts measured and fallback estimates.
func (s *Sequence) Stats() (measured, fallback int) {
	for _, e := range s.estimates {
		if e.IsFallback() {
			fallback++
		} else {
			measured++
		}
	}
	return measured, fallback
}
