package tracker

import (
	"fmt"
	"image"

	"github.com/ivlev/vidstab/internal/config"
)

// LKTracker selects Shi-Tomasi corners on the earlier frame and follows them
// into the later frame with pyramidal Lucas-Kanade.
type LKTracker struct {
	Params config.TrackerParams
}

func NewLKTracker(p config.TrackerParams) *LKTracker {
	return &LKTracker{Params: p}
}

// Track returns the correspondences of all successfully tracked features.
func (t *LKTracker) Track(prev, next *image.Gray) (Correspondences, error) {
	if !prev.Bounds().Size().Eq(next.Bounds().Size()) {
		return Correspondences{}, fmt.Errorf("frame size mismatch: %v vs %v", prev.Bounds().Size(), next.Bounds().Size())
	}

	fPrev := FromGray(prev)
	points := SelectFeatures(fPrev, t.Params)
	if len(points) == 0 {
		return Correspondences{}, nil
	}

	prevPyr := NewPyramid(fPrev, t.Params.MaxLevel, t.Params.WindowSize)
	nextPyr := NewPyramid(FromGray(next), t.Params.MaxLevel, t.Params.WindowSize)

	return Keep(TrackPoints(prevPyr, nextPyr, points, t.Params)), nil
}
