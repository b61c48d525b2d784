// Package opencv provides the stabilizer components on top of OpenCV via gocv.
// It is compiled only with the withcv build tag; otherwise New reports
// ErrUnavailable.
package opencv

import (
	"errors"

	"github.com/ivlev/vidstab/internal/effects"
	"github.com/ivlev/vidstab/internal/motion"
	"github.com/ivlev/vidstab/internal/tracker"
	"github.com/ivlev/vidstab/internal/warp"
)

var ErrUnavailable = errors.New("opencv support not compiled in (build with -tags withcv)")

// Set groups the OpenCV implementations of every pipeline stage.
type Set struct {
	Tracker   tracker.Tracker
	Estimator motion.Estimator
	Warper    warp.Warper
	Enhancer  effects.Effect
}
