//go:build withcv

package opencv

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/effects"
	"github.com/ivlev/vidstab/internal/motion"
	"github.com/ivlev/vidstab/internal/tracker"
)

func Available() bool {
	return true
}

func New(cfg *config.Config) (*Set, error) {
	set := &Set{
		Tracker:   &Tracker{Params: cfg.Tracker},
		Estimator: &Estimator{Params: cfg.Estimator},
		Warper:    Warper{},
	}
	if cfg.Enhance.Enabled {
		set.Enhancer = &CLAHE{Params: cfg.Enhance}
	} else {
		set.Enhancer = effects.NewChain()
	}
	return set, nil
}

// Tracker runs goodFeaturesToTrack and calcOpticalFlowPyrLK.
type Tracker struct {
	Params config.TrackerParams
}

func (t *Tracker) Track(prev, next *image.Gray) (tracker.Correspondences, error) {
	prevMat, err := gocv.ImageGrayToMatGray(prev)
	if err != nil {
		return tracker.Correspondences{}, fmt.Errorf("prev frame: %w", err)
	}
	defer prevMat.Close()
	nextMat, err := gocv.ImageGrayToMatGray(next)
	if err != nil {
		return tracker.Correspondences{}, fmt.Errorf("next frame: %w", err)
	}
	defer nextMat.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(prevMat, &corners, t.Params.MaxCorners, t.Params.QualityLevel, t.Params.MinDistance)
	if corners.Empty() || corners.Rows() == 0 {
		return tracker.Correspondences{}, nil
	}

	moved := gocv.NewMat()
	defer moved.Close()
	status := gocv.NewMat()
	defer status.Close()
	errs := gocv.NewMat()
	defer errs.Close()

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, t.Params.MaxIterations, t.Params.Epsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(prevMat, nextMat, corners, moved, &status, &errs,
		image.Pt(t.Params.WindowSize, t.Params.WindowSize), t.Params.MaxLevel, criteria, 0, t.Params.MinEigThreshold)

	tracks := make([]tracker.Track, corners.Rows())
	for i := range tracks {
		from := corners.GetVecfAt(i, 0)
		to := moved.GetVecfAt(i, 0)
		tracks[i] = tracker.Track{
			From: tracker.Point{X: float64(from[0]), Y: float64(from[1])},
			To:   tracker.Point{X: float64(to[0]), Y: float64(to[1])},
		}
		if status.GetUCharAt(i, 0) == 1 {
			tracks[i].Status = tracker.Tracked
			tracks[i].Error = float64(errs.GetFloatAt(i, 0))
		}
	}
	return tracker.Keep(tracks), nil
}

// Estimator wraps estimateAffinePartial2D. Failures become identity
// fallbacks exactly as in the native estimator.
type Estimator struct {
	Params config.EstimatorParams
}

func (e *Estimator) Estimate(c tracker.Correspondences) motion.Estimate {
	n := len(c.Prev)
	if len(c.Next) != n || n < max(e.Params.MinPoints, 2) {
		return motion.Estimate{Kind: motion.Fallback, Transform: motion.Identity(), Reason: motion.ErrTooFewPoints, Matches: min(n, len(c.Next))}
	}

	from := gocv.NewPoint2fVectorFromPoints(toPoint2f(c.Prev))
	defer from.Close()
	to := gocv.NewPoint2fVectorFromPoints(toPoint2f(c.Next))
	defer to.Close()

	m := gocv.EstimateAffinePartial2D(from, to)
	defer m.Close()
	if m.Empty() {
		return motion.Estimate{Kind: motion.Fallback, Transform: motion.Identity(), Reason: motion.ErrNoConsensus, Matches: n}
	}

	var t motion.Affine
	for r := 0; r < 2; r++ {
		for col := 0; col < 3; col++ {
			t[r*3+col] = m.GetDoubleAt(r, col)
		}
	}
	if !t.IsFinite() {
		return motion.Estimate{Kind: motion.Fallback, Transform: motion.Identity(), Reason: motion.ErrIllConditioned, Matches: n}
	}
	return motion.Estimate{Kind: motion.Measured, Transform: t, Matches: n, Inliers: n}
}

func toPoint2f(pts []tracker.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}

// Warper wraps warpAffine with linear interpolation and an opaque black border.
type Warper struct{}

func (Warper) Warp(src *image.RGBA, t motion.Affine) *image.RGBA {
	b := src.Bounds()
	fallback := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	in, err := gocv.ImageToMatRGBA(src)
	if err != nil {
		return fallback
	}
	defer in.Close()

	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for r := 0; r < 2; r++ {
		for col := 0; col < 3; col++ {
			m.SetDoubleAt(r, col, t[r*3+col])
		}
	}

	out := gocv.NewMat()
	defer out.Close()
	gocv.WarpAffineWithParams(in, &out, m, image.Pt(b.Dx(), b.Dy()),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{A: 255})

	return toRGBA(out, fallback)
}

// CLAHE equalizes the L channel of the Lab representation with cv::CLAHE.
type CLAHE struct {
	Params config.EnhanceParams
}

func (c *CLAHE) Name() string {
	return fmt.Sprintf("cv-clahe(clip=%.1f, tiles=%dx%d)", c.Params.ClipLimit, c.Params.TilesX, c.Params.TilesY)
}

func (c *CLAHE) Apply(frame *image.RGBA) (*image.RGBA, error) {
	if frame == nil {
		return nil, effects.ErrNilFrame
	}
	in, err := gocv.ImageToMatRGBA(frame)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(in, &bgr, gocv.ColorBGRAToBGR)

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(bgr, &lab, gocv.ColorBGRToLab)

	planes := gocv.Split(lab)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(c.Params.ClipLimit, image.Pt(c.Params.TilesX, c.Params.TilesY))
	defer clahe.Close()
	clahe.Apply(planes[0], &planes[0])

	gocv.Merge(planes, &lab)
	gocv.CvtColor(lab, &bgr, gocv.ColorLabToBGR)

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(bgr, &out, gocv.ColorBGRToBGRA)

	b := frame.Bounds()
	return toRGBA(out, image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))), nil
}

func toRGBA(m gocv.Mat, fallback *image.RGBA) *image.RGBA {
	img, err := m.ToImage()
	if err != nil {
		return fallback
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	return fallback
}
