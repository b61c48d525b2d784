package tracker

import (
	"math"

	"github.com/ivlev/vidstab/internal/config"
)

// TrackPoints follows every point of prev into next with the pyramidal
// Lucas-Kanade method. Both pyramids must have been built from images of the
// same size with the same parameters.
func TrackPoints(prev, next *Pyramid, points []Point, p config.TrackerParams) []Track {
	tracks := make([]Track, len(points))
	for i, pt := range points {
		tracks[i] = trackPoint(prev, next, pt, p)
	}
	return tracks
}

func trackPoint(prev, next *Pyramid, pt Point, p config.TrackerParams) Track {
	half := p.WindowSize / 2
	area := float64(p.WindowSize * p.WindowSize)
	n := p.WindowSize * p.WindowSize

	ival := make([]float32, n)
	ix := make([]float32, n)
	iy := make([]float32, n)

	lost := Track{From: pt, To: pt, Status: Lost}

	top := min(prev.Top(), next.Top())
	var gx, gy float64
	for level := top; level >= 0; level-- {
		scale := math.Ldexp(1, -level)
		px, py := pt.X*scale, pt.Y*scale

		I := prev.Levels[level]
		J := next.Levels[level]
		dIx, dIy := prev.DX[level], prev.DY[level]

		// Gradient matrix over the window around the feature in prev.
		var gxx, gxy, gyy float64
		k := 0
		for wy := -half; wy <= half; wy++ {
			for wx := -half; wx <= half; wx++ {
				sx, sy := px+float64(wx), py+float64(wy)
				ival[k] = I.Sample(sx, sy)
				ix[k] = dIx.Sample(sx, sy)
				iy[k] = dIy.Sample(sx, sy)
				gxx += float64(ix[k] * ix[k])
				gxy += float64(ix[k] * iy[k])
				gyy += float64(iy[k] * iy[k])
				k++
			}
		}

		minEig := (gxx + gyy - math.Sqrt((gxx-gyy)*(gxx-gyy)+4*gxy*gxy)) / (2 * area)
		det := gxx*gyy - gxy*gxy
		if minEig < p.MinEigThreshold || det < 1e-12 {
			return lost
		}

		var vx, vy float64
		for iter := 0; iter < p.MaxIterations; iter++ {
			qx, qy := px+gx+vx, py+gy+vy
			if qx < -float64(half) || qy < -float64(half) ||
				qx >= float64(J.W+half) || qy >= float64(J.H+half) {
				return lost
			}

			var bx, by float64
			k = 0
			for wy := -half; wy <= half; wy++ {
				for wx := -half; wx <= half; wx++ {
					diff := float64(ival[k] - J.Sample(qx+float64(wx), qy+float64(wy)))
					bx += diff * float64(ix[k])
					by += diff * float64(iy[k])
					k++
				}
			}

			dx := (gyy*bx - gxy*by) / det
			dy := (gxx*by - gxy*bx) / det
			vx += dx
			vy += dy
			if dx*dx+dy*dy <= p.Epsilon*p.Epsilon {
				break
			}
		}

		gx += vx
		gy += vy
		if level > 0 {
			gx *= 2
			gy *= 2
		}
	}

	// The final window must lie inside the frame, otherwise clamped border
	// samples bias the displacement.
	to := Point{X: pt.X + gx, Y: pt.Y + gy}
	J := next.Levels[0]
	if math.IsNaN(to.X) || math.IsNaN(to.Y) || !windowInside(J, to, half) {
		return lost
	}

	return Track{
		From:   pt,
		To:     to,
		Status: Tracked,
		Error:  residual(prev.Levels[0], J, pt, to, half),
	}
}

func windowInside(img *FloatImage, p Point, half int) bool {
	h := float64(half)
	return p.X-h >= 0 && p.Y-h >= 0 && p.X+h <= float64(img.W-1) && p.Y+h <= float64(img.H-1)
}

// residual is the mean absolute intensity difference between the windows
// around from in I and to in J.
func residual(I, J *FloatImage, from, to Point, half int) float64 {
	var sum float64
	n := 0
	for wy := -half; wy <= half; wy++ {
		for wx := -half; wx <= half; wx++ {
			a := I.Sample(from.X+float64(wx), from.Y+float64(wy))
			b := J.Sample(to.X+float64(wx), to.Y+float64(wy))
			sum += math.Abs(float64(a - b))
			n++
		}
	}
	return sum / float64(n)
}
