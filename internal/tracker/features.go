package tracker

import (
	"math"
	"sort"

	"github.com/ivlev/vidstab/internal/config"
)

// Sobel kernels
var (
	sobelX = [3][3]float32{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	sobelY = [3][3]float32{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

// sobel returns the horizontal and vertical Sobel responses of img.
func sobel(img *FloatImage) (gx, gy *FloatImage) {
	gx = NewFloatImage(img.W, img.H)
	gy = NewFloatImage(img.W, img.H)

	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			var sumX, sumY float32
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					pixel := img.at(x+kx, y+ky)
					sumX += pixel * sobelX[ky+1][kx+1]
					sumY += pixel * sobelY[ky+1][kx+1]
				}
			}
			gx.Pix[y*img.W+x] = sumX
			gy.Pix[y*img.W+x] = sumY
		}
	}
	return gx, gy
}

// Cornerness computes the Shi-Tomasi response: the smaller eigenvalue of the
// gradient structure tensor accumulated over a blockSize x blockSize window.
func Cornerness(img *FloatImage, blockSize int) *FloatImage {
	gx, gy := sobel(img)

	n := img.W * img.H
	xx := make([]float32, n)
	xy := make([]float32, n)
	yy := make([]float32, n)
	for i := 0; i < n; i++ {
		dx, dy := gx.Pix[i], gy.Pix[i]
		xx[i] = dx * dx
		xy[i] = dx * dy
		yy[i] = dy * dy
	}

	half := blockSize / 2
	resp := NewFloatImage(img.W, img.H)
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			var a, b, c float64
			for ky := -half; ky <= blockSize-half-1; ky++ {
				yy0 := clampInt(y+ky, 0, img.H-1)
				for kx := -half; kx <= blockSize-half-1; kx++ {
					i := yy0*img.W + clampInt(x+kx, 0, img.W-1)
					a += float64(xx[i])
					b += float64(xy[i])
					c += float64(yy[i])
				}
			}
			d := (a - c) / 2
			resp.Pix[y*img.W+x] = float32((a+c)/2 - math.Sqrt(d*d+b*b))
		}
	}
	return resp
}

// isLocalMax reports whether the response at (x, y) is not exceeded by any of
// its 8 neighbours (a 3x3 dilation that keeps the pixel unchanged).
func isLocalMax(resp *FloatImage, x, y int) bool {
	v := resp.Pix[y*resp.W+x]
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			if resp.at(x+kx, y+ky) > v {
				return false
			}
		}
	}
	return true
}

type candidate struct {
	x, y  int
	score float32
}

// SelectFeatures picks up to MaxCorners strong corners, strongest first. Corners
// weaker than QualityLevel times the best response are ignored and no two
// selected corners are closer than MinDistance. Corners whose tracking window
// would reach past the image border are never selected.
func SelectFeatures(img *FloatImage, p config.TrackerParams) []Point {
	margin := BorderMargin(p.WindowSize)
	if img.W <= 2*margin || img.H <= 2*margin || p.MaxCorners <= 0 {
		return nil
	}

	resp := Cornerness(img, p.BlockSize)

	var maxVal float32
	for _, v := range resp.Pix {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		return nil
	}
	threshold := float32(p.QualityLevel) * maxVal

	var candidates []candidate
	for y := margin; y < img.H-margin; y++ {
		for x := margin; x < img.W-margin; x++ {
			v := resp.Pix[y*img.W+x]
			if v > threshold && isLocalMax(resp, x, y) {
				candidates = append(candidates, candidate{x: x, y: y, score: v})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	return spaceOut(candidates, p.MinDistance, p.MaxCorners)
}

// spaceOut greedily accepts candidates in order, rejecting any that fall within
// minDist of an already accepted one. A coarse grid keeps the lookups local.
func spaceOut(candidates []candidate, minDist float64, maxCorners int) []Point {
	points := make([]Point, 0, min(len(candidates), maxCorners))
	if minDist < 1 {
		for _, c := range candidates {
			if len(points) == maxCorners {
				break
			}
			points = append(points, Point{X: float64(c.x), Y: float64(c.y)})
		}
		return points
	}

	cell := int(math.Ceil(minDist))
	grid := make(map[[2]int][]Point)
	minDist2 := minDist * minDist

	for _, c := range candidates {
		if len(points) == maxCorners {
			break
		}
		p := Point{X: float64(c.x), Y: float64(c.y)}
		gx, gy := c.x/cell, c.y/cell

		ok := true
	search:
		for cy := gy - 1; cy <= gy+1; cy++ {
			for cx := gx - 1; cx <= gx+1; cx++ {
				for _, q := range grid[[2]int{cx, cy}] {
					dx, dy := p.X-q.X, p.Y-q.Y
					if dx*dx+dy*dy < minDist2 {
						ok = false
						break search
					}
				}
			}
		}
		if !ok {
			continue
		}

		grid[[2]int{gx, gy}] = append(grid[[2]int{gx, gy}], p)
		points = append(points, p)
	}
	return points
}

// BorderMargin is the distance from the image edge inside which a feature's
// tracking window would sample replicated border pixels.
func BorderMargin(windowSize int) int {
	return max(windowSize/2+1, 1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
