package motion

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/tracker"
)

// RANSACEstimator fits a partial affine transform (rotation, uniform scale and
// translation) that tolerates a fraction of wrong correspondences. Hypotheses
// come from random point pairs; the best consensus set is refit by least squares.
//
// It holds no mutable state and is safe for concurrent use.
type RANSACEstimator struct {
	Params config.EstimatorParams
}

func NewRANSACEstimator(p config.EstimatorParams) *RANSACEstimator {
	return &RANSACEstimator{Params: p}
}

// Estimate never fails: whenever no reliable model can be fitted it returns the
// identity transform marked as a Fallback.
func (e *RANSACEstimator) Estimate(c tracker.Correspondences) Estimate {
	n := len(c.Prev)
	minPoints := max(e.Params.MinPoints, 2)
	if len(c.Next) != n || n < minPoints {
		return fallback(ErrTooFewPoints, min(n, len(c.Next)))
	}
	if degenerate(c.Prev) {
		return fallback(ErrDegenerate, n)
	}

	thr2 := e.Params.ReprojThreshold * e.Params.ReprojThreshold
	rng := rand.New(rand.NewPCG(e.Params.Seed, uint64(n)))

	var best Affine
	bestMask := make([]bool, n)
	mask := make([]bool, n)
	bestCount := 0

	iters := e.Params.MaxIterations
	for it := 0; it < iters; it++ {
		i := rng.IntN(n)
		j := rng.IntN(n - 1)
		if j >= i {
			j++
		}
		h, ok := fromPair(c.Prev[i], c.Prev[j], c.Next[i], c.Next[j])
		if !ok {
			continue
		}

		count := classify(h, c, thr2, mask)
		if count > bestCount {
			best, bestCount = h, count
			copy(bestMask, mask)
			iters = updateIterations(e.Params.Confidence, float64(count)/float64(n), e.Params.MaxIterations)
		}
	}

	if bestCount < minPoints {
		return fallback(ErrNoConsensus, n)
	}

	t, count, err := refine(c, best, bestCount, bestMask, thr2, minPoints, e.Params.RefineIterations)
	if err != nil || !t.IsFinite() {
		return fallback(ErrIllConditioned, n)
	}
	return measured(t, n, count)
}

// refine repeatedly refits t on its inliers and reclassifies, stopping once the
// inlier set is stable. A refit whose consensus drops below minPoints is
// discarded and the previous model kept. inliers is updated in place.
func refine(c tracker.Correspondences, t Affine, count int, inliers []bool, thr2 float64, minPoints, iters int) (Affine, int, error) {
	mask := make([]bool, len(inliers))
	for r := 0; r < iters; r++ {
		refit, err := leastSquares(c, inliers)
		if err != nil {
			return Affine{}, 0, err
		}

		n := classify(refit, c, thr2, mask)
		if n < minPoints {
			break
		}
		t, count = refit, n
		if sameMask(mask, inliers) {
			break
		}
		copy(inliers, mask)
	}
	return t, count, nil
}

// fromPair solves the similarity mapping p1->q1 and p2->q2 exactly. Treating
// points as complex numbers, (a + ib) = (q2-q1)/(p2-p1).
func fromPair(p1, p2, q1, q2 tracker.Point) (Affine, bool) {
	dpx, dpy := p2.X-p1.X, p2.Y-p1.Y
	dqx, dqy := q2.X-q1.X, q2.Y-q1.Y
	d := dpx*dpx + dpy*dpy
	if d < 1e-9 {
		return Affine{}, false
	}
	a := (dqx*dpx + dqy*dpy) / d
	b := (dqy*dpx - dqx*dpy) / d
	tx := q1.X - (a*p1.X - b*p1.Y)
	ty := q1.Y - (b*p1.X + a*p1.Y)
	h := Affine{a, -b, tx, b, a, ty}
	return h, h.IsFinite()
}

// classify marks the correspondences whose reprojection error is within the
// threshold and returns their count.
func classify(t Affine, c tracker.Correspondences, thr2 float64, mask []bool) int {
	count := 0
	for i := range c.Prev {
		p := t.Apply(c.Prev[i])
		dx, dy := p.X-c.Next[i].X, p.Y-c.Next[i].Y
		mask[i] = dx*dx+dy*dy <= thr2
		if mask[i] {
			count++
		}
	}
	return count
}

// leastSquares refits the four similarity parameters on the masked points:
//
//	x' = a x - b y + tx
//	y' = b x + a y + ty
func leastSquares(c tracker.Correspondences, mask []bool) (Affine, error) {
	var rows []float64
	var rhs []float64
	for i, in := range mask {
		if !in {
			continue
		}
		p, q := c.Prev[i], c.Next[i]
		rows = append(rows,
			p.X, -p.Y, 1, 0,
			p.Y, p.X, 0, 1,
		)
		rhs = append(rhs, q.X, q.Y)
	}
	if len(rhs) < 4 {
		return Affine{}, ErrTooFewPoints
	}

	A := mat.NewDense(len(rhs), 4, rows)
	b := mat.NewVecDense(len(rhs), rhs)

	var x mat.VecDense
	if err := x.SolveVec(A, b); err != nil {
		return Affine{}, err
	}

	a, bb, tx, ty := x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3)
	return Affine{a, -bb, tx, bb, a, ty}, nil
}

// degenerate reports whether the points are (nearly) coincident or collinear,
// judged by the eigenvalues of their scatter matrix.
func degenerate(pts []tracker.Point) bool {
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	n := float64(len(pts))
	mx /= n
	my /= n

	var sxx, sxy, syy float64
	for _, p := range pts {
		dx, dy := p.X-mx, p.Y-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	sxx /= n
	sxy /= n
	syy /= n

	tr := sxx + syy
	disc := math.Sqrt((sxx-syy)*(sxx-syy) + 4*sxy*sxy)
	large := (tr + disc) / 2
	small := (tr - disc) / 2

	if large < 1e-6 {
		return true
	}
	return small/large < 1e-6
}

// updateIterations is the standard RANSAC bound on the number of samples needed
// to draw one all-inlier pair with the requested confidence.
func updateIterations(confidence, inlierRatio float64, maxIters int) int {
	num := math.Log(1 - confidence)
	denom := math.Log(1 - inlierRatio*inlierRatio)
	if denom >= 0 || math.IsInf(denom, -1) {
		if inlierRatio >= 1 {
			return 1
		}
		return maxIters
	}
	if -num >= float64(maxIters)*(-denom) {
		return maxIters
	}
	return int(math.Round(num / denom))
}

func sameMask(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
