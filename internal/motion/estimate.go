package motion

import "github.com/ivlev/vidstab/internal/tracker"

// Kind tells a measured motion apart from the identity fallback.
type Kind uint8

const (
	Measured Kind = iota
	Fallback
)

func (k Kind) String() string {
	if k == Fallback {
		return "fallback"
	}
	return "measured"
}

// Estimate is the result of fitting frame-to-frame motion. Transform is always
// finite; for a Fallback it is the identity and Reason says why.
type Estimate struct {
	Kind      Kind
	Transform Affine
	Reason    error
	Matches   int
	Inliers   int
}

func measured(t Affine, matches, inliers int) Estimate {
	return Estimate{Kind: Measured, Transform: t, Matches: matches, Inliers: inliers}
}

func fallback(reason error, matches int) Estimate {
	return Estimate{Kind: Fallback, Transform: Identity(), Reason: reason, Matches: matches}
}

func (e Estimate) IsFallback() bool {
	return e.Kind == Fallback
}

// Estimator fits a single global motion model to point correspondences.
type Estimator interface {
	Estimate(c tracker.Correspondences) Estimate
}
