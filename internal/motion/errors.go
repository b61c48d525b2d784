package motion

import "errors"

// Reasons for falling back to the identity transform. They are recorded on the
// Estimate and never returned to the pipeline as failures.
var (
	// ErrTooFewPoints indicates fewer correspondences than the minimum needed.
	ErrTooFewPoints = errors.New("too few correspondences")

	// ErrDegenerate indicates coincident or collinear source points.
	ErrDegenerate = errors.New("degenerate point configuration")

	// ErrNoConsensus indicates no hypothesis gathered enough inliers.
	ErrNoConsensus = errors.New("no consensus among correspondences")

	// ErrIllConditioned indicates the least-squares system could not be solved reliably.
	ErrIllConditioned = errors.New("ill-conditioned fit")
)
