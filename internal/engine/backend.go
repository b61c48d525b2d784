package engine

import (
	"errors"
	"fmt"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/effects"
	"github.com/ivlev/vidstab/internal/motion"
	"github.com/ivlev/vidstab/internal/opencv"
	"github.com/ivlev/vidstab/internal/system"
	"github.com/ivlev/vidstab/internal/tracker"
	"github.com/ivlev/vidstab/internal/warp"
)

var (
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Backend bundles one implementation of every per-frame stage.
type Backend struct {
	Name      string
	Tracker   tracker.Tracker
	Estimator motion.Estimator
	Warper    warp.Warper
	Enhancer  effects.Effect
}

// NewBackend returns the pipeline stages for the named implementation:
// "native" (pure Go) or "opencv" (gocv, needs the withcv build tag).
func NewBackend(name string, cfg *config.Config) (*Backend, error) {
	switch name {
	case "", "native":
		chain, err := effects.New(cfg.Enhance)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:      "native",
			Tracker:   tracker.NewLKTracker(cfg.Tracker),
			Estimator: motion.NewRANSACEstimator(cfg.Estimator),
			Warper:    warp.NewCompensator(system.SharedPool()),
			Enhancer:  chain,
		}, nil
	case "opencv":
		set, err := opencv.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, name, err)
		}
		return &Backend{
			Name:      "opencv",
			Tracker:   set.Tracker,
			Estimator: set.Estimator,
			Warper:    set.Warper,
			Enhancer:  set.Enhancer,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}
