//go:build !withcv

package opencv

import "github.com/ivlev/vidstab/internal/config"

func Available() bool {
	return false
}

func New(cfg *config.Config) (*Set, error) {
	return nil, ErrUnavailable
}
