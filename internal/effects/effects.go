// Package effects holds per-frame image effects applied after motion
// compensation.
package effects

import (
	"errors"
	"fmt"
	"image"
)

var ErrNilFrame = errors.New("input frame cannot be nil")

// Effect processes one frame. Implementations must not modify their input and
// must return a frame of the same size.
type Effect interface {
	Name() string
	Apply(frame *image.RGBA) (*image.RGBA, error)
}

// Chain applies effects in order.
type Chain struct {
	effects []Effect
}

func NewChain(effects ...Effect) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Add(e Effect) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int {
	return len(c.effects)
}

func (c *Chain) Name() string {
	return fmt.Sprintf("chain(%d)", len(c.effects))
}

// Apply returns the input unchanged when the chain is empty.
func (c *Chain) Apply(frame *image.RGBA) (*image.RGBA, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}
	current := frame
	for i, e := range c.effects {
		out, err := e.Apply(current)
		if err != nil {
			return nil, fmt.Errorf("effect %d (%s): %w", i, e.Name(), err)
		}
		current = out
	}
	return current, nil
}
