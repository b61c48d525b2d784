// Package warp resamples frames through an affine transform.
package warp

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"github.com/ivlev/vidstab/internal/motion"
	"github.com/ivlev/vidstab/internal/system"
)

var black = image.NewUniform(color.RGBA{A: 0xff})

// Warper maps a frame through a transform into a new frame of the same size.
type Warper interface {
	Warp(src *image.RGBA, t motion.Affine) *image.RGBA
}

// Compensator applies the smoothed camera motion to a frame. The transform maps
// source pixel coordinates to destination coordinates; destination pixels that
// no source pixel lands on are opaque black.
type Compensator struct {
	// Pool, when set, supplies the destination buffers.
	Pool *system.ImagePool
}

func NewCompensator(pool *system.ImagePool) *Compensator {
	return &Compensator{Pool: pool}
}

func (c *Compensator) Warp(src *image.RGBA, t motion.Affine) *image.RGBA {
	b := src.Bounds()
	dst := c.alloc(image.Rect(0, 0, b.Dx(), b.Dy()))

	if t.IsIdentity() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	draw.Draw(dst, dst.Bounds(), black, image.Point{}, draw.Src)
	if !t.IsFinite() {
		return dst
	}

	// Shift so that the source rectangle starts at the origin.
	s2d := t
	if b.Min != (image.Point{}) {
		s2d = t.Mul(motion.Translation(-float64(b.Min.X), -float64(b.Min.Y)))
	}
	draw.BiLinear.Transform(dst, s2d.Aff3(), src, b, draw.Src, nil)
	return dst
}

func (c *Compensator) alloc(rect image.Rectangle) *image.RGBA {
	if c.Pool != nil {
		return c.Pool.Get(rect)
	}
	return image.NewRGBA(rect)
}
