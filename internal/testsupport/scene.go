// Package testsupport renders synthetic video frames for tests.
//
// Frames are sampled from a smooth procedural texture defined on the whole
// plane, so a camera translation can be simulated exactly by shifting the
// sampling grid, including by sub-pixel amounts.
package testsupport

import (
	"image"
	"image/color"
	"math"
)

// Texture returns the scene intensity for channel c (0..2) at (x, y).
func Texture(c int, x, y float64) float64 {
	var v float64
	switch c {
	case 0:
		v = 128 + 45*math.Sin(x/5.3)*math.Sin(y/6.1) + 35*math.Sin((x+1.7*y)/13.0+0.5) + 20*math.Cos((2.3*x-y)/9.0)
	case 1:
		v = 120 + 50*math.Sin(x/7.1+1)*math.Cos(y/5.7) + 30*math.Cos((x-1.3*y)/11.0)
	default:
		v = 110 + 40*math.Cos(x/6.4)*math.Sin(y/8.3+2) + 25*math.Sin((1.9*x+y)/10.0)
	}
	return math.Max(0, math.Min(255, v))
}

// RGBAFrame renders the scene translated by (dx, dy): content that was at
// (x, y) appears at (x+dx, y+dy).
func RGBAFrame(w, h int, dx, dy float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := float64(x)-dx, float64(y)-dy
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(math.Round(Texture(0, sx, sy))),
				G: uint8(math.Round(Texture(1, sx, sy))),
				B: uint8(math.Round(Texture(2, sx, sy))),
				A: 255,
			})
		}
	}
	return img
}

// GrayFrame renders the first texture channel translated by (dx, dy).
func GrayFrame(w, h int, dx, dy float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := Texture(0, float64(x)-dx, float64(y)-dy)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v))})
		}
	}
	return img
}

// Uniform returns an opaque frame filled with a single colour.
func Uniform(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}
