package tracker

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// FloatImage is a single channel image with float32 samples, row-major.
type FloatImage struct {
	W, H int
	Pix  []float32
}

func NewFloatImage(w, h int) *FloatImage {
	return &FloatImage{W: w, H: h, Pix: make([]float32, w*h)}
}

// FromGray copies an 8-bit gray image into float samples in [0, 255].
func FromGray(g *image.Gray) *FloatImage {
	b := g.Bounds()
	f := NewFloatImage(b.Dx(), b.Dy())
	for y := 0; y < f.H; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+f.W]
		for x, v := range row {
			f.Pix[y*f.W+x] = float32(v)
		}
	}
	return f
}

// ToGray converts any image to 8-bit luma using the standard library gray model.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// at clamps the coordinates to the image border.
func (f *FloatImage) at(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= f.W {
		x = f.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.H {
		y = f.H - 1
	}
	return f.Pix[y*f.W+x]
}

// Sample returns the bilinearly interpolated value at (x, y) with replicated borders.
func (f *FloatImage) Sample(x, y float64) float32 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	ax := float32(x - float64(x0))
	ay := float32(y - float64(y0))

	v00 := f.at(x0, y0)
	v10 := f.at(x0+1, y0)
	v01 := f.at(x0, y0+1)
	v11 := f.at(x0+1, y0+1)

	top := v00 + (v10-v00)*ax
	bottom := v01 + (v11-v01)*ax
	return top + (bottom-top)*ay
}
