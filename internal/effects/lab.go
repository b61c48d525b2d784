package effects

import (
	"image"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// LabImage stores a frame in CIE L*a*b* (D65) as separate float planes, in
// go-colorful's scale: L in [0, 1], a and b roughly in [-1, 1].
type LabImage struct {
	W, H    int
	L, A, B []float64
	Alpha   []uint8
}

// srgbToLinear maps an 8-bit sRGB channel to linear light.
var srgbToLinear = func() [256]float64 {
	var lut [256]float64
	for i := range lut {
		v := float64(i) / 255
		lut[i], _, _ = colorful.Color{R: v}.LinearRgb()
	}
	return lut
}()

func ToLab(img *image.RGBA) *LabImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	lab := &LabImage{
		W: w, H: h,
		L:     make([]float64, w*h),
		A:     make([]float64, w*h),
		B:     make([]float64, w*h),
		Alpha: make([]uint8, w*h),
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+4*w]
		for x := 0; x < w; x++ {
			p := row[4*x : 4*x+4]
			i := y*w + x
			X, Y, Z := colorful.LinearRgbToXyz(srgbToLinear[p[0]], srgbToLinear[p[1]], srgbToLinear[p[2]])
			lab.L[i], lab.A[i], lab.B[i] = colorful.XyzToLab(X, Y, Z)
			lab.Alpha[i] = p[3]
		}
	}
	return lab
}

// FromLab converts back to 8-bit sRGB, clamping out-of-gamut colours.
func FromLab(lab *LabImage) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, lab.W, lab.H))
	for i := range lab.L {
		X, Y, Z := colorful.LabToXyz(lab.L[i], lab.A[i], lab.B[i])
		c := colorful.LinearRgb(colorful.XyzToLinearRgb(X, Y, Z)).Clamped()
		j := 4 * i
		img.Pix[j+0] = to8(c.R)
		img.Pix[j+1] = to8(c.G)
		img.Pix[j+2] = to8(c.B)
		img.Pix[j+3] = lab.Alpha[i]
	}
	return img
}

// Lightness quantizes the L plane to 8 bits (0..255 spans L* 0..100).
func (lab *LabImage) Lightness() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, lab.W, lab.H))
	for i, l := range lab.L {
		g.Pix[i] = to8(l)
	}
	return g
}

// SetLightness replaces the L plane from an 8-bit plane of the same size.
func (lab *LabImage) SetLightness(g *image.Gray) {
	for i := range lab.L {
		lab.L[i] = float64(g.Pix[i]) / 255
	}
}

func to8(v float64) uint8 {
	v = math.Round(v * 255)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
