package effects

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/testsupport"
)

func defaultContrast(t *testing.T) *LocalContrast {
	t.Helper()
	lc, err := NewLocalContrast(config.Default().Enhance)
	if err != nil {
		t.Fatalf("NewLocalContrast: %v", err)
	}
	return lc
}

func TestLabRoundTrip(t *testing.T) {
	src := testsupport.RGBAFrame(32, 24, 0, 0)
	back := FromLab(ToLab(src))
	for i := range src.Pix {
		d := int(src.Pix[i]) - int(back.Pix[i])
		if d > 1 || d < -1 {
			t.Fatalf("Byte %d: %d -> %d", i, src.Pix[i], back.Pix[i])
		}
	}
}

func TestLabLightnessScale(t *testing.T) {
	white := ToLab(testsupport.Uniform(2, 2, color.RGBA{255, 255, 255, 255}))
	black := ToLab(testsupport.Uniform(2, 2, color.RGBA{0, 0, 0, 255}))
	if got := white.Lightness().Pix[0]; got != 255 {
		t.Errorf("White lightness: expected 255, got %d", got)
	}
	if got := black.Lightness().Pix[0]; got != 0 {
		t.Errorf("Black lightness: expected 0, got %d", got)
	}
}

func TestEqualizeLuminanceLeavesChroma(t *testing.T) {
	lab := ToLab(testsupport.RGBAFrame(96, 64, 0, 0))
	a := append([]float64(nil), lab.A...)
	b := append([]float64(nil), lab.B...)
	l := append([]float64(nil), lab.L...)

	defaultContrast(t).EqualizeLuminance(lab)

	changed := false
	for i := range lab.L {
		if lab.A[i] != a[i] || lab.B[i] != b[i] {
			t.Fatalf("Chroma changed at %d", i)
		}
		if math.Abs(lab.L[i]-l[i]) > 1e-9 {
			changed = true
		}
	}
	if !changed {
		t.Error("Lightness was not modified at all")
	}
}

func TestCLAHEUniformStaysUniform(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := range src.Pix {
		src.Pix[i] = 90
	}
	c, _ := NewCLAHE(2, 8, 8)
	out := c.Apply(src)

	if out.Bounds() != src.Bounds() {
		t.Fatalf("Size changed: %v", out.Bounds())
	}
	for i, v := range out.Pix {
		if v != out.Pix[0] {
			t.Fatalf("Pixel %d = %d, expected uniform %d", i, v, out.Pix[0])
		}
	}
}

func TestCLAHEStretchesLowContrast(t *testing.T) {
	// Gentle horizontal ramp 100..131
	src := image.NewGray(image.Rect(0, 0, 128, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 128; x++ {
			src.Pix[y*src.Stride+x] = uint8(100 + x/4)
		}
	}
	c, _ := NewCLAHE(2, 8, 8)
	out := c.Apply(src)

	if spread(out) <= spread(src) {
		t.Errorf("Expected contrast to increase: %d -> %d", spread(src), spread(out))
	}
}

func TestCLAHEOddSizes(t *testing.T) {
	c, _ := NewCLAHE(2, 8, 8)
	for _, size := range []image.Point{{1, 1}, {5, 3}, {37, 19}, {100, 7}} {
		src := image.NewGray(image.Rect(0, 0, size.X, size.Y))
		for i := range src.Pix {
			src.Pix[i] = uint8(i * 7)
		}
		out := c.Apply(src)
		if out.Bounds().Size() != size {
			t.Errorf("%v: got size %v", size, out.Bounds().Size())
		}
	}
}

func TestClipHistogram(t *testing.T) {
	var hist [256]int
	hist[10] = 1000
	clipHistogram(&hist, 100)

	total := 0
	for _, n := range hist {
		total += n
	}
	if total != 1000 {
		t.Errorf("Clipping must preserve the pixel count, got %d", total)
	}
	// 900 excess: 3 per bin plus 132 residual counts
	if hist[10] != 104 || hist[0] != 4 || hist[255] != 3 {
		t.Errorf("Unexpected redistribution: bin10=%d bin0=%d bin255=%d", hist[10], hist[0], hist[255])
	}
}

func TestReflect101(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{-1, 5, 1}, {-2, 5, 2}, {5, 5, 3}, {6, 5, 2}, {0, 1, 0}, {3, 1, 0}, {2, 5, 2},
	}
	for _, tt := range tests {
		if got := reflect101(tt.i, tt.n); got != tt.want {
			t.Errorf("reflect101(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestLocalContrastPreservesFrame(t *testing.T) {
	src := testsupport.RGBAFrame(80, 60, 0, 0)
	orig := append([]uint8(nil), src.Pix...)

	out, err := defaultContrast(t).Apply(src)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Bounds() != src.Bounds() {
		t.Errorf("Size changed: %v", out.Bounds())
	}
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 255 {
			t.Fatalf("Alpha changed at %d", i)
		}
	}
	for i := range orig {
		if orig[i] != src.Pix[i] {
			t.Fatal("Input frame was modified")
		}
	}
}

func TestNewCLAHERejectsInvalid(t *testing.T) {
	if _, err := NewCLAHE(0, 8, 8); !errors.Is(err, ErrInvalidCLAHE) {
		t.Errorf("Expected ErrInvalidCLAHE, got %v", err)
	}
	if _, err := NewCLAHE(2, 0, 8); !errors.Is(err, ErrInvalidCLAHE) {
		t.Errorf("Expected ErrInvalidCLAHE, got %v", err)
	}
}

func TestChain(t *testing.T) {
	frame := testsupport.RGBAFrame(16, 16, 0, 0)

	empty, err := New(config.EnhanceParams{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if out, _ := empty.Apply(frame); out != frame {
		t.Error("Empty chain should pass the frame through")
	}

	chain, err := New(config.Default().Enhance)
	if err != nil {
		t.Fatal(err)
	}
	if chain.Len() != 1 {
		t.Fatalf("Expected one effect, got %d", chain.Len())
	}
	if _, err := chain.Apply(nil); !errors.Is(err, ErrNilFrame) {
		t.Errorf("Expected ErrNilFrame, got %v", err)
	}
}

func spread(g *image.Gray) int {
	lo, hi := 255, 0
	for _, v := range g.Pix {
		lo = min(lo, int(v))
		hi = max(hi, int(v))
	}
	return hi - lo
}
