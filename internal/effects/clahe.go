package effects

import (
	"errors"
	"image"
	"math"
)

var ErrInvalidCLAHE = errors.New("clahe: clip limit and tile grid must be positive")

// CLAHE is contrast-limited adaptive histogram equalization of an 8-bit plane.
// The plane is split into TilesX x TilesY tiles; each tile gets its own clipped
// equalization curve and every pixel blends the curves of the four nearest
// tile centres.
type CLAHE struct {
	ClipLimit float64
	TilesX    int
	TilesY    int
}

func NewCLAHE(clipLimit float64, tilesX, tilesY int) (*CLAHE, error) {
	if clipLimit <= 0 || tilesX <= 0 || tilesY <= 0 {
		return nil, ErrInvalidCLAHE
	}
	return &CLAHE{ClipLimit: clipLimit, TilesX: tilesX, TilesY: tilesY}, nil
}

// Apply returns the equalized plane; src is not modified.
func (c *CLAHE) Apply(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	// Tiles cover a grid padded up to a multiple of the tile count; the
	// padding mirrors the plane without repeating the edge row.
	tileW := (w + c.TilesX - 1) / c.TilesX
	tileH := (h + c.TilesY - 1) / c.TilesY
	at := func(x, y int) uint8 {
		return src.Pix[(reflect101(y, h))*src.Stride+reflect101(x, w)]
	}

	luts := c.tileLUTs(at, tileW, tileH)

	invW, invH := 1/float64(tileW), 1/float64(tileH)
	for y := 0; y < h; y++ {
		tyf := float64(y)*invH - 0.5
		ty1 := int(math.Floor(tyf))
		ty2 := ty1 + 1
		ya := tyf - float64(ty1)
		ty1 = max(ty1, 0)
		ty2 = min(ty2, c.TilesY-1)

		row := src.Pix[y*src.Stride : y*src.Stride+w]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x, v := range row {
			txf := float64(x)*invW - 0.5
			tx1 := int(math.Floor(txf))
			tx2 := tx1 + 1
			xa := txf - float64(tx1)
			tx1 = max(tx1, 0)
			tx2 = min(tx2, c.TilesX-1)

			l11 := float64(luts[ty1*c.TilesX+tx1][v])
			l12 := float64(luts[ty1*c.TilesX+tx2][v])
			l21 := float64(luts[ty2*c.TilesX+tx1][v])
			l22 := float64(luts[ty2*c.TilesX+tx2][v])

			res := (l11*(1-xa)+l12*xa)*(1-ya) + (l21*(1-xa)+l22*xa)*ya
			out[x] = uint8(min(math.Round(res), 255))
		}
	}
	return dst
}

// tileLUTs builds one clipped cumulative mapping per tile, row-major.
func (c *CLAHE) tileLUTs(at func(x, y int) uint8, tileW, tileH int) [][256]uint8 {
	area := tileW * tileH
	limit := math.MaxInt
	if c.ClipLimit > 0 {
		limit = max(int(c.ClipLimit*float64(area)/256), 1)
	}
	scale := 255 / float64(area)

	luts := make([][256]uint8, c.TilesX*c.TilesY)
	var hist [256]int
	for ty := 0; ty < c.TilesY; ty++ {
		for tx := 0; tx < c.TilesX; tx++ {
			hist = [256]int{}
			for y := ty * tileH; y < (ty+1)*tileH; y++ {
				for x := tx * tileW; x < (tx+1)*tileW; x++ {
					hist[at(x, y)]++
				}
			}

			clipHistogram(&hist, limit)

			lut := &luts[ty*c.TilesX+tx]
			sum := 0
			for i, n := range hist {
				sum += n
				lut[i] = uint8(min(math.Round(float64(sum)*scale), 255))
			}
		}
	}
	return luts
}

// clipHistogram caps every bin at limit and spreads the excess over all bins,
// handing the remainder out one count at a time at evenly spaced bins.
func clipHistogram(hist *[256]int, limit int) {
	clipped := 0
	for i, n := range hist {
		if n > limit {
			clipped += n - limit
			hist[i] = limit
		}
	}
	if clipped == 0 {
		return
	}

	batch := clipped / 256
	residual := clipped - batch*256
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(256/residual, 1)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

// reflect101 mirrors an out-of-range index about the edge samples (dcb|abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
