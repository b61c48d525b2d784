package tracker

// Pyramid holds successively halved copies of an image together with their
// spatial derivatives. Level 0 is the full resolution image.
type Pyramid struct {
	Levels []*FloatImage
	DX     []*FloatImage
	DY     []*FloatImage
}

// NewPyramid builds up to maxLevel extra levels, stopping early once a level
// would become smaller than the tracking window.
func NewPyramid(img *FloatImage, maxLevel, winSize int) *Pyramid {
	p := &Pyramid{}
	level := img
	for l := 0; ; l++ {
		dx, dy := scharr(level)
		p.Levels = append(p.Levels, level)
		p.DX = append(p.DX, dx)
		p.DY = append(p.DY, dy)

		if l == maxLevel {
			break
		}
		nw, nh := (level.W+1)/2, (level.H+1)/2
		if nw < winSize || nh < winSize {
			break
		}
		level = pyrDown(level)
	}
	return p
}

// Top returns the index of the coarsest level.
func (p *Pyramid) Top() int {
	return len(p.Levels) - 1
}

var gauss5 = [5]float32{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// pyrDown blurs with a separable 5-tap binomial kernel and keeps every other sample.
func pyrDown(src *FloatImage) *FloatImage {
	tmp := NewFloatImage(src.W, src.H)
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			var s float32
			for k := -2; k <= 2; k++ {
				s += gauss5[k+2] * src.at(x+k, y)
			}
			tmp.Pix[y*src.W+x] = s
		}
	}

	dst := NewFloatImage((src.W+1)/2, (src.H+1)/2)
	for y := 0; y < dst.H; y++ {
		for x := 0; x < dst.W; x++ {
			var s float32
			for k := -2; k <= 2; k++ {
				s += gauss5[k+2] * tmp.at(2*x, 2*y+k)
			}
			dst.Pix[y*dst.W+x] = s
		}
	}
	return dst
}

// scharr returns normalised Scharr derivatives (intensity change per pixel).
func scharr(img *FloatImage) (dx, dy *FloatImage) {
	dx = NewFloatImage(img.W, img.H)
	dy = NewFloatImage(img.W, img.H)
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			gx := 3*(img.at(x+1, y-1)-img.at(x-1, y-1)) +
				10*(img.at(x+1, y)-img.at(x-1, y)) +
				3*(img.at(x+1, y+1)-img.at(x-1, y+1))
			gy := 3*(img.at(x-1, y+1)-img.at(x-1, y-1)) +
				10*(img.at(x, y+1)-img.at(x, y-1)) +
				3*(img.at(x+1, y+1)-img.at(x+1, y-1))
			dx.Pix[y*img.W+x] = gx / 32
			dy.Pix[y*img.W+x] = gy / 32
		}
	}
	return dx, dy
}
