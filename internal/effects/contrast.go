package effects

import (
	"fmt"
	"image"

	"github.com/ivlev/vidstab/internal/config"
)

// LocalContrast enhances detail by running CLAHE on the lightness of a Lab
// representation, so colour is carried through unchanged.
type LocalContrast struct {
	clahe *CLAHE
}

func NewLocalContrast(p config.EnhanceParams) (*LocalContrast, error) {
	c, err := NewCLAHE(p.ClipLimit, p.TilesX, p.TilesY)
	if err != nil {
		return nil, err
	}
	return &LocalContrast{clahe: c}, nil
}

func (lc *LocalContrast) Name() string {
	return fmt.Sprintf("clahe(clip=%.1f, tiles=%dx%d)", lc.clahe.ClipLimit, lc.clahe.TilesX, lc.clahe.TilesY)
}

func (lc *LocalContrast) Apply(frame *image.RGBA) (*image.RGBA, error) {
	if frame == nil {
		return nil, ErrNilFrame
	}
	lab := ToLab(frame)
	lc.EqualizeLuminance(lab)
	return FromLab(lab), nil
}

// EqualizeLuminance rewrites the L plane in place; a and b are not touched.
func (lc *LocalContrast) EqualizeLuminance(lab *LabImage) {
	lab.SetLightness(lc.clahe.Apply(lab.Lightness()))
}

// New builds the effect chain described by the enhancement settings. A
// disabled configuration yields an empty chain.
func New(p config.EnhanceParams) (*Chain, error) {
	chain := NewChain()
	if !p.Enabled {
		return chain, nil
	}
	lc, err := NewLocalContrast(p)
	if err != nil {
		return nil, err
	}
	chain.Add(lc)
	return chain, nil
}
