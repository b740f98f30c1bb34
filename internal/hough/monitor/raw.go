package monitor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/banshee-data/houghtrack/internal/hough/l3tree"
)

// ramp maps a weight fraction in [0, 1] to a colour, blending the viridis
// stops in HCL space.
type ramp []colorful.Color

func newRamp(hex []string) ramp {
	r := make(ramp, len(hex))
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(fmt.Sprintf("monitor: bad ramp colour %q: %v", h, err))
		}
		r[i] = c
	}
	return r
}

func (r ramp) at(t float64) colorful.Color {
	switch {
	case t <= 0:
		return r[0]
	case t >= 1:
		return r[len(r)-1]
	}
	pos := t * float64(len(r)-1)
	i := int(pos)
	return r[i].BlendHcl(r[i+1], pos-float64(i)).Clamped()
}

var defaultRamp = newRamp(viridis)

// RenderRaw draws one pixel per cell, axis 0 to the right and axis 1 up,
// and scales the result by an integer factor without smoothing. Empty
// cells are black.
func RenderRaw(g *l3tree.Grid, scale int) *image.NRGBA {
	w, h := g.Rows(), g.Cols()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	peak := g.Max()
	for c := 0; c < w; c++ {
		for r := 0; r < h; r++ {
			v := g.At(c, r)
			var px color.Color = color.Black
			if v > 0 && peak > 0 {
				px = defaultRamp.at(v / peak)
			}
			img.Set(c, h-1-r, px)
		}
	}
	if scale <= 1 {
		return img
	}
	return imaging.Resize(img, w*scale, h*scale, imaging.NearestNeighbor)
}

// WriteRawPNG renders g with RenderRaw and saves it to path.
func WriteRawPNG(path string, g *l3tree.Grid, scale int) error {
	if g.Rows() == 0 || g.Cols() == 0 {
		return fmt.Errorf("empty plane %dx%d", g.Rows(), g.Cols())
	}
	if err := imaging.Save(RenderRaw(g, scale), path); err != nil {
		return fmt.Errorf("failed to save raw plane: %w", err)
	}
	return nil
}
