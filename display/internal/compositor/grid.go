package compositor

import (
	"image"
	"image/color"
)

// Grid is a decoded frame at panel size. Alpha is kept only to decide which
// pixels are painted.
type Grid struct {
	img *image.NRGBA
}

func NewGrid(width, height int) *Grid {
	return &Grid{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

func (g *Grid) Width() int  { return g.img.Rect.Dx() }
func (g *Grid) Height() int { return g.img.Rect.Dy() }

func (g *Grid) At(x, y int) color.NRGBA {
	return g.img.NRGBAAt(x, y)
}

// Paint copies the grid into dst. Fully transparent pixels are skipped and
// keep whatever dst holds; any other alpha overwrites with the pixel's color.
func (g *Grid) Paint(dst Canvas) {
	w, h := g.Width(), g.Height()
	for y := 0; y < h; y++ {
		row := g.img.Pix[y*g.img.Stride : y*g.img.Stride+w*4]
		for x := 0; x < w; x++ {
			p := row[x*4 : x*4+4 : x*4+4]
			if p[3] == 0 {
				continue
			}
			dst.SetPixel(x, y, p[0], p[1], p[2])
		}
	}
}
