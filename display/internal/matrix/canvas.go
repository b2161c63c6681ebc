package matrix

type RGB struct {
	R, G, B uint8
}

// FrameCanvas is one full panel buffer. Out of range writes are ignored.
type FrameCanvas struct {
	width  int
	height int
	pix    []RGB
}

func NewFrameCanvas(width, height int) *FrameCanvas {
	return &FrameCanvas{
		width:  width,
		height: height,
		pix:    make([]RGB, width*height),
	}
}

func (c *FrameCanvas) Width() int  { return c.width }
func (c *FrameCanvas) Height() int { return c.height }

func (c *FrameCanvas) SetPixel(x, y int, r, g, b uint8) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	c.pix[y*c.width+x] = RGB{R: r, G: g, B: b}
}

func (c *FrameCanvas) At(x, y int) RGB {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return RGB{}
	}
	return c.pix[y*c.width+x]
}

func (c *FrameCanvas) Clear() {
	clear(c.pix)
}

// Row returns the pixels of row y, aliasing the canvas.
func (c *FrameCanvas) Row(y int) []RGB {
	return c.pix[y*c.width : (y+1)*c.width]
}

// Blank reports whether every pixel is black.
func (c *FrameCanvas) Blank() bool {
	for _, p := range c.pix {
		if p != (RGB{}) {
			return false
		}
	}
	return true
}
