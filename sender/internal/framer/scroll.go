package framer

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"ledMatrix/sender/internal/entity"
)

// ScrollingText moves word-wrapped text up the panel and starts over once
// the last line has left the top edge.
type ScrollingText struct {
	width  int
	height int
	text   string
	speed  int

	strip  *image.NRGBA
	offset int
	canvas *canvas
}

func NewScrollingText(width, height int, text string, speed int) Framer {
	if speed < 1 {
		speed = 1
	}
	return &ScrollingText{width: width, height: height, text: text, speed: speed}
}

// Start renders the text once into a strip that is padded with a blank
// panel height above and below, so the text enters from the bottom edge.
func (r *ScrollingText) Start() error {
	face := basicfont.Face7x13
	lines := wrap(face, r.text, r.width)

	strip := image.NewNRGBA(image.Rect(0, 0, r.width, len(lines)*face.Height+2*r.height))
	draw.Draw(strip, strip.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for i, line := range lines {
		drawText(strip, face, color.White, 0, r.height+i*face.Height, line)
	}

	r.strip = strip
	r.offset = 0
	r.canvas = newCanvas(r.width, r.height)
	r.canvas.reset()

	return nil
}

func (r *ScrollingText) Next() (*entity.Frame, error) {
	if r.canvas == nil {
		return nil, ErrNotStarted
	}

	if !r.canvas.blank() {
		draw.Draw(r.canvas.img, r.canvas.img.Bounds(), r.strip, image.Pt(0, r.offset), draw.Src)

		r.offset += r.speed
		if r.offset > r.strip.Bounds().Dy()-r.height {
			r.offset = 0
		}
	}

	return r.canvas.frame()
}

func (r *ScrollingText) Stop() error {
	r.canvas, r.strip = nil, nil
	return nil
}
