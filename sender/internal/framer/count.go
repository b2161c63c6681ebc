package framer

import (
	"fmt"
	"image/color"

	"golang.org/x/image/font/inconsolata"

	"ledMatrix/sender/internal/entity"
)

// Count draws a counter that goes up by one on every drawn frame.
type Count struct {
	width  int
	height int

	i      int
	canvas *canvas
}

func NewCount(width, height int) Framer {
	return &Count{width: width, height: height}
}

func (r *Count) Start() error {
	r.canvas = newCanvas(r.width, r.height)
	r.canvas.reset()
	r.i = 0
	return nil
}

func (r *Count) Next() (*entity.Frame, error) {
	if r.canvas == nil {
		return nil, ErrNotStarted
	}

	if !r.canvas.blank() {
		r.canvas.fill(color.Black)
		drawText(r.canvas.img, inconsolata.Regular8x16, color.White, 0, 0, fmt.Sprintf("i: %d", r.i))
		r.i++
	}

	return r.canvas.frame()
}

func (r *Count) Stop() error {
	r.canvas = nil
	return nil
}
