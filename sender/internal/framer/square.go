package framer

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"ledMatrix/sender/internal/entity"
)

const (
	squareSize   = 4
	squareStartX = 31
	squareStartY = 20
)

var green = color.NRGBA{G: 255, A: 255}

// MovingSquare is a test pattern: a green square bouncing left and right on
// black.
type MovingSquare struct {
	width  int
	height int

	x, y int
	dir  int

	canvas  *canvas
	started bool
}

func NewMovingSquare(width, height int) Framer {
	return &MovingSquare{width: width, height: height}
}

func (r *MovingSquare) Start() error {
	r.canvas = newCanvas(r.width, r.height)
	r.canvas.reset()
	r.x, r.y, r.dir = squareStartX, squareStartY, 1
	r.started = true

	return nil
}

func (r *MovingSquare) Next() (*entity.Frame, error) {
	if !r.started {
		return nil, ErrNotStarted
	}

	if !r.canvas.blank() {
		r.draw()
	}

	return r.canvas.frame()
}

func (r *MovingSquare) draw() {
	r.canvas.fill(color.Black)

	left, top := r.x, r.y
	right, bottom := left+squareSize, top+squareSize
	draw.Draw(r.canvas.img, image.Rect(left, top, right, bottom), image.NewUniform(green), image.Point{}, draw.Src)

	r.x += r.dir
	switch {
	case right >= r.width-1 && r.dir > 0:
		r.dir = -1
	case left <= 0 && r.dir < 0:
		r.dir = 1
	}
}

func (r *MovingSquare) Stop() error {
	r.started = false
	return nil
}
