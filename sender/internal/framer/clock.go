package framer

import (
	"image/color"
	"time"

	"golang.org/x/image/font/inconsolata"

	"ledMatrix/sender/internal/entity"
)

const clockLayout = "03:04:05.000"

// Clock draws the wall time with milliseconds, green on black, in the top
// left corner.
type Clock struct {
	width  int
	height int
	loc    *time.Location
	now    func() time.Time

	canvas *canvas
}

func NewClock(width, height int, loc *time.Location) Framer {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{width: width, height: height, loc: loc, now: time.Now}
}

func (r *Clock) Start() error {
	r.canvas = newCanvas(r.width, r.height)
	r.canvas.reset()
	return nil
}

func (r *Clock) Next() (*entity.Frame, error) {
	if r.canvas == nil {
		return nil, ErrNotStarted
	}

	if !r.canvas.blank() {
		r.canvas.fill(color.Black)
		drawText(r.canvas.img, inconsolata.Regular8x16, green, 0, 0, r.now().In(r.loc).Format(clockLayout))
	}

	return r.canvas.frame()
}

func (r *Clock) Stop() error {
	r.canvas = nil
	return nil
}
