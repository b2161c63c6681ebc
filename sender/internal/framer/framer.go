package framer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"ledMatrix/sender/internal/entity"
)

// leadingBlanks black frames are sent after Start so a display switching to
// this source starts from a dark panel.
const leadingBlanks = 2

var ErrNotStarted = errors.New("framer not started")

type Framer interface {
	Start() error
	Next() (*entity.Frame, error)
	Stop() error
}

// canvas renders and encodes frames of one size, reusing its buffers.
type canvas struct {
	img      *image.NRGBA
	buf      bytes.Buffer
	enc      png.Encoder
	sequence int
	blanks   int
}

func newCanvas(width, height int) *canvas {
	return &canvas{
		img: image.NewNRGBA(image.Rect(0, 0, width, height)),
		enc: png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

func (c *canvas) reset() {
	c.sequence = 0
	c.blanks = leadingBlanks
}

func (c *canvas) fill(col color.Color) {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
}

// blank draws a black frame if one of the leading blanks is still due.
func (c *canvas) blank() bool {
	if c.blanks == 0 {
		return false
	}
	c.blanks--
	c.fill(color.Black)
	return true
}

func (c *canvas) frame() (*entity.Frame, error) {
	c.buf.Reset()
	if err := c.enc.Encode(&c.buf, c.img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	c.sequence++

	payload := make([]byte, c.buf.Len())
	copy(payload, c.buf.Bytes())

	b := c.img.Bounds()
	return &entity.Frame{
		ID:       uuid.NewString(),
		Sequence: int32(c.sequence),
		Width:    int32(b.Dx()),
		Height:   int32(b.Dy()),
		Payload:  payload,
	}, nil
}
