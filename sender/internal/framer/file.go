package framer

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"ledMatrix/sender/internal/entity"
)

// File sends one still image, fitted to the frame size, on every tick.
type File struct {
	path   string
	width  int
	height int

	canvas *canvas
	still  *image.NRGBA
}

func NewFile(path string, width, height int) Framer {
	return &File{path: path, width: width, height: height}
}

func (r *File) Start() error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", r.path, err)
	}

	still := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
	draw.CatmullRom.Scale(still, still.Bounds(), src, src.Bounds(), draw.Src, nil)

	r.still = still
	r.canvas = newCanvas(r.width, r.height)
	r.canvas.reset()

	return nil
}

func (r *File) Next() (*entity.Frame, error) {
	if r.canvas == nil {
		return nil, ErrNotStarted
	}

	if !r.canvas.blank() {
		copy(r.canvas.img.Pix, r.still.Pix)
	}

	return r.canvas.frame()
}

func (r *File) Stop() error {
	r.canvas, r.still = nil, nil
	return nil
}
