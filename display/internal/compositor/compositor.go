package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"go.uber.org/zap"
)

var (
	ErrDecode        = errors.New("decode frame")
	ErrUnknownScaler = errors.New("unknown scaler")
)

var supported = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/bmp",
	"image/tiff",
	"image/webp",
}

// Canvas is the off-screen buffer a frame is painted into.
type Canvas interface {
	SetPixel(x, y int, r, g, b uint8)
}

// ScalerByName maps a config value onto an x/image/draw kernel.
func ScalerByName(name string) (draw.Scaler, error) {
	switch name {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "approx-bilinear":
		return draw.ApproxBiLinear, nil
	case "bilinear":
		return draw.BiLinear, nil
	case "", "catmull-rom":
		return draw.CatmullRom, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScaler, name)
	}
}

type Compositor struct {
	scaler draw.Scaler
	logger *zap.Logger
}

func New(scaler draw.Scaler, logger *zap.Logger) *Compositor {
	if scaler == nil {
		scaler = draw.CatmullRom
	}

	return &Compositor{
		scaler: scaler,
		logger: logger.Named("compositor"),
	}
}

// Composite decodes payload, fits it to width x height and paints it into dst.
// Fully transparent pixels keep what dst already holds. On error dst is left
// exactly as it was.
func (r *Compositor) Composite(payload []byte, width, height int, dst Canvas) error {
	grid, err := r.Decode(payload, width, height)
	if err != nil {
		return err
	}

	grid.Paint(dst)

	return nil
}

// Decode turns an encoded image into a width x height Grid.
func (r *Compositor) Decode(payload []byte, width, height int) (*Grid, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	mime := mimetype.Detect(payload)
	if !mimetype.EqualsAny(mime.String(), supported...) {
		return nil, fmt.Errorf("%w: unsupported content %s", ErrDecode, mime.String())
	}

	src, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, mime.String(), err)
	}

	grid := NewGrid(width, height)
	bounds := src.Bounds()

	if bounds.Dx() == width && bounds.Dy() == height {
		draw.Draw(grid.img, grid.img.Bounds(), src, bounds.Min, draw.Src)
	} else {
		r.scaler.Scale(grid.img, grid.img.Bounds(), src, bounds, draw.Src, nil)
	}

	if ce := r.logger.Check(zap.DebugLevel, "decoded"); ce != nil {
		ce.Write(
			zap.String("format", format),
			zap.Int("src_width", bounds.Dx()),
			zap.Int("src_height", bounds.Dy()),
		)
	}

	return grid, nil
}
