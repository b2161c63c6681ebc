package matrix

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const consumer = "ledmatrix"

var ErrPanelGeometry = errors.New("unsupported panel geometry")

// PinMap is the HUB75 wiring as line offsets on Chip. Addr lists the row
// address lines A, B, C, D, E; only as many as the panel needs are used.
type PinMap struct {
	Chip string

	R1, G1, B1 int
	R2, G2, B2 int

	CLK int
	OE  int
	LAT int

	Addr []int
}

type HUB75Config struct {
	Width     int
	Height    int
	BitPlanes int
	// RowTime is how long a row of the least significant plane stays lit.
	RowTime time.Duration
	Pins    PinMap
}

type pinWriter interface {
	SetValue(value int) error
}

// pin skips writes that would not change the line.
type pin struct {
	w     pinWriter
	value int
	known bool
}

func (p *pin) set(value int) error {
	if p.known && p.value == value {
		return nil
	}
	if err := p.w.SetValue(value); err != nil {
		return err
	}
	p.value, p.known = value, true
	return nil
}

type hub75Pins struct {
	r1, g1, b1 *pin
	r2, g2, b2 *pin
	clk        *pin
	oe         *pin
	lat        *pin
	addr       []*pin
}

// HUB75 bit-bangs a 1/(height/2) scan HUB75 panel through GPIO character
// device lines. Color depth uses binary coded modulation: plane p shows bit p
// of the top BitPlanes bits for RowTime << p.
type HUB75 struct {
	width   int
	height  int
	planes  int
	rowTime time.Duration

	pins  hub75Pins
	lines []*gpiocdev.Line
	sleep func(time.Duration)
	err   error

	logger *zap.Logger
}

// addressLines is the number of row address bits a panel of this height uses.
func addressLines(height int) int {
	return bits.Len(uint(height/2 - 1))
}

func NewHUB75(cfg HUB75Config, logger *zap.Logger) (*HUB75, error) {
	if err := checkGeometry(cfg); err != nil {
		return nil, err
	}

	need := addressLines(cfg.Height)
	if len(cfg.Pins.Addr) < need {
		return nil, fmt.Errorf("%w: %d rows need %d address lines, have %d",
			ErrPanelGeometry, cfg.Height/2, need, len(cfg.Pins.Addr))
	}

	var lines []*gpiocdev.Line
	request := func(offset, initial int) (*pin, error) {
		line, err := gpiocdev.RequestLine(cfg.Pins.Chip, offset,
			gpiocdev.AsOutput(initial),
			gpiocdev.WithConsumer(consumer),
		)
		if err != nil {
			return nil, fmt.Errorf("request %s line %d: %w", cfg.Pins.Chip, offset, err)
		}
		lines = append(lines, line)
		return &pin{w: line, value: initial, known: true}, nil
	}

	var pins hub75Pins
	var err error
	for _, p := range []struct {
		dst    **pin
		offset int
		start  int
	}{
		{&pins.r1, cfg.Pins.R1, 0},
		{&pins.g1, cfg.Pins.G1, 0},
		{&pins.b1, cfg.Pins.B1, 0},
		{&pins.r2, cfg.Pins.R2, 0},
		{&pins.g2, cfg.Pins.G2, 0},
		{&pins.b2, cfg.Pins.B2, 0},
		{&pins.clk, cfg.Pins.CLK, 0},
		{&pins.lat, cfg.Pins.LAT, 0},
		// output disabled until the first row is latched
		{&pins.oe, cfg.Pins.OE, 1},
	} {
		if *p.dst, err = request(p.offset, p.start); err != nil {
			break
		}
	}
	for i := 0; err == nil && i < need; i++ {
		var a *pin
		if a, err = request(cfg.Pins.Addr[i], 0); err == nil {
			pins.addr = append(pins.addr, a)
		}
	}
	if err != nil {
		for _, line := range lines {
			_ = line.Close()
		}
		return nil, err
	}

	h := newHUB75(cfg, pins, logger)
	h.lines = lines

	h.logger.Info("panel lines requested",
		zap.String("chip", cfg.Pins.Chip),
		zap.Int("lines", len(lines)),
		zap.Int("bit_planes", cfg.BitPlanes),
	)

	return h, nil
}

func newHUB75(cfg HUB75Config, pins hub75Pins, logger *zap.Logger) *HUB75 {
	planes := cfg.BitPlanes
	if planes < 1 {
		planes = 1
	}

	return &HUB75{
		width:   cfg.Width,
		height:  cfg.Height,
		planes:  planes,
		rowTime: cfg.RowTime,
		pins:    pins,
		sleep:   time.Sleep,
		logger:  logger.Named("hub75"),
	}
}

func checkGeometry(cfg HUB75Config) error {
	switch {
	case cfg.Width <= 0 || cfg.Height <= 0:
		return fmt.Errorf("%w: %dx%d", ErrPanelGeometry, cfg.Width, cfg.Height)
	case cfg.Height%2 != 0 || cfg.Height > 64:
		return fmt.Errorf("%w: height %d must be even and at most 64", ErrPanelGeometry, cfg.Height)
	case cfg.BitPlanes > 8:
		return fmt.Errorf("%w: %d bit planes", ErrPanelGeometry, cfg.BitPlanes)
	}
	return nil
}

// Render scans canvas once. Rows y and y+height/2 are shifted together on the
// upper and lower color lines.
func (r *HUB75) Render(canvas *FrameCanvas) error {
	half := r.height / 2

	for plane := 0; plane < r.planes; plane++ {
		shift := uint(8 - r.planes + plane)
		hold := r.rowTime << plane

		for row := 0; row < half; row++ {
			top, bottom := canvas.Row(row), canvas.Row(row+half)

			for x := 0; x < r.width; x++ {
				r.set(r.pins.r1, int(top[x].R>>shift&1))
				r.set(r.pins.g1, int(top[x].G>>shift&1))
				r.set(r.pins.b1, int(top[x].B>>shift&1))
				r.set(r.pins.r2, int(bottom[x].R>>shift&1))
				r.set(r.pins.g2, int(bottom[x].G>>shift&1))
				r.set(r.pins.b2, int(bottom[x].B>>shift&1))

				r.set(r.pins.clk, 1)
				r.set(r.pins.clk, 0)
			}

			for i, a := range r.pins.addr {
				r.set(a, row>>i&1)
			}

			r.set(r.pins.lat, 1)
			r.set(r.pins.lat, 0)

			r.set(r.pins.oe, 0)
			r.sleep(hold)
			r.set(r.pins.oe, 1)

			if r.err != nil {
				err := r.err
				r.err = nil
				return fmt.Errorf("scan row %d plane %d: %w", row, plane, err)
			}
		}
	}

	return nil
}

func (r *HUB75) set(p *pin, value int) {
	if r.err != nil {
		return
	}
	r.err = p.set(value)
}

// Close turns the output off and releases every line.
func (r *HUB75) Close() error {
	var err error
	if r.pins.oe != nil {
		err = multierr.Append(err, r.pins.oe.set(1))
	}
	for _, line := range r.lines {
		err = multierr.Append(err, line.Close())
	}
	r.lines = nil

	return err
}
