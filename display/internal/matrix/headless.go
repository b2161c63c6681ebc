package matrix

import (
	"sync"

	"go.uber.org/zap"
)

// Headless is a driver without a panel, for development machines. It keeps a
// copy of the last scanned frame.
type Headless struct {
	mu   sync.Mutex
	last *FrameCanvas

	logger *zap.Logger
}

func NewHeadless(width, height int, logger *zap.Logger) *Headless {
	return &Headless{
		last:   NewFrameCanvas(width, height),
		logger: logger.Named("headless"),
	}
}

func (r *Headless) Render(canvas *FrameCanvas) error {
	r.mu.Lock()
	copy(r.last.pix, canvas.pix)
	r.mu.Unlock()

	return nil
}

// Last returns a copy of what the panel would show.
func (r *Headless) Last() *FrameCanvas {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := NewFrameCanvas(r.last.width, r.last.height)
	copy(c.pix, r.last.pix)

	return c
}

func (r *Headless) Close() error {
	r.logger.Debug("closed")
	return nil
}
