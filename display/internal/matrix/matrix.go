package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrRunning = errors.New("refresher already running")

// Driver puts one canvas on the physical panel. Render is one full scan.
type Driver interface {
	Render(canvas *FrameCanvas) error
	Close() error
}

type Config struct {
	Width       int
	Height      int
	RefreshHz   int
	SwapTimeout time.Duration
}

type swapRequest struct {
	next *FrameCanvas
	prev chan *FrameCanvas
}

// Matrix double-buffers frames for a Driver. Run is the refresh goroutine:
// it repeatedly scans the visible canvas and applies swap and clear requests
// only between two scans, so a frame is never shown half written.
type Matrix struct {
	cfg    Config
	driver Driver

	swaps  chan swapRequest
	clears chan chan struct{}

	mu       sync.Mutex
	running  bool
	visible  *FrameCanvas
	canvases []*FrameCanvas

	frames atomic.Uint64

	logger *zap.Logger
}

func New(cfg Config, driver Driver, logger *zap.Logger) *Matrix {
	if cfg.RefreshHz <= 0 {
		cfg.RefreshHz = 120
	}
	if cfg.SwapTimeout <= 0 {
		cfg.SwapTimeout = 100 * time.Millisecond
	}

	m := &Matrix{
		cfg:    cfg,
		driver: driver,
		swaps:  make(chan swapRequest),
		clears: make(chan chan struct{}),
		logger: logger.Named("matrix"),
	}
	m.visible = m.CreateFrameCanvas()

	return m
}

func (r *Matrix) Width() int  { return r.cfg.Width }
func (r *Matrix) Height() int { return r.cfg.Height }

// Frames is the number of completed panel scans.
func (r *Matrix) Frames() uint64 {
	return r.frames.Load()
}

// CreateFrameCanvas allocates a panel sized canvas owned by this matrix.
func (r *Matrix) CreateFrameCanvas() *FrameCanvas {
	c := NewFrameCanvas(r.cfg.Width, r.cfg.Height)

	r.mu.Lock()
	r.canvases = append(r.canvases, c)
	r.mu.Unlock()

	return c
}

// SwapOnVSync makes next visible at the next scan boundary and returns the
// canvas that was visible before, which the caller may draw into again. If
// the refresher does not take the canvas within the swap timeout the frame is
// dropped and next itself is returned.
func (r *Matrix) SwapOnVSync(next *FrameCanvas) *FrameCanvas {
	r.mu.Lock()
	if !r.running {
		prev := r.visible
		r.visible = next
		r.mu.Unlock()
		return prev
	}
	r.mu.Unlock()

	req := swapRequest{next: next, prev: make(chan *FrameCanvas, 1)}

	timer := time.NewTimer(r.cfg.SwapTimeout)
	defer timer.Stop()

	select {
	case r.swaps <- req:
		return <-req.prev
	case <-timer.C:
		r.logger.Warn("swap timed out, frame dropped", zap.Duration("timeout", r.cfg.SwapTimeout))
		return next
	}
}

// Clear blanks every canvas of this matrix, so the panel goes dark at the
// next scan.
func (r *Matrix) Clear() {
	r.mu.Lock()
	if !r.running {
		r.clearAll()
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	done := make(chan struct{})

	timer := time.NewTimer(r.cfg.SwapTimeout)
	defer timer.Stop()

	select {
	case r.clears <- done:
		<-done
	case <-timer.C:
		r.logger.Warn("clear timed out", zap.Duration("timeout", r.cfg.SwapTimeout))
	}
}

// Run scans the panel at the refresh rate until ctx is done, then shows one
// blank frame. A driver error stops the refresher. SwapOnVSync and Clear may
// be called before, during and after Run: the running check and a direct
// flip or clear happen under one lock, and Run marks itself running under it
// before the first scan.
func (r *Matrix) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunning
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.logger.Info("refresher started",
		zap.Int("width", r.cfg.Width),
		zap.Int("height", r.cfg.Height),
		zap.Int("refresh_hz", r.cfg.RefreshHz),
	)

	frameTime := time.Second / time.Duration(r.cfg.RefreshHz)

	pace := time.NewTimer(0)
	defer pace.Stop()

	for {
		start := time.Now()

		r.boundary()

		r.mu.Lock()
		visible := r.visible
		r.mu.Unlock()

		if err := r.driver.Render(visible); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		r.frames.Add(1)

		wait := frameTime - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		if !pace.Stop() {
			select {
			case <-pace.C:
			default:
			}
		}
		pace.Reset(wait)

		// the panel holds the last scan, so swaps during the wait are also
		// on a boundary
	pacing:
		for {
			select {
			case <-ctx.Done():
				return r.blank()
			case req := <-r.swaps:
				r.swap(req)
			case done := <-r.clears:
				r.clearRequested(done)
			case <-pace.C:
				break pacing
			}
		}
	}
}

// Close releases the driver. Call it after Run returned.
func (r *Matrix) Close() error {
	if err := r.driver.Close(); err != nil {
		return fmt.Errorf("close panel driver: %w", err)
	}
	return nil
}

func (r *Matrix) boundary() {
	for {
		select {
		case req := <-r.swaps:
			r.swap(req)
		case done := <-r.clears:
			r.clearRequested(done)
		default:
			return
		}
	}
}

func (r *Matrix) swap(req swapRequest) {
	r.mu.Lock()
	prev := r.visible
	r.visible = req.next
	r.mu.Unlock()

	req.prev <- prev
}

func (r *Matrix) clearRequested(done chan struct{}) {
	r.mu.Lock()
	r.clearAll()
	r.mu.Unlock()

	close(done)
}

func (r *Matrix) clearAll() {
	for _, c := range r.canvases {
		c.Clear()
	}
}

// blank clears only the visible canvas: the caller may still be drawing
// into the one it holds.
func (r *Matrix) blank() error {
	r.mu.Lock()
	visible := r.visible
	visible.Clear()
	r.mu.Unlock()

	if err := r.driver.Render(visible); err != nil {
		return fmt.Errorf("render blank frame: %w", err)
	}

	r.logger.Info("refresher stopped", zap.Uint64("frames", r.frames.Load()))

	return nil
}
