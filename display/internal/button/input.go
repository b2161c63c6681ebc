package button

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"
)

const consumer = "ledmatrix-button"

var (
	ErrNotOpen = errors.New("button line not requested")
	ErrOpen    = errors.New("button line already requested")
)

// EdgeHandler is called on the GPIO event goroutine for every edge.
type EdgeHandler interface {
	OnEdge(timestamp time.Duration, level int) (string, bool)
}

type Config struct {
	Chip   string
	Offset int
}

// Input is the source-select switch: one pulled-up input line reporting both
// edges. It also serves as the level reader the debounce filter resamples.
type Input struct {
	cfg     Config
	handler EdgeHandler
	line    atomic.Pointer[gpiocdev.Line]
	// closed once line is stored; events wait for it so a resample in the
	// handler sees the line
	ready chan struct{}

	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Input {
	ready := make(chan struct{})
	close(ready)

	return &Input{
		cfg:    cfg,
		ready:  ready,
		logger: logger.Named("button"),
	}
}

// Start requests the line and routes its edges to handler.
func (r *Input) Start(handler EdgeHandler) error {
	if r.line.Load() != nil {
		return ErrOpen
	}
	r.handler = handler

	ready := make(chan struct{})
	r.ready = ready
	defer close(ready)

	line, err := gpiocdev.RequestLine(r.cfg.Chip, r.cfg.Offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(consumer),
		gpiocdev.WithEventHandler(r.onEvent),
	)
	if err != nil {
		return fmt.Errorf("request %s line %d: %w", r.cfg.Chip, r.cfg.Offset, err)
	}
	r.line.Store(line)

	level, err := line.Value()
	if err != nil {
		r.logger.Warn("read initial level", zap.Error(err))
	}
	r.logger.Info("watching switch",
		zap.String("chip", r.cfg.Chip),
		zap.Int("offset", r.cfg.Offset),
		zap.Int("level", level),
	)

	return nil
}

// Value samples the line now.
func (r *Input) Value() (int, error) {
	line := r.line.Load()
	if line == nil {
		return 0, ErrNotOpen
	}

	return line.Value()
}

func (r *Input) onEvent(evt gpiocdev.LineEvent) {
	if r.handler == nil {
		return
	}
	<-r.ready
	r.handler.OnEdge(evt.Timestamp, levelOf(evt.Type))
}

func levelOf(t gpiocdev.LineEventType) int {
	if t == gpiocdev.LineEventRisingEdge {
		return 1
	}
	return 0
}

// Close releases the line. Safe to call more than once.
func (r *Input) Close() error {
	line := r.line.Swap(nil)
	if line == nil {
		return nil
	}

	if err := line.Close(); err != nil {
		return fmt.Errorf("release button line: %w", err)
	}
	r.logger.Debug("line released")

	return nil
}
