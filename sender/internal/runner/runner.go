package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ledMatrix/sender/internal/entity"
	"ledMatrix/sender/internal/framer"
)

type Sink interface {
	Send(ctx context.Context, frame *entity.Frame) error
}

type Sources interface {
	Canonical(name string) (string, error)
	New(name string) (framer.Framer, error)
}

// Observer is told the source name each time a framer starts.
type Observer interface {
	SourceChanged(name string)
}

// Service produces one frame per tick from the current source and hands it
// to the sink. The source can be switched while it runs; the sink is never
// interrupted by a switch.
type Service struct {
	sources  Sources
	sink     Sink
	interval time.Duration

	mu         sync.Mutex
	current    string
	switchChan chan string
	observers  []Observer

	logger *zap.Logger
}

func New(sources Sources, initial string, sink Sink, fps int, logger *zap.Logger) *Service {
	return &Service{
		sources:    sources,
		sink:       sink,
		interval:   time.Second / time.Duration(fps),
		current:    initial,
		switchChan: make(chan string, 1),
		logger:     logger.Named("runner"),
	}
}

// AddObserver must be called before Run.
func (r *Service) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

func (r *Service) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Switch asks the loop to change source. Only the latest pending request is
// kept.
func (r *Service) Switch(name string) error {
	n, err := r.sources.Canonical(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.switchChan:
	default:
	}
	r.switchChan <- n

	return nil
}

func (r *Service) start(name string) (framer.Framer, error) {
	f, err := r.sources.New(name)
	if err != nil {
		return nil, err
	}
	if err := f.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return f, nil
}

func (r *Service) started(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()

	r.logger.Info("source started", zap.String("source", name))
	for _, o := range r.observers {
		o.SourceChanged(name)
	}
}

// change stops f and starts name in its place. If name fails to start, f is
// started again and keeps running.
func (r *Service) change(f framer.Framer, from, name string) (framer.Framer, error) {
	if err := f.Stop(); err != nil {
		r.logger.Warn("stop framer", zap.String("source", from), zap.Error(err))
	}

	next, err := r.start(name)
	if err == nil {
		r.started(name)
		return next, nil
	}
	r.logger.Error("switch source", zap.String("from", from), zap.String("to", name), zap.Error(err))

	if err := f.Start(); err != nil {
		return nil, fmt.Errorf("restart %s: %w", from, err)
	}
	return f, nil
}

// Run returns nil when ctx ends. A frame that fails to render is skipped.
func (r *Service) Run(ctx context.Context) error {
	name := r.Current()
	f, err := r.start(name)
	if err != nil {
		return fmt.Errorf("start framer: %w", err)
	}
	defer func() {
		// nil after a failed restart
		if f == nil {
			return
		}
		if err := f.Stop(); err != nil {
			r.logger.Warn("stop framer", zap.Error(err))
		}
	}()
	r.started(name)

	r.logger.Info("started service", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case next := <-r.switchChan:
			if f, err = r.change(f, name, next); err != nil {
				return err
			}
			name = r.Current()
			continue
		case <-ticker.C:
		}

		frame, err := f.Next()
		if err != nil {
			r.logger.Error("render frame", zap.String("source", name), zap.Error(err))
			continue
		}

		if err := r.sink.Send(ctx, frame); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("send frame %d: %w", frame.Sequence, err)
		}
	}
}
