package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"ledMatrix/pkg/transport"
	"ledMatrix/sender/internal/entity"
)

var ErrStopped = errors.New("publisher stopped")

type Factory func(address string, logger *zap.Logger) (transport.Publisher, error)

// Service publishes frames from its queue on one address. A failed publish
// is logged and the frame is lost; the next frame is tried regardless.
type Service struct {
	address string
	topic   []byte
	factory Factory

	pub       transport.Publisher
	frameChan chan *entity.Frame
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	stopped   bool

	sent   atomic.Int64
	failed atomic.Int64

	logger *zap.Logger
}

func New(address string, topic []byte, logger *zap.Logger) *Service {
	return &Service{
		address:   address,
		topic:     topic,
		factory:   transport.NewPublisher,
		frameChan: make(chan *entity.Frame, 1),
		wg:        new(sync.WaitGroup),
		logger:    logger.Named("publisher"),
	}
}

func (r *Service) Start(ctx context.Context) error {
	pub, err := r.factory(r.address, r.logger)
	if err != nil {
		return fmt.Errorf("publisher for %s: %w", r.address, err)
	}
	if err := pub.Bind(ctx, r.address); err != nil {
		return fmt.Errorf("bind %s: %w", r.address, err)
	}
	r.pub = pub

	r.wg.Add(1)
	go r.publish(ctx)

	r.logger.Info("start publisher", zap.String("address", r.address), zap.ByteString("topic", r.topic))

	return nil
}

func (r *Service) publish(ctx context.Context) {
	defer r.wg.Done()

	for f := range r.frameChan {
		if err := r.pub.Publish(ctx, r.topic, f.Payload); err != nil {
			r.failed.Add(1)
			r.logger.Error("publish frame failed", zap.String("frameID", f.ID), zap.Error(err))
			continue
		}
		r.sent.Add(1)

		if ce := r.logger.Check(zap.DebugLevel, "frame sent"); ce != nil {
			ce.Write(zap.Int32("sequence", f.Sequence), zap.Int("size", len(f.Payload)))
		}
	}
}

// Send queues a frame, waiting while the previous one is still queued.
func (r *Service) Send(ctx context.Context, frame *entity.Frame) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		return ErrStopped
	}

	select {
	case r.frameChan <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Service) Sent() int64   { return r.sent.Load() }
func (r *Service) Failed() int64 { return r.failed.Load() }

func (r *Service) Wait() {
	r.wg.Wait()
}

// Stop drains the queue and closes the publisher. Later sends return
// ErrStopped.
func (r *Service) Stop() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.frameChan)
	r.mu.Unlock()

	r.Wait()

	var err error
	if r.pub != nil {
		err = r.pub.Close()
	}
	r.logger.Info("publisher stopped", zap.Int64("sent", r.sent.Load()), zap.Int64("failed", r.failed.Load()))

	return err
}
