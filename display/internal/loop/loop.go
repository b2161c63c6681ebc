package loop

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"ledMatrix/display/internal/compositor"
	"ledMatrix/display/internal/matrix"
	"ledMatrix/display/internal/receiver"
	"ledMatrix/display/internal/telemetry"
	"ledMatrix/pkg/transport"
)

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseDraining
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type Selector interface {
	TakeIfPending() (string, bool)
}

type Connector interface {
	Connect(ctx context.Context, address string)
	Close()
}

type FrameReceiver interface {
	Receive(ctx context.Context, timeout time.Duration) (*transport.Envelope, error)
}

type Compositor interface {
	Composite(payload []byte, width, height int, dst compositor.Canvas) error
}

type Panel interface {
	Width() int
	Height() int
	CreateFrameCanvas() *matrix.FrameCanvas
	SwapOnVSync(next *matrix.FrameCanvas) *matrix.FrameCanvas
	Clear()
}

type Recorder interface {
	Record(frameLatencyMs, receiveLatencyMs, intervalMs float64)
	Finalize() (telemetry.Report, error)
}

type Deps struct {
	Selector   Selector
	Connector  Connector
	Receiver   FrameReceiver
	Compositor Compositor
	Panel      Panel
	Recorder   Recorder
	// Closers are released while draining, after the subscription is gone
	// and the panel is dark. The button input goes here.
	Closers []io.Closer
}

// Loop is the display control loop: receive a frame, composite it off screen,
// swap it in, record its timing, action a pending source change.
type Loop struct {
	deps    Deps
	timeout time.Duration
	phase   atomic.Int32
	now     func() time.Time

	logger *zap.Logger
}

func New(deps Deps, receiveTimeout time.Duration, logger *zap.Logger) *Loop {
	return &Loop{
		deps:    deps,
		timeout: receiveTimeout,
		now:     time.Now,
		logger:  logger.Named("loop"),
	}
}

func (r *Loop) Phase() Phase {
	return Phase(r.phase.Load())
}

// Run drives the loop until ctx is cancelled or the receiver gives up, then
// drains and returns the run report. The error is the receiver's when it
// ended the run; a run without frames gives a zero report.
func (r *Loop) Run(ctx context.Context) (telemetry.Report, error) {
	r.phase.Store(int32(PhaseRunning))
	r.logger.Info("running", zap.Duration("receive_timeout", r.timeout))

	// the default source is pending from the start
	r.switchIfPending(ctx)

	runErr := r.run(ctx)

	r.phase.Store(int32(PhaseDraining))
	if err := r.drain(); err != nil {
		r.logger.Warn("drain", zap.Error(err))
	}

	r.phase.Store(int32(PhaseTerminated))

	return r.finalize(), runErr
}

func (r *Loop) run(ctx context.Context) error {
	offscreen := r.deps.Panel.CreateFrameCanvas()

	var lastSwap time.Time
	for ctx.Err() == nil {
		start := r.now()
		env, err := r.deps.Receiver.Receive(ctx, r.timeout)
		received := r.now()

		if err != nil {
			if errors.Is(err, receiver.ErrShutdown) {
				return nil
			}
			r.logger.Error("receiver gave up", zap.Error(err))
			return err
		}

		if env != nil {
			offscreen, lastSwap = r.show(env, offscreen, start, received, lastSwap)
		}

		r.switchIfPending(ctx)
	}

	return nil
}

// show returns the canvas to draw the next frame into and the time of the
// last completed swap.
func (r *Loop) show(env *transport.Envelope, offscreen *matrix.FrameCanvas, start, received, lastSwap time.Time) (*matrix.FrameCanvas, time.Time) {
	panel := r.deps.Panel

	if err := r.deps.Compositor.Composite(env.Payload, panel.Width(), panel.Height(), offscreen); err != nil {
		r.logger.Warn("frame skipped", zap.Int("size", len(env.Payload)), zap.Error(err))
		return offscreen, lastSwap
	}

	prev := panel.SwapOnVSync(offscreen)
	if prev == offscreen {
		// dropped, nothing became visible
		return offscreen, lastSwap
	}
	swapped := r.now()

	var interval time.Duration
	if !lastSwap.IsZero() {
		interval = swapped.Sub(lastSwap)
	}
	r.deps.Recorder.Record(ms(swapped.Sub(received)), ms(received.Sub(start)), ms(interval))

	return prev, swapped
}

func (r *Loop) switchIfPending(ctx context.Context) {
	address, ok := r.deps.Selector.TakeIfPending()
	if !ok {
		return
	}

	r.logger.Info("switching source", zap.String("address", address))
	r.deps.Connector.Connect(ctx, address)
}

func (r *Loop) drain() error {
	r.logger.Info("draining")

	r.deps.Connector.Close()
	r.deps.Panel.Clear()

	var err error
	for _, c := range r.deps.Closers {
		err = multierr.Append(err, c.Close())
	}

	return err
}

func (r *Loop) finalize() telemetry.Report {
	report, err := r.deps.Recorder.Finalize()
	if err != nil {
		r.logger.Info("no frames displayed")
		return telemetry.Report{}
	}

	r.logger.Info("run report", report.Fields()...)

	return report
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
