package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ledMatrix/pkg/transport"
)

// State is either Disconnected or Connected.
type State interface {
	state()
}

type Disconnected struct{}

type Connected struct {
	Address string
	// Session identifies one connect, so log lines of different connects to
	// the same address can be told apart.
	Session uuid.UUID
}

func (Disconnected) state() {}
func (Connected) state()    {}

// Clearer blanks the panel before a source switch.
type Clearer interface {
	Clear()
}

// Manager owns the single subscription handle. It is driven by the control
// loop only; State may be read from anywhere.
type Manager struct {
	topic   []byte
	factory transport.Factory
	panel   Clearer

	sub transport.Subscriber

	mu    sync.RWMutex
	state State

	logger *zap.Logger
}

func New(topic []byte, factory transport.Factory, panel Clearer, logger *zap.Logger) *Manager {
	if factory == nil {
		factory = transport.NewSubscriber
	}

	return &Manager{
		topic:   topic,
		factory: factory,
		panel:   panel,
		state:   Disconnected{},
		logger:  logger.Named("subscription"),
	}
}

// Connect switches the subscription to address. Failures are logged and leave
// the manager disconnected; the caller never sees them.
func (r *Manager) Connect(ctx context.Context, address string) {
	r.disconnect()

	r.panel.Clear()

	logger := r.logger.With(zap.String("address", address))

	sub, err := r.factory(address, r.logger)
	if err != nil {
		logger.Error("unsupported source", zap.Error(err))
		return
	}

	if err := sub.Connect(ctx, address); err != nil {
		logger.Error("connect failed", zap.Error(err))
		return
	}

	if err := sub.Subscribe(r.topic); err != nil {
		logger.Error("subscribe failed", zap.ByteString("topic", r.topic), zap.Error(err))
		if err := sub.Disconnect(); err != nil {
			logger.Warn("release failed subscription", zap.Error(err))
		}
		return
	}

	session := uuid.New()

	r.sub = sub
	r.setState(Connected{Address: address, Session: session})

	logger.Info("subscribed",
		zap.ByteString("topic", r.topic),
		zap.String("session", session.String()),
	)
}

// Receive reads one raw message from the live subscription. Without one it
// waits the timeout and reports a timeout, so the loop keeps its cadence.
func (r *Manager) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if r.sub != nil {
		return r.sub.Receive(ctx, timeout)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, &transport.Error{Kind: transport.KindShutdown, Op: "receive", Err: ctx.Err()}
	case <-timer.C:
		return nil, &transport.Error{Kind: transport.KindTimeout, Op: "receive", Err: transport.ErrNotConnected}
	}
}

// Close drops the subscription if there is one.
func (r *Manager) Close() {
	r.disconnect()
}

func (r *Manager) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

func (r *Manager) disconnect() {
	if r.sub == nil {
		return
	}

	prev := r.State()

	if err := r.sub.Disconnect(); err != nil {
		fields := []zap.Field{zap.Error(err)}
		if c, ok := prev.(Connected); ok {
			fields = append(fields, zap.String("address", c.Address))
		}
		r.logger.Warn("disconnect failed", fields...)
	}

	r.sub = nil
	r.setState(Disconnected{})
}

func (r *Manager) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
