package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

const (
	zmqDialTimeout = 500 * time.Millisecond
	zmqRedial      = 250 * time.Millisecond
)

// zmqSubscriber behaves like a libzmq SUB socket: Connect never waits for
// the publisher, and the reader goroutine dials, and redials after a lost
// connection, until Disconnect.
type zmqSubscriber struct {
	address string
	ctx     context.Context
	cancel  context.CancelFunc
	pump    *pump

	mu     sync.Mutex
	sock   zmq4.Socket
	topics []string

	redial time.Duration
	logger *zap.Logger
}

func newZMQSubscriber(logger *zap.Logger) *zmqSubscriber {
	return &zmqSubscriber{
		redial: zmqRedial,
		logger: logger.Named("zmq"),
	}
}

func (r *zmqSubscriber) Connect(_ context.Context, address string) error {
	if r.cancel != nil {
		return fmt.Errorf("connect %s: already connected to %s", address, r.address)
	}

	network, endpoint, ok := strings.Cut(address, "://")
	if !ok || endpoint == "" || (network != "tcp" && network != "ipc") {
		return fmt.Errorf("%q: %w", address, ErrInvalidAddress)
	}

	// the session outlives the caller's context; Disconnect ends it
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.address = address

	r.logger.Debug("connecting", zap.String("address", address))

	return nil
}

func (r *zmqSubscriber) Subscribe(topic []byte) error {
	if r.cancel == nil {
		return ErrNotConnected
	}

	r.mu.Lock()
	r.topics = append(r.topics, string(topic))
	sock := r.sock
	r.mu.Unlock()

	if sock != nil {
		if err := sock.SetOption(zmq4.OptionSubscribe, string(topic)); err != nil {
			return fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}

	if r.pump == nil {
		r.pump = startPump(r.read, func(err error) bool {
			return errors.Is(err, ErrConnectionLost)
		})
	}

	return nil
}

// read runs on the pump goroutine.
func (r *zmqSubscriber) read() ([]byte, error) {
	sock, err := r.socket()
	if err != nil {
		return nil, err
	}

	msg, err := sock.Recv()
	if err != nil {
		// whoever detaches the socket closes it
		r.mu.Lock()
		owned := r.sock == sock
		if owned {
			r.sock = nil
		}
		r.mu.Unlock()
		if owned {
			_ = sock.Close()
		}

		if r.ctx.Err() != nil {
			return nil, ErrClosed
		}
		r.logger.Warn("publisher connection lost", zap.String("address", r.address), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionLost, r.address, err)
	}

	return bytes.Join(msg.Frames, nil), nil
}

// socket returns the live socket, dialing until one is up or the session
// ends.
func (r *zmqSubscriber) socket() (zmq4.Socket, error) {
	r.mu.Lock()
	sock := r.sock
	r.mu.Unlock()
	if sock != nil {
		return sock, nil
	}

	for attempt := 1; ; attempt++ {
		if r.ctx.Err() != nil {
			return nil, ErrClosed
		}

		sock, err := r.dial()
		if err == nil {
			r.mu.Lock()
			if r.ctx.Err() != nil {
				r.mu.Unlock()
				_ = sock.Close()
				return nil, ErrClosed
			}
			r.sock = sock
			r.mu.Unlock()

			r.logger.Info("connected", zap.String("address", r.address), zap.Int("attempts", attempt))
			return sock, nil
		}

		if attempt == 1 {
			r.logger.Warn("publisher unreachable, retrying", zap.String("address", r.address), zap.Error(err))
		} else if ce := r.logger.Check(zap.DebugLevel, "dial failed"); ce != nil {
			ce.Write(zap.Int("attempt", attempt), zap.Error(err))
		}

		select {
		case <-r.ctx.Done():
			return nil, ErrClosed
		case <-time.After(r.redial):
		}
	}
}

// dial makes one bounded attempt. The socket carries the subscriptions so
// they reach the publisher as soon as the connection is up.
func (r *zmqSubscriber) dial() (zmq4.Socket, error) {
	sock := zmq4.NewSub(r.ctx,
		zmq4.WithDialerTimeout(zmqDialTimeout),
		zmq4.WithDialerMaxRetries(0),
		zmq4.WithAutomaticReconnect(false),
	)

	r.mu.Lock()
	topics := append([]string(nil), r.topics...)
	r.mu.Unlock()

	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			_ = sock.Close()
			return nil, fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}

	if err := sock.Dial(r.address); err != nil {
		_ = sock.Close()
		return nil, err
	}

	return sock, nil
}

func (r *zmqSubscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if r.pump == nil {
		return nil, newError(KindFatal, "zmq receive", ErrNotSubscribed)
	}

	return r.pump.receive(ctx, "zmq receive", timeout)
}

func (r *zmqSubscriber) Disconnect() error {
	if r.cancel == nil {
		return ErrNotConnected
	}

	if r.pump != nil {
		r.pump.stop()
	}
	r.cancel()

	r.mu.Lock()
	sock := r.sock
	r.sock, r.topics = nil, nil
	r.mu.Unlock()

	var err error
	if sock != nil {
		err = sock.Close()
	}
	if r.pump != nil {
		r.pump.wait()
	}

	r.pump, r.cancel, r.address = nil, nil, ""

	if err != nil {
		return fmt.Errorf("close zmq socket: %w", err)
	}

	return nil
}

type zmqPublisher struct {
	sock   zmq4.Socket
	cancel context.CancelFunc
	logger *zap.Logger
}

func newZMQPublisher(logger *zap.Logger) *zmqPublisher {
	return &zmqPublisher{logger: logger.Named("zmq")}
}

func (r *zmqPublisher) Bind(_ context.Context, address string) error {
	sockCtx, cancel := context.WithCancel(context.Background())
	sock := zmq4.NewPub(sockCtx)

	if err := sock.Listen(address); err != nil {
		cancel()
		_ = sock.Close()
		return fmt.Errorf("listen %s: %w", address, err)
	}

	r.sock = sock
	r.cancel = cancel
	r.logger.Info("publisher bound", zap.String("address", address))

	return nil
}

func (r *zmqPublisher) Publish(_ context.Context, topic, payload []byte) error {
	if r.sock == nil {
		return ErrPublisherClosed
	}

	if err := r.sock.Send(zmq4.NewMsg(Join(topic, payload))); err != nil {
		return fmt.Errorf("zmq send: %w", err)
	}

	return nil
}

func (r *zmqPublisher) Close() error {
	if r.sock == nil {
		return nil
	}

	defer r.cancel()
	err := r.sock.Close()
	r.sock = nil

	return err
}
