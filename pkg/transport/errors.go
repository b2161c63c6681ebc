package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the closed set of transport failure classes the display loop
// branches on.
type Kind int

const (
	// KindTimeout means no message arrived within the receive timeout.
	KindTimeout Kind = iota + 1
	// KindTransient covers errors the loop tolerates (network hiccups, bad reads).
	KindTransient
	// KindFatal means the subscription is unusable until it is reconnected.
	KindFatal
	// KindShutdown means the receive was interrupted by a requested shutdown.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

var (
	ErrTimeout         = errors.New("receive timeout")
	ErrNotConnected    = errors.New("not connected")
	ErrNotSubscribed   = errors.New("not subscribed")
	ErrClosed          = errors.New("subscription closed")
	ErrUnknownScheme   = errors.New("unknown address scheme")
	ErrShortMessage    = errors.New("message shorter than topic")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrPublisherClosed = errors.New("publisher closed")
	ErrConnectionLost  = errors.New("connection lost")
)

// Error tags a transport failure with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. A nil error has no kind (0).
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}

	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindShutdown
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}

	// the subscriber redials on its own
	if errors.Is(err, ErrConnectionLost) {
		return KindTransient
	}

	if errors.Is(err, ErrClosed) || errors.Is(err, net.ErrClosed) {
		return KindFatal
	}

	return KindTransient
}

// classify wraps a raw library error with the Kind KindOf assigns it, unless
// the receive context was cancelled, in which case it is a shutdown.
func classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return newError(KindShutdown, op, ctx.Err())
	}

	return newError(KindOf(err), op, err)
}
