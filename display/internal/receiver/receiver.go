package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ledMatrix/pkg/transport"
)

var (
	ErrShutdown      = errors.New("receive interrupted by shutdown")
	ErrTooManyErrors = errors.New("too many consecutive receive errors")
)

type Mode string

const (
	ModeContinue Mode = "continue"
	ModeAbort    Mode = "abort"
)

// ErrorPolicy decides what repeated transport errors do. In ModeAbort the
// receiver gives up after MaxConsecutive errors in a row; a frame or a
// timeout resets the count.
type ErrorPolicy struct {
	Mode           Mode
	MaxConsecutive int
}

// Source is the raw message stream, normally a *subscription.Manager.
type Source interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type Receiver struct {
	source Source
	topic  []byte
	policy ErrorPolicy

	failures int

	logger *zap.Logger
}

func New(source Source, topic []byte, policy ErrorPolicy, logger *zap.Logger) *Receiver {
	if policy.Mode == "" {
		policy.Mode = ModeContinue
	}

	return &Receiver{
		source: source,
		topic:  topic,
		policy: policy,
		logger: logger.Named("receiver"),
	}
}

// Receive waits at most timeout for one frame envelope. A nil envelope with a
// nil error means there is nothing to show this iteration. The only errors
// returned are ErrShutdown and ErrTooManyErrors, both of which end the loop.
func (r *Receiver) Receive(ctx context.Context, timeout time.Duration) (*transport.Envelope, error) {
	body, err := r.source.Receive(ctx, timeout)
	if err != nil {
		return nil, r.onError(err)
	}
	r.failures = 0

	env, err := transport.Split(body, len(r.topic))
	if err != nil {
		r.logger.Debug("dropped short message", zap.Int("size", len(body)))
		return nil, nil
	}
	if !env.Matches(r.topic) {
		r.logger.Debug("dropped foreign topic", zap.ByteString("topic", env.Topic))
		return nil, nil
	}

	return &env, nil
}

func (r *Receiver) onError(err error) error {
	kind := transport.KindOf(err)

	switch kind {
	case transport.KindTimeout:
		r.failures = 0
		return nil
	case transport.KindShutdown:
		return fmt.Errorf("%w: %w", ErrShutdown, err)
	}

	r.failures++
	r.logger.Warn("receive failed",
		zap.Stringer("kind", kind),
		zap.Int("consecutive", r.failures),
		zap.Error(err),
	)

	if r.policy.Mode == ModeAbort && r.failures >= r.policy.MaxConsecutive {
		return fmt.Errorf("%w: %d in a row: %w", ErrTooManyErrors, r.failures, err)
	}

	return nil
}
