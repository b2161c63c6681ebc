package transport

import (
	"context"
	"sync"
	"time"
)

// pump adapts a blocking read into a receive with timeout. The channel is
// unbuffered: at most one message is waiting in the reader goroutine.
// The reader stops at the first failed read unless keep reports the error
// as recoverable.
type pump struct {
	keep func(error) bool

	msgs chan []byte
	errs chan error
	dead chan struct{}
	done chan struct{}

	once sync.Once
	wg   sync.WaitGroup

	mu   sync.Mutex
	last error
}

func startPump(read func() ([]byte, error), keep func(error) bool) *pump {
	p := &pump{
		keep: keep,
		msgs: make(chan []byte),
		errs: make(chan error),
		dead: make(chan struct{}),
		done: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run(read)

	return p
}

func (p *pump) run(read func() ([]byte, error)) {
	defer p.wg.Done()
	defer close(p.dead)

	for {
		body, err := read()
		if err != nil {
			p.mu.Lock()
			p.last = err
			p.mu.Unlock()

			select {
			case p.errs <- err:
			case <-p.done:
				return
			}
			if p.keep != nil && p.keep(err) {
				continue
			}
			return
		}

		select {
		case p.msgs <- body:
		case <-p.done:
			return
		}
	}
}

func (p *pump) receive(ctx context.Context, op string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case body := <-p.msgs:
		return body, nil
	case err := <-p.errs:
		return nil, classify(ctx, op, err)
	case <-ctx.Done():
		return nil, newError(KindShutdown, op, ctx.Err())
	case <-timer.C:
		return nil, newError(KindTimeout, op, ErrTimeout)
	case <-p.dead:
	}

	// reader already gone: pace the caller by the timeout before repeating
	// the failure
	select {
	case <-ctx.Done():
		return nil, newError(KindShutdown, op, ctx.Err())
	case <-timer.C:
	}

	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last == nil {
		last = ErrClosed
	}

	return nil, newError(KindFatal, op, last)
}

// stop signals the reader goroutine; close the underlying socket first so a
// blocked read returns, then wait.
func (p *pump) stop() {
	p.once.Do(func() { close(p.done) })
}

func (p *pump) wait() {
	p.wg.Wait()
}
