package debounce

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultWindow = 20 * time.Millisecond
	DefaultSettle = 10 * time.Millisecond
)

// LevelReader samples the current pin level.
type LevelReader interface {
	Value() (int, error)
}

// Sink receives accepted decisions. It must not block.
type Sink interface {
	RequestChange(address string)
}

type Config struct {
	Window time.Duration
	Settle time.Duration
	// High is selected when the settled level is 1 (pull-up, switch open),
	// Low when it is 0.
	High string
	Low  string
}

// Filter turns raw edge events into source-change decisions. OnEdge runs on
// the GPIO event goroutine: it only sleeps the settle delay, samples the pin
// and writes the sink.
type Filter struct {
	window time.Duration
	settle time.Duration
	high   string
	low    string

	reader LevelReader
	sink   Sink
	sleep  func(time.Duration)

	seen         atomic.Bool
	lastAccepted atomic.Int64

	logger *zap.Logger
}

func New(cfg Config, reader LevelReader, sink Sink, logger *zap.Logger) *Filter {
	return &Filter{
		window: cfg.Window,
		settle: cfg.Settle,
		high:   cfg.High,
		low:    cfg.Low,
		reader: reader,
		sink:   sink,
		sleep:  time.Sleep,
		logger: logger.Named("debounce"),
	}
}

// OnEdge handles one edge reported at timestamp (monotonic, as delivered by the
// GPIO driver). Edges no more than the window after the last accepted edge are
// rejected. For an accepted edge the decision comes from re-reading the pin
// after the settle delay; the reported level is only logged.
func (r *Filter) OnEdge(timestamp time.Duration, level int) (string, bool) {
	if r.seen.Load() {
		since := timestamp - time.Duration(r.lastAccepted.Load())
		if since >= 0 && since <= r.window {
			if ce := r.logger.Check(zap.DebugLevel, "edge rejected"); ce != nil {
				ce.Write(zap.Duration("since_accepted", since), zap.Int("level", level))
			}
			return "", false
		}
	}

	prevSeen, prev := r.seen.Load(), r.lastAccepted.Load()
	r.lastAccepted.Store(int64(timestamp))
	r.seen.Store(true)

	r.sleep(r.settle)

	settled, err := r.reader.Value()
	if err != nil {
		// no decision was made, so the edge does not open a window
		r.lastAccepted.Store(prev)
		r.seen.Store(prevSeen)
		r.logger.Warn("resample pin failed", zap.Error(err))
		return "", false
	}

	address := r.low
	if settled != 0 {
		address = r.high
	}
	r.sink.RequestChange(address)

	r.logger.Info("source change requested",
		zap.String("address", address),
		zap.Int("edge_level", level),
		zap.Int("settled_level", settled),
	)

	return address, true
}
