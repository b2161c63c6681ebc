package telemetry

import (
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrNoData = errors.New("no frames recorded")

// Sample is one displayed frame. FPS is only meaningful when HasFPS is set,
// which requires a positive interval to the previous frame.
type Sample struct {
	FrameLatencyMs   float64
	ReceiveLatencyMs float64
	FPS              float64
	HasFPS           bool
}

// Summary is min, max, mean and sample standard deviation of one measure.
// StdDev is undefined (StdDevValid false) below two values.
type Summary struct {
	Count       int     `json:"count"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stddev"`
	StdDevValid bool    `json:"stddev_valid"`
}

func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("count", s.Count)
	if s.Count == 0 {
		// a zero here would read as a measured 0
		for _, key := range []string{"min", "max", "mean", "stddev"} {
			enc.AddString(key, "n/a")
		}
		return nil
	}
	enc.AddFloat64("min", s.Min)
	enc.AddFloat64("max", s.Max)
	enc.AddFloat64("mean", s.Mean)
	if s.StdDevValid {
		enc.AddFloat64("stddev", s.StdDev)
	} else {
		enc.AddString("stddev", "n/a")
	}
	return nil
}

type Report struct {
	Frames           int       `json:"frames"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	FPS              Summary   `json:"fps"`
	FrameLatencyMs   Summary   `json:"frame_latency_ms"`
	ReceiveLatencyMs Summary   `json:"receive_latency_ms"`
}

// Fields renders the report for a zap log line.
func (r Report) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("frames", r.Frames),
		zap.Duration("duration", r.FinishedAt.Sub(r.StartedAt)),
		zap.Object("fps", r.FPS),
		zap.Object("frame_latency_ms", r.FrameLatencyMs),
		zap.Object("receive_latency_ms", r.ReceiveLatencyMs),
	}
}

type Snapshot struct {
	Frames  int     `json:"frames"`
	LastFPS float64 `json:"last_fps"`
	MeanFPS float64 `json:"mean_fps"`
}

// Aggregator keeps every sample of a run. Record is called by the control
// loop only; Snapshot may be called concurrently.
type Aggregator struct {
	mu      sync.Mutex
	samples []Sample
	fpsSum  float64
	fpsN    int
	lastFPS float64
	started time.Time

	now func() time.Time
}

func New() *Aggregator {
	a := &Aggregator{now: time.Now}
	a.started = a.now()
	return a
}

func (r *Aggregator) Record(frameLatencyMs, receiveLatencyMs, intervalMs float64) {
	s := Sample{
		FrameLatencyMs:   frameLatencyMs,
		ReceiveLatencyMs: receiveLatencyMs,
	}
	if intervalMs > 0 {
		s.FPS = 1000 / intervalMs
		s.HasFPS = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, s)
	if s.HasFPS {
		r.fpsSum += s.FPS
		r.fpsN++
		r.lastFPS = s.FPS
	}
}

func (r *Aggregator) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{Frames: len(r.samples), LastFPS: r.lastFPS}
	if r.fpsN > 0 {
		snap.MeanFPS = r.fpsSum / float64(r.fpsN)
	}

	return snap
}

// Finalize aggregates everything recorded so far.
func (r *Aggregator) Finalize() (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		return Report{}, ErrNoData
	}

	fps := make([]float64, 0, len(r.samples))
	frame := make([]float64, 0, len(r.samples))
	recv := make([]float64, 0, len(r.samples))
	for _, s := range r.samples {
		if s.HasFPS {
			fps = append(fps, s.FPS)
		}
		frame = append(frame, s.FrameLatencyMs)
		recv = append(recv, s.ReceiveLatencyMs)
	}

	return Report{
		Frames:           len(r.samples),
		StartedAt:        r.started,
		FinishedAt:       r.now(),
		FPS:              Summarize(fps),
		FrameLatencyMs:   Summarize(frame),
		ReceiveLatencyMs: Summarize(recv),
	}, nil
}

// Summarize computes a Summary. An empty input gives the zero Summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	s := Summary{
		Count: len(values),
		Min:   values[0],
		Max:   values[0],
	}

	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))

	if len(values) < 2 {
		return s
	}

	var sq float64
	for _, v := range values {
		d := v - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(len(values)-1))
	s.StdDevValid = true

	return s
}
