package loop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ledMatrix/display/internal/compositor"
	"ledMatrix/display/internal/matrix"
	"ledMatrix/display/internal/receiver"
	"ledMatrix/display/internal/selector"
	"ledMatrix/display/internal/telemetry"
	"ledMatrix/pkg/transport"
)

const (
	width  = 8
	height = 4
)

// step is one scripted receive. before runs first, so a step can model a
// button press arriving while the loop waits.
type step struct {
	env    *transport.Envelope
	err    error
	before func()
}

type scriptedReceiver struct {
	steps    []step
	calls    int
	events   *[]string
	onFinish error
}

func (s *scriptedReceiver) Receive(ctx context.Context, _ time.Duration) (*transport.Envelope, error) {
	*s.events = append(*s.events, "receive")
	s.calls++
	if len(s.steps) == 0 {
		if s.onFinish != nil {
			return nil, s.onFinish
		}
		return nil, fmt.Errorf("%w: script done", receiver.ErrShutdown)
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	if next.before != nil {
		next.before()
	}
	return next.env, next.err
}

type fakeConnector struct {
	events *[]string
}

func (c fakeConnector) Connect(_ context.Context, address string) {
	*c.events = append(*c.events, "connect "+address)
}

func (c fakeConnector) Close() {
	*c.events = append(*c.events, "close")
}

// fakePanel swaps immediately and keeps a copy of every shown frame.
type fakePanel struct {
	visible *matrix.FrameCanvas
	shown   []*matrix.FrameCanvas
	drop    bool
	events  *[]string
}

func (p *fakePanel) Width() int  { return width }
func (p *fakePanel) Height() int { return height }

func (p *fakePanel) CreateFrameCanvas() *matrix.FrameCanvas {
	return matrix.NewFrameCanvas(width, height)
}

func (p *fakePanel) SwapOnVSync(next *matrix.FrameCanvas) *matrix.FrameCanvas {
	if p.drop {
		return next
	}

	shot := matrix.NewFrameCanvas(width, height)
	for y := 0; y < height; y++ {
		copy(shot.Row(y), next.Row(y))
	}
	p.shown = append(p.shown, shot)

	prev := p.visible
	if prev == nil {
		prev = matrix.NewFrameCanvas(width, height)
	}
	p.visible = next

	return prev
}

func (p *fakePanel) Clear() {
	*p.events = append(*p.events, "clear")
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type harness struct {
	events   []string
	selector *selector.Selector
	receiver *scriptedReceiver
	panel    *fakePanel
	recorder *telemetry.Aggregator
	closed   int
	loop     *Loop
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()

	h := &harness{
		selector: selector.New("tcp://primary:5555"),
		recorder: telemetry.New(),
	}
	h.receiver = &scriptedReceiver{steps: steps, events: &h.events}
	h.panel = &fakePanel{events: &h.events}

	logger := zaptest.NewLogger(t)
	h.loop = New(Deps{
		Selector:   h.selector,
		Connector:  fakeConnector{events: &h.events},
		Receiver:   h.receiver,
		Compositor: compositor.New(nil, logger),
		Panel:      h.panel,
		Recorder:   h.recorder,
		Closers: []io.Closer{closerFunc(func() error {
			h.events = append(h.events, "release input")
			h.closed++
			return nil
		})},
	}, time.Second, logger)

	return h
}

func frame(t *testing.T, c color.NRGBA) *transport.Envelope {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return &transport.Envelope{Topic: []byte(transport.DefaultTopic), Payload: buf.Bytes()}
}

func TestInitialConnectBeforeFirstReceive(t *testing.T) {
	h := newHarness(t)

	_, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(h.events), 2)
	assert.Equal(t, []string{"connect tcp://primary:5555", "receive"}, h.events[:2])
}

func TestFramesAreShownAndRecorded(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	h := newHarness(t,
		step{env: frame(t, red)},
		step{},
		step{env: frame(t, blue)},
	)

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.panel.shown, 2)
	assert.Equal(t, matrix.RGB{R: 255}, h.panel.shown[0].At(3, 2))
	assert.Equal(t, matrix.RGB{B: 255}, h.panel.shown[1].At(7, 3))

	assert.Equal(t, 2, report.Frames)
	// the first frame has no predecessor to measure an interval against
	assert.Equal(t, 1, report.FPS.Count)
	assert.Equal(t, PhaseTerminated, h.loop.Phase())
}

func TestQuarterSecondBetweenFramesIsFourFPS(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t,
		step{env: frame(t, color.NRGBA{255, 0, 0, 255})},
		step{env: frame(t, color.NRGBA{0, 0, 255, 255}), before: func() { clock = clock.Add(250 * time.Millisecond) }},
	)
	h.loop.now = func() time.Time { return clock }

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Frames)
	assert.Equal(t, telemetry.Summary{Count: 1, Min: 4, Max: 4, Mean: 4}, report.FPS)
	assert.Equal(t, 4.0, h.recorder.Snapshot().LastFPS)
	assert.Equal(t, 250.0, report.ReceiveLatencyMs.Max)
}

func TestBadFrameSkipped(t *testing.T) {
	h := newHarness(t,
		step{env: &transport.Envelope{Topic: []byte(transport.DefaultTopic), Payload: []byte("garbage")}},
		step{env: &transport.Envelope{Topic: []byte(transport.DefaultTopic)}},
		step{env: frame(t, color.NRGBA{0, 255, 0, 255})},
	)

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.panel.shown, 1)
	assert.Equal(t, matrix.RGB{G: 255}, h.panel.shown[0].At(0, 0))
	assert.Equal(t, 1, report.Frames)
}

func TestDroppedSwapNotRecorded(t *testing.T) {
	h := newHarness(t, step{env: frame(t, color.NRGBA{255, 255, 255, 255})})
	h.panel.drop = true

	report, err := h.loop.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Frames)
}

func TestSourceChangeActionedAfterIteration(t *testing.T) {
	h := newHarness(t)
	h.receiver.steps = []step{
		{before: func() {
			h.selector.RequestChange("tcp://secondary:5555")
			h.selector.RequestChange("tcp://primary:5555")
			h.selector.RequestChange("tcp://secondary:5555")
		}},
		{},
	}

	_, err := h.loop.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"connect tcp://primary:5555",
		"receive",
		"connect tcp://secondary:5555",
		"receive",
		"receive",
		"close", "clear", "release input",
	}, h.events)
}

func TestCancelledContextDrains(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.receiver.steps = []step{{before: cancel}}

	report, err := h.loop.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, telemetry.Report{}, report)
	assert.Equal(t, []string{
		"connect tcp://primary:5555",
		"receive",
		"close", "clear", "release input",
	}, h.events)
	assert.Equal(t, 1, h.closed)
}

func TestReceiverAbortEndsRun(t *testing.T) {
	h := newHarness(t)
	h.receiver.onFinish = fmt.Errorf("%w: 3 in a row", receiver.ErrTooManyErrors)

	_, err := h.loop.Run(context.Background())
	assert.ErrorIs(t, err, receiver.ErrTooManyErrors)
	assert.Equal(t, PhaseTerminated, h.loop.Phase())
	assert.Equal(t, 1, h.closed)
}

func TestCloserErrorsDoNotStopDrain(t *testing.T) {
	h := newHarness(t)
	var second bool
	h.loop.deps.Closers = []io.Closer{
		closerFunc(func() error { return errors.New("busy") }),
		closerFunc(func() error { second = true; return nil }),
	}

	_, err := h.loop.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, second)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "running", PhaseRunning.String())
	assert.Equal(t, "draining", PhaseDraining.String())
	assert.Equal(t, "terminated", PhaseTerminated.String())
}
