package debounce

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ledMatrix/display/internal/selector"
)

const (
	primary   = "tcp://primary:5555"
	secondary = "tcp://secondary:5555"
)

type fakePin struct {
	level int
	err   error
	reads int
}

func (p *fakePin) Value() (int, error) {
	p.reads++
	return p.level, p.err
}

func newFilter(t *testing.T, pin *fakePin) (*Filter, *selector.Selector, *[]time.Duration) {
	t.Helper()

	sel := selector.New("")
	f := New(Config{Window: DefaultWindow, Settle: DefaultSettle, High: primary, Low: secondary}, pin, sel, zaptest.NewLogger(t))

	var sleeps []time.Duration
	f.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	return f, sel, &sleeps
}

func TestFirstEdgeAccepted(t *testing.T) {
	pin := &fakePin{level: 0}
	f, sel, sleeps := newFilter(t, pin)

	addr, ok := f.OnEdge(5*time.Second, 0)
	require.True(t, ok)
	assert.Equal(t, secondary, addr)
	assert.Equal(t, []time.Duration{DefaultSettle}, *sleeps)

	got, pending := sel.TakeIfPending()
	assert.True(t, pending)
	assert.Equal(t, secondary, got)
}

func TestEdgesInsideWindowCollapse(t *testing.T) {
	pin := &fakePin{level: 1}
	f, sel, sleeps := newFilter(t, pin)

	base := time.Second
	_, ok := f.OnEdge(base, 1)
	require.True(t, ok)

	for _, dt := range []time.Duration{time.Millisecond, 5 * time.Millisecond, 19 * time.Millisecond, DefaultWindow} {
		_, ok := f.OnEdge(base+dt, 0)
		assert.False(t, ok, "edge %v after accepted one", dt)
	}

	assert.Equal(t, 1, pin.reads)
	assert.Len(t, *sleeps, 1)

	addr, pending := sel.TakeIfPending()
	assert.True(t, pending)
	assert.Equal(t, primary, addr)
	_, pending = sel.TakeIfPending()
	assert.False(t, pending)
}

func TestEdgeAfterWindowAccepted(t *testing.T) {
	pin := &fakePin{level: 1}
	f, _, _ := newFilter(t, pin)

	_, ok := f.OnEdge(time.Second, 1)
	require.True(t, ok)

	pin.level = 0
	addr, ok := f.OnEdge(time.Second+DefaultWindow+time.Microsecond, 1)
	require.True(t, ok)
	assert.Equal(t, secondary, addr)
}

func TestRejectedEdgesDoNotExtendWindow(t *testing.T) {
	pin := &fakePin{level: 1}
	f, _, _ := newFilter(t, pin)

	_, ok := f.OnEdge(0, 1)
	require.True(t, ok)
	_, ok = f.OnEdge(15*time.Millisecond, 0)
	require.False(t, ok)

	// 25ms after the accepted edge, 10ms after the rejected one
	_, ok = f.OnEdge(25*time.Millisecond, 0)
	assert.True(t, ok)
}

func TestDecisionUsesResampledLevel(t *testing.T) {
	pin := &fakePin{level: 1}
	f, _, _ := newFilter(t, pin)

	// edge reports low but the pin settled high
	addr, ok := f.OnEdge(time.Second, 0)
	require.True(t, ok)
	assert.Equal(t, primary, addr)
}

func TestResampleFailureYieldsNoDecision(t *testing.T) {
	pin := &fakePin{err: errors.New("line closed")}
	f, sel, _ := newFilter(t, pin)

	_, ok := f.OnEdge(time.Second, 1)
	assert.False(t, ok)

	_, pending := sel.TakeIfPending()
	assert.False(t, pending)
}

func TestResampleFailureDoesNotOpenWindow(t *testing.T) {
	pin := &fakePin{err: errors.New("line not requested"), level: 1}
	f, sel, _ := newFilter(t, pin)

	_, ok := f.OnEdge(time.Second, 1)
	require.False(t, ok)

	// the next bounce of the same press still gets a decision
	pin.err = nil
	addr, ok := f.OnEdge(time.Second+5*time.Millisecond, 1)
	require.True(t, ok)
	assert.Equal(t, primary, addr)

	got, pending := sel.TakeIfPending()
	assert.True(t, pending)
	assert.Equal(t, primary, got)
}

func TestTimestampGoingBackwardsAccepted(t *testing.T) {
	pin := &fakePin{level: 0}
	f, _, _ := newFilter(t, pin)

	_, ok := f.OnEdge(10*time.Second, 1)
	require.True(t, ok)

	_, ok = f.OnEdge(time.Second, 1)
	assert.True(t, ok)
}
