package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"ledMatrix/pkg/transport"
)

var topic = []byte(transport.DefaultTopic)

type mockSubscriber struct {
	mock.Mock
	name  string
	calls *[]string
}

func (m *mockSubscriber) Connect(ctx context.Context, address string) error {
	*m.calls = append(*m.calls, m.name+".connect")
	return m.Called(address).Error(0)
}

func (m *mockSubscriber) Subscribe(topic []byte) error {
	*m.calls = append(*m.calls, m.name+".subscribe")
	return m.Called(topic).Error(0)
}

func (m *mockSubscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	args := m.Called(timeout)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

func (m *mockSubscriber) Disconnect() error {
	*m.calls = append(*m.calls, m.name+".disconnect")
	return m.Called().Error(0)
}

type fakePanel struct {
	calls *[]string
}

func (p fakePanel) Clear() {
	*p.calls = append(*p.calls, "clear")
}

type harness struct {
	calls   []string
	subs    map[string]*mockSubscriber
	manager *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{subs: map[string]*mockSubscriber{}}
	factory := func(address string, _ *zap.Logger) (transport.Subscriber, error) {
		sub, ok := h.subs[address]
		if !ok {
			return nil, transport.ErrUnknownScheme
		}
		return sub, nil
	}
	h.manager = New(topic, factory, fakePanel{calls: &h.calls}, zaptest.NewLogger(t))

	return h
}

func (h *harness) add(name, address string) *mockSubscriber {
	sub := &mockSubscriber{name: name, calls: &h.calls}
	h.subs[address] = sub
	return sub
}

func TestConnectSubscribes(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", "tcp://a:5555")
	a.On("Connect", "tcp://a:5555").Return(nil)
	a.On("Subscribe", topic).Return(nil)

	h.manager.Connect(context.Background(), "tcp://a:5555")

	state, ok := h.manager.State().(Connected)
	require.True(t, ok)
	assert.Equal(t, "tcp://a:5555", state.Address)
	assert.NotZero(t, state.Session)
	assert.Equal(t, []string{"clear", "a.connect", "a.subscribe"}, h.calls)
	a.AssertExpectations(t)
}

func TestSwitchDisconnectsFirst(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", "tcp://a:5555")
	a.On("Connect", "tcp://a:5555").Return(nil)
	a.On("Subscribe", topic).Return(nil)
	a.On("Disconnect").Return(nil)
	b := h.add("b", "tcp://b:5555")
	b.On("Connect", "tcp://b:5555").Return(nil)
	b.On("Subscribe", topic).Return(nil)

	ctx := context.Background()
	h.manager.Connect(ctx, "tcp://a:5555")
	first := h.manager.State().(Connected)
	h.manager.Connect(ctx, "tcp://b:5555")

	assert.Equal(t, []string{
		"clear", "a.connect", "a.subscribe",
		"a.disconnect", "clear", "b.connect", "b.subscribe",
	}, h.calls)

	second, ok := h.manager.State().(Connected)
	require.True(t, ok)
	assert.Equal(t, "tcp://b:5555", second.Address)
	assert.NotEqual(t, first.Session, second.Session)
}

func TestDisconnectFailureDoesNotBlockConnect(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", "tcp://a:5555")
	a.On("Connect", "tcp://a:5555").Return(nil)
	a.On("Subscribe", topic).Return(nil)
	a.On("Disconnect").Return(errors.New("socket gone"))
	b := h.add("b", "tcp://b:5555")
	b.On("Connect", "tcp://b:5555").Return(nil)
	b.On("Subscribe", topic).Return(nil)

	h.manager.Connect(context.Background(), "tcp://a:5555")
	h.manager.Connect(context.Background(), "tcp://b:5555")

	state, ok := h.manager.State().(Connected)
	require.True(t, ok)
	assert.Equal(t, "tcp://b:5555", state.Address)
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", "tcp://a:5555")
	a.On("Connect", "tcp://a:5555").Return(errors.New("connection refused"))

	h.manager.Connect(context.Background(), "tcp://a:5555")

	assert.Equal(t, Disconnected{}, h.manager.State())
	a.AssertNotCalled(t, "Subscribe", mock.Anything)
}

func TestSubscribeFailureReleasesHandle(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", "tcp://a:5555")
	a.On("Connect", "tcp://a:5555").Return(nil)
	a.On("Subscribe", topic).Return(errors.New("bad option"))
	a.On("Disconnect").Return(nil)

	h.manager.Connect(context.Background(), "tcp://a:5555")

	assert.Equal(t, Disconnected{}, h.manager.State())
	assert.Equal(t, []string{"clear", "a.connect", "a.subscribe", "a.disconnect"}, h.calls)

	// nothing left to disconnect
	h.manager.Close()
	a.AssertNumberOfCalls(t, "Disconnect", 1)
}

func TestUnknownSchemeLeavesDisconnected(t *testing.T) {
	h := newHarness(t)

	h.manager.Connect(context.Background(), "udp://nowhere")

	assert.Equal(t, Disconnected{}, h.manager.State())
	assert.Equal(t, []string{"clear"}, h.calls)
}

func TestReceiveForwards(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", "tcp://a:5555")
	a.On("Connect", "tcp://a:5555").Return(nil)
	a.On("Subscribe", topic).Return(nil)
	a.On("Receive", time.Second).Return([]byte("/framesX"), nil)

	h.manager.Connect(context.Background(), "tcp://a:5555")

	body, err := h.manager.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("/framesX"), body)
}

func TestReceiveWhileDisconnectedTimesOut(t *testing.T) {
	h := newHarness(t)

	start := time.Now()
	_, err := h.manager.Receive(context.Background(), 20*time.Millisecond)

	assert.Equal(t, transport.KindTimeout, transport.KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReceiveWhileDisconnectedHonoursShutdown(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.manager.Receive(ctx, time.Hour)
	assert.Equal(t, transport.KindShutdown, transport.KindOf(err))
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	a := h.add("a", "tcp://a:5555")
	a.On("Connect", "tcp://a:5555").Return(nil)
	a.On("Subscribe", topic).Return(nil)
	a.On("Disconnect").Return(nil)

	h.manager.Connect(context.Background(), "tcp://a:5555")
	h.manager.Close()
	h.manager.Close()

	assert.Equal(t, Disconnected{}, h.manager.State())
	a.AssertNumberOfCalls(t, "Disconnect", 1)
}
