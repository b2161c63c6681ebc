package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSplitAndJoin(t *testing.T) {
	body := Join([]byte(DefaultTopic), []byte{0x89, 'P', 'N', 'G'})
	assert.Equal(t, "/frames\x89PNG", string(body))

	env, err := Split(body, len(DefaultTopic))
	require.NoError(t, err)
	assert.True(t, env.Matches([]byte(DefaultTopic)))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, env.Payload)

	_, err = Split([]byte("/fr"), len(DefaultTopic))
	assert.ErrorIs(t, err, ErrShortMessage)

	env, err = Split([]byte(DefaultTopic), len(DefaultTopic))
	require.NoError(t, err)
	assert.Empty(t, env.Payload)
}

func TestKafkaTopic(t *testing.T) {
	assert.Equal(t, "frames", KafkaTopic([]byte("/frames")))
	assert.Equal(t, "a.b", KafkaTopic([]byte("/a/b/")))
}

func TestSchemeOf(t *testing.T) {
	cases := map[string]Scheme{
		"tcp://localhost:5555":      SchemeZMQ,
		"ipc:///tmp/frames":         SchemeZMQ,
		"redis://localhost:6379/0":  SchemeRedis,
		"kafka://b1:9092,b2:9092":   SchemeKafka,
		"ws://localhost:8090/v1/fr": SchemeWebsocket,
		"WSS://host/frames":         SchemeWebsocket,
	}
	for address, want := range cases {
		got, err := SchemeOf(address)
		require.NoError(t, err, address)
		assert.Equal(t, want, got, address)
	}

	_, err := SchemeOf("localhost:5555")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = SchemeOf("udp://localhost:5555")
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestKafkaBrokers(t *testing.T) {
	brokers, err := kafkaBrokers("kafka://b1:9092, b2:9092/ignored")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, brokers)

	_, err = kafkaBrokers("kafka://")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(nil))
	assert.Equal(t, KindShutdown, KindOf(fmt.Errorf("recv: %w", context.Canceled)))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, KindOf(os.ErrDeadlineExceeded))
	assert.Equal(t, KindFatal, KindOf(ErrClosed))
	assert.Equal(t, KindTransient, KindOf(errors.New("connection reset by peer")))
	assert.Equal(t, KindFatal, KindOf(fmt.Errorf("wrapped: %w", newError(KindFatal, "op", errors.New("x")))))
}

func TestClassifyPrefersShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classify(ctx, "recv", errors.New("socket closed"))
	assert.Equal(t, KindShutdown, KindOf(err))
}

func TestPumpTimeout(t *testing.T) {
	block := make(chan struct{})
	p := startPump(func() ([]byte, error) {
		<-block
		return nil, errors.New("closed")
	}, nil)
	defer func() {
		p.stop()
		close(block)
		p.wait()
	}()

	start := time.Now()
	_, err := p.receive(context.Background(), "test", 20*time.Millisecond)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPumpDeliversOneMessageAtATime(t *testing.T) {
	next := make(chan []byte)
	p := startPump(func() ([]byte, error) {
		b, ok := <-next
		if !ok {
			return nil, ErrClosed
		}
		return b, nil
	}, nil)

	go func() { next <- []byte("a") }()
	body, err := p.receive(context.Background(), "test", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a", string(body))

	close(next)
	_, err = p.receive(context.Background(), "test", time.Second)
	assert.Equal(t, KindFatal, KindOf(err))

	// reader is gone: later calls wait the timeout and repeat the failure
	start := time.Now()
	_, err = p.receive(context.Background(), "test", 10*time.Millisecond)
	assert.Equal(t, KindFatal, KindOf(err))
	assert.ErrorIs(t, err, ErrClosed)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	p.stop()
	p.wait()
}

func TestPumpKeepsReadingAfterRecoverableError(t *testing.T) {
	reads := make(chan error, 2)
	reads <- ErrConnectionLost
	reads <- nil
	p := startPump(func() ([]byte, error) {
		if err := <-reads; err != nil {
			return nil, err
		}
		return []byte("after"), nil
	}, func(err error) bool { return errors.Is(err, ErrConnectionLost) })

	_, err := p.receive(context.Background(), "test", time.Second)
	assert.Equal(t, KindTransient, KindOf(err))

	body, err := p.receive(context.Background(), "test", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after", string(body))

	close(reads)
	p.stop()
	p.wait()
}

func TestPumpShutdown(t *testing.T) {
	block := make(chan struct{})
	p := startPump(func() ([]byte, error) {
		<-block
		return nil, ErrClosed
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.receive(ctx, "test", time.Second)
	assert.Equal(t, KindShutdown, KindOf(err))

	p.stop()
	close(block)
	p.wait()
}

func TestWebsocketRoundTrip(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	pub := newWebsocketPublisher(logger)
	require.NoError(t, pub.Bind(ctx, "ws://127.0.0.1:0/v1/frames"))
	defer pub.Close()

	address := "ws://" + pub.addr.String() + "/v1/frames"
	sub, err := NewSubscriber(address, logger)
	require.NoError(t, err)
	require.NoError(t, sub.Connect(ctx, address))
	require.NoError(t, sub.Subscribe([]byte(DefaultTopic)))

	// the subscription reaches the publisher asynchronously
	var body []byte
	deadline := time.Now().Add(5 * time.Second)
	for body == nil && time.Now().Before(deadline) {
		require.NoError(t, pub.Publish(ctx, []byte(DefaultTopic), []byte("png")))
		body, err = sub.Receive(ctx, 50*time.Millisecond)
		if err != nil {
			require.Equal(t, KindTimeout, KindOf(err))
		}
	}
	assert.Equal(t, "/framespng", string(body))

	require.NoError(t, sub.Disconnect())
	assert.ErrorIs(t, sub.Disconnect(), ErrNotConnected)
}

func TestWebsocketPublisherFiltersOnPrefix(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	pub := newWebsocketPublisher(logger)
	require.NoError(t, pub.Bind(ctx, "ws://127.0.0.1:0/"))
	defer pub.Close()

	address := "ws://" + pub.addr.String() + "/"
	sub := newWebsocketSubscriber(logger)
	require.NoError(t, sub.Connect(ctx, address))
	require.NoError(t, sub.Subscribe([]byte("/other")))
	defer sub.Disconnect()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, pub.Publish(ctx, []byte(DefaultTopic), []byte("png")))

	_, err := sub.Receive(ctx, 100*time.Millisecond)
	assert.Equal(t, KindTimeout, KindOf(err))
}
