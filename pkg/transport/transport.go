package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Subscriber is one pub/sub subscription handle. Connect and Subscribe are
// separate steps so a caller can re-issue the topic filter after connecting.
type Subscriber interface {
	Connect(ctx context.Context, address string) error
	Subscribe(topic []byte) error
	// Receive returns one raw message body or a *Error. It waits at most
	// timeout and returns a KindTimeout error when nothing arrived.
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Disconnect() error
}

// Publisher sends message bodies to subscribers.
type Publisher interface {
	Bind(ctx context.Context, address string) error
	Publish(ctx context.Context, topic, payload []byte) error
	Close() error
}

// Factory builds the subscriber matching an address.
type Factory func(address string, logger *zap.Logger) (Subscriber, error)

type Scheme string

const (
	SchemeZMQ       Scheme = "zmq"
	SchemeRedis     Scheme = "redis"
	SchemeKafka     Scheme = "kafka"
	SchemeWebsocket Scheme = "websocket"
)

// SchemeOf maps an address onto the transport that serves it.
func SchemeOf(address string) (Scheme, error) {
	i := strings.Index(address, "://")
	if i <= 0 {
		return "", fmt.Errorf("%q: %w", address, ErrInvalidAddress)
	}

	switch strings.ToLower(address[:i]) {
	case "tcp", "ipc", "inproc":
		return SchemeZMQ, nil
	case "redis", "rediss":
		return SchemeRedis, nil
	case "kafka":
		return SchemeKafka, nil
	case "ws", "wss":
		return SchemeWebsocket, nil
	default:
		return "", fmt.Errorf("%q: %w", address, ErrUnknownScheme)
	}
}

// NewSubscriber is the default Factory.
func NewSubscriber(address string, logger *zap.Logger) (Subscriber, error) {
	scheme, err := SchemeOf(address)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case SchemeZMQ:
		return newZMQSubscriber(logger), nil
	case SchemeRedis:
		return newRedisSubscriber(logger), nil
	case SchemeKafka:
		return newKafkaSubscriber(logger), nil
	default:
		return newWebsocketSubscriber(logger), nil
	}
}

// NewPublisher returns the publisher matching address.
func NewPublisher(address string, logger *zap.Logger) (Publisher, error) {
	scheme, err := SchemeOf(address)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case SchemeZMQ:
		return newZMQPublisher(logger), nil
	case SchemeRedis:
		return newRedisPublisher(logger), nil
	case SchemeKafka:
		return newKafkaPublisher(logger), nil
	default:
		return newWebsocketPublisher(logger), nil
	}
}

// kafkaBrokers parses kafka://host1:9092,host2:9092.
func kafkaBrokers(address string) ([]string, error) {
	rest := strings.TrimPrefix(address, "kafka://")
	rest, _, _ = strings.Cut(rest, "/")

	var brokers []string
	for _, b := range strings.Split(rest, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%q: no brokers: %w", address, ErrInvalidAddress)
	}

	return brokers, nil
}

// listenAddr turns ws://host:port/path into the host:port to listen on.
func listenAddr(address string) (string, string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", "", fmt.Errorf("%q: %w", address, ErrInvalidAddress)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%q: no host: %w", address, ErrInvalidAddress)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return u.Host, path, nil
}
