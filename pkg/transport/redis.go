package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisSubscribeTimeout = 5 * time.Second

type redisSubscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	logger *zap.Logger
}

func newRedisSubscriber(logger *zap.Logger) *redisSubscriber {
	return &redisSubscriber{logger: logger.Named("redis")}
}

// NewRedisClient parses a redis:// URL and checks the server answers.
func NewRedisClient(ctx context.Context, address string) (*redis.Client, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", address, err)
	}

	client := redis.NewClient(opts)

	status := client.Ping(ctx)
	if err := status.Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Addr, err)
	}

	return client, nil
}

func (r *redisSubscriber) Connect(ctx context.Context, address string) error {
	if r.client != nil {
		return fmt.Errorf("connect %s: already connected", address)
	}

	client, err := NewRedisClient(ctx, address)
	if err != nil {
		return err
	}

	r.client = client

	return nil
}

func (r *redisSubscriber) Subscribe(topic []byte) error {
	if r.client == nil {
		return ErrNotConnected
	}
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisSubscribeTimeout)
	defer cancel()

	pubsub := r.client.Subscribe(ctx, string(topic))
	// wait for the subscription confirmation so no frame published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %q: %w", topic, err)
	}

	r.pubsub = pubsub

	return nil
}

func (r *redisSubscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if r.pubsub == nil {
		return nil, newError(KindFatal, "redis receive", ErrNotSubscribed)
	}

	msg, err := r.pubsub.ReceiveTimeout(ctx, timeout)
	if err != nil {
		return nil, classify(ctx, "redis receive", err)
	}

	switch m := msg.(type) {
	case *redis.Message:
		return []byte(m.Payload), nil
	default:
		// subscription confirmations and pongs carry no frame
		r.logger.Debug("control message", zap.Any("message", m))
		return nil, newError(KindTimeout, "redis receive", ErrTimeout)
	}
}

func (r *redisSubscriber) Disconnect() error {
	if r.client == nil {
		return ErrNotConnected
	}

	var err error
	if r.pubsub != nil {
		if cerr := r.pubsub.Close(); cerr != nil {
			err = fmt.Errorf("close pubsub: %w", cerr)
		}
	}
	if cerr := r.client.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close client: %w", cerr)
	}

	r.client, r.pubsub = nil, nil

	return err
}

type redisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

func newRedisPublisher(logger *zap.Logger) *redisPublisher {
	return &redisPublisher{logger: logger.Named("redis")}
}

func (r *redisPublisher) Bind(ctx context.Context, address string) error {
	client, err := NewRedisClient(ctx, address)
	if err != nil {
		return err
	}

	r.client = client
	r.logger.Info("publisher connected", zap.String("address", address))

	return nil
}

func (r *redisPublisher) Publish(ctx context.Context, topic, payload []byte) error {
	if r.client == nil {
		return ErrPublisherClosed
	}

	cmd := r.client.Publish(ctx, string(topic), Join(topic, payload))
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	return nil
}

func (r *redisPublisher) Close() error {
	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil

	return err
}
