package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type kafkaSubscriber struct {
	consumer     sarama.Consumer
	partConsumer sarama.PartitionConsumer
	logger       *zap.Logger
}

func newKafkaSubscriber(logger *zap.Logger) *kafkaSubscriber {
	return &kafkaSubscriber{logger: logger.Named("kafka")}
}

func (r *kafkaSubscriber) Connect(_ context.Context, address string) error {
	if r.consumer != nil {
		return fmt.Errorf("connect %s: already connected", address)
	}

	brokers, err := kafkaBrokers(address)
	if err != nil {
		return err
	}

	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	r.consumer = consumer

	return nil
}

func (r *kafkaSubscriber) Subscribe(topic []byte) error {
	if r.consumer == nil {
		return ErrNotConnected
	}
	if r.partConsumer != nil {
		_ = r.partConsumer.Close()
		r.partConsumer = nil
	}

	// only frames published from now on; a backlog is never replayed
	partConsumer, err := r.consumer.ConsumePartition(KafkaTopic(topic), 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("consume partition: %w", err)
	}

	r.partConsumer = partConsumer

	return nil
}

func (r *kafkaSubscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if r.partConsumer == nil {
		return nil, newError(KindFatal, "kafka receive", ErrNotSubscribed)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-r.partConsumer.Messages():
		if !ok {
			return nil, newError(KindFatal, "kafka receive", ErrClosed)
		}
		return msg.Value, nil
	case cerr, ok := <-r.partConsumer.Errors():
		if !ok {
			return nil, newError(KindFatal, "kafka receive", ErrClosed)
		}
		return nil, classify(ctx, "kafka receive", cerr.Err)
	case <-ctx.Done():
		return nil, newError(KindShutdown, "kafka receive", ctx.Err())
	case <-timer.C:
		return nil, newError(KindTimeout, "kafka receive", ErrTimeout)
	}
}

func (r *kafkaSubscriber) Disconnect() error {
	if r.consumer == nil {
		return ErrNotConnected
	}
	defer func() { r.consumer, r.partConsumer = nil, nil }()

	if r.partConsumer != nil {
		if err := r.partConsumer.Close(); err != nil {
			_ = r.consumer.Close()
			return fmt.Errorf("close partition consumer: %w", err)
		}
	}

	if err := r.consumer.Close(); err != nil {
		return fmt.Errorf("close consumer: %w", err)
	}

	return nil
}

// ConnectProducer creates a sync producer that waits for all replicas and
// writes to the partition named in each message, which subscribers read.
func ConnectProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 2
	config.Producer.Partitioner = sarama.NewManualPartitioner

	return sarama.NewSyncProducer(brokers, config)
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
}

func newKafkaPublisher(logger *zap.Logger) *kafkaPublisher {
	return &kafkaPublisher{logger: logger.Named("kafka")}
}

func (r *kafkaPublisher) Bind(_ context.Context, address string) error {
	brokers, err := kafkaBrokers(address)
	if err != nil {
		return err
	}

	producer, err := ConnectProducer(brokers)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}

	r.producer = producer
	r.logger.Info("publisher connected", zap.Strings("brokers", brokers))

	return nil
}

func (r *kafkaPublisher) Publish(_ context.Context, topic, payload []byte) error {
	if r.producer == nil {
		return ErrPublisherClosed
	}

	msg := &sarama.ProducerMessage{
		Topic:     KafkaTopic(topic),
		Partition: 0,
		Value:     sarama.ByteEncoder(Join(topic, payload)),
	}

	if _, _, err := r.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}

	return nil
}

func (r *kafkaPublisher) Close() error {
	if r.producer == nil {
		return nil
	}

	err := r.producer.Close()
	r.producer = nil

	return err
}
