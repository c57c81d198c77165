package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
)

// HeaderTask names the task a message carries; the worker engine routes on it.
const HeaderTask = "task"

// ErrClosed is returned when publishing to a client that has shut down.
var ErrClosed = errors.New("messaging client closed")

// Message represents a message exchanged over the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Task returns the task name carried in the headers.
func (m Message) Task() string {
	return m.Headers[HeaderTask]
}

// Handler processes an inbound message.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// noopClient is used when messaging is disabled. Published tasks are dropped.
type noopClient struct {
	topic  string
	logger *zap.Logger
}

func (n noopClient) Publish(_ context.Context, msg Message) error {
	n.logger.Warn("messaging disabled; dropping task", zap.String("task", msg.Task()), zap.ByteString("key", msg.Key))
	return nil
}

func (n noopClient) Consume(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

// NewClient builds a messaging client based on configuration.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")

		return noopClient{topic: cfg.Messaging.Kafka.Topic, logger: logger}, nil
	}

	switch cfg.Messaging.Driver {
	case "memory":
		client := NewMemoryClient(cfg.Messaging.Kafka.Topic, cfg.Messaging.Memory.QueueSize, logger)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		return client, nil
	case "kafka":
		return newKafkaClient(lc, cfg, logger)
	case "rabbitmq":
		return newRabbitClient(lc, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
}
