package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryClient is a bounded in-process queue. Publish blocks while the
// queue is full. Queued tasks do not survive a restart.
type MemoryClient struct {
	topic  string
	queue  chan Message
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewMemoryClient builds a queue holding up to size pending messages.
func NewMemoryClient(topic string, size int, logger *zap.Logger) *MemoryClient {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryClient{
		topic:  topic,
		queue:  make(chan Message, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (m *MemoryClient) Publish(ctx context.Context, msg Message) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	msg.Topic = m.topic
	msg.Time = time.Now()
	select {
	case m.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

func (m *MemoryClient) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case msg := <-m.queue:
			if err := handler(ctx, msg); err != nil {
				m.logger.Error("message handler failed", zap.String("task", msg.Task()), zap.Error(err))
			}
		}
	}
}

func (m *MemoryClient) Topic() string { return m.topic }

// Pending reports how many messages wait in the queue.
func (m *MemoryClient) Pending() int { return len(m.queue) }

// Close stops consumers and rejects further publishes.
func (m *MemoryClient) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
