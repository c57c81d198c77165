package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
)

const confirmTimeout = 10 * time.Second

// rabbitClient publishes tasks to a direct exchange with publisher confirms
// and consumes them from a durable queue with manual acks.
type rabbitClient struct {
	conn   *amqp.Connection
	pub    *amqp.Channel
	mu     sync.Mutex
	cfg    config.RabbitMQ
	topic  string
	logger *zap.Logger
}

func newRabbitClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	rc := cfg.Messaging.RabbitMQ

	conn, err := amqp.Dial(rc.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := declareTopology(ch, rc); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	client := &rabbitClient{conn: conn, pub: ch, cfg: rc, topic: rc.RoutingKey, logger: logger}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing rabbitmq client")
			_ = ch.Close()
			return conn.Close()
		},
	})

	logger.Info("connected to rabbitmq", zap.String("exchange", rc.Exchange), zap.String("queue", rc.Queue))
	return client, nil
}

func declareTopology(ch *amqp.Channel, rc config.RabbitMQ) error {
	if err := ch.ExchangeDeclare(rc.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(rc.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, rc.RoutingKey, rc.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (r *rabbitClient) Publish(ctx context.Context, msg Message) error {
	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	r.mu.Lock()
	deferred, err := r.pub.PublishWithDeferredConfirmWithContext(ctx, r.cfg.Exchange, r.cfg.RoutingKey, false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    string(msg.Key),
		Timestamp:    time.Now(),
		Body:         msg.Value,
	})
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("rabbitmq nacked task %s", msg.Task())
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}

// Consume opens a dedicated channel so concurrent workers do not share
// delivery state.
func (r *rabbitClient) Consume(ctx context.Context, handler Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	prefetch := r.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(r.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}

			msg := Message{
				Topic:   d.RoutingKey,
				Key:     []byte(d.MessageId),
				Value:   d.Body,
				Headers: amqpHeaders(d.Headers),
				Offset:  int64(d.DeliveryTag),
				Time:    d.Timestamp,
			}

			if err := handler(ctx, msg); err != nil {
				r.logger.Error("message handler failed", zap.String("task", msg.Task()), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := d.Ack(false); err != nil {
				r.logger.Warn("ack failed", zap.Error(err))
			}
		}
	}
}

func (r *rabbitClient) Topic() string { return r.topic }

func amqpHeaders(table amqp.Table) map[string]string {
	if len(table) == 0 {
		return nil
	}
	out := make(map[string]string, len(table))
	for k, v := range table {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
