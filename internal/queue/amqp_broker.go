package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpDialTimeout = 10 * time.Second

// AMQPBroker talks to RabbitMQ over a single connection and channel.
type AMQPBroker struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
	closed   chan error
}

// DialAMQP connects and declares the durable job queue. Declaring an existing
// queue with the same arguments is a no-op.
func DialAMQP(ctx context.Context, cfg config.Queue) (*AMQPBroker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(amqpDialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.Name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Name, err)
	}

	b := &AMQPBroker{
		conn:     conn,
		ch:       ch,
		queue:    cfg.Name,
		prefetch: cfg.Prefetch,
		closed:   make(chan error, 1),
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		var amqpErr *amqp.Error
		select {
		case amqpErr = <-connClosed:
		case amqpErr = <-chClosed:
		}
		if amqpErr != nil {
			b.closed <- amqpErr
			return
		}
		b.closed <- errors.New("amqp connection closed")
	}()

	return b, nil
}

func (b *AMQPBroker) Publish(ctx context.Context, body []byte, retryCount int) error {
	return b.ch.PublishWithContext(ctx, "", b.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         TaskTypeDeliverPost,
		Headers:      amqp.Table{RetryCountHeader: int32(retryCount)},
		Body:         body,
	})
}

func (b *AMQPBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	if err := b.ch.Qos(b.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	msgs, err := b.ch.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", b.queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for m := range msgs {
			select {
			case out <- amqpDelivery{m}:
			case <-ctx.Done():
				m.Nack(false, true)
				return
			}
		}
	}()
	return out, nil
}

func (b *AMQPBroker) NotifyClose() <-chan error {
	return b.closed
}

func (b *AMQPBroker) Close() error {
	return b.conn.Close()
}

type amqpDelivery struct {
	d amqp.Delivery
}

func (d amqpDelivery) Body() []byte { return d.d.Body }

func (d amqpDelivery) RetryCount() int {
	return headerInt(d.d.Headers[RetryCountHeader])
}

func (d amqpDelivery) Ack() error { return d.d.Ack(false) }

func (d amqpDelivery) Nack(requeue bool) error { return d.d.Nack(false, requeue) }

// headerInt reads a numeric header. Publishers in other languages encode
// integers with varying widths.
func headerInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
