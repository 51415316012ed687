package queue

import (
	"context"
	"fmt"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/rs/zerolog"
)

// Delivery is one received job. Exactly one of Ack or Nack must be called.
type Delivery interface {
	Body() []byte
	RetryCount() int
	Ack() error
	// Nack rejects the delivery. With requeue the broker hands it out again,
	// otherwise it is dropped.
	Nack(requeue bool) error
}

type Publisher interface {
	// Publish stores body durably with the given retry count.
	Publish(ctx context.Context, body []byte, retryCount int) error
}

// Broker is a connection to the durable job queue.
type Broker interface {
	Publisher
	// Consume starts delivering jobs, at most prefetch unacknowledged at a time.
	Consume(ctx context.Context) (<-chan Delivery, error)
	// NotifyClose yields once when the connection is lost.
	NotifyClose() <-chan error
	Close() error
}

// Dialer opens a new broker connection.
type Dialer func(ctx context.Context) (Broker, error)

// NewDialer picks the broker implementation named by QUEUE_DRIVER.
func NewDialer(cfg config.Config, log zerolog.Logger) (Dialer, error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverAMQP:
		return func(ctx context.Context) (Broker, error) {
			return DialAMQP(ctx, cfg.Queue)
		}, nil
	case config.QueueDriverAsynq:
		return func(ctx context.Context) (Broker, error) {
			return DialAsynq(ctx, cfg.Queue, cfg.RedisURI, log)
		}, nil
	}
	return nil, fmt.Errorf("unsupported queue driver %q", cfg.Queue.Driver)
}
