package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/rs/zerolog"
)

// asynqEnvelope keeps the retry count with the body since asynq tasks have
// no headers.
type asynqEnvelope struct {
	RetryCount int             `json:"retryCount"`
	Body       json.RawMessage `json:"body"`
}

// AsynqBroker runs the job queue on Redis. Tasks are enqueued with no asynq
// retries; the worker owns the retry policy.
type AsynqBroker struct {
	redis    asynq.RedisClientOpt
	client   *asynq.Client
	queue    string
	prefetch int
	log      zerolog.Logger

	mu     sync.Mutex
	server *asynq.Server
	closed chan error
}

func DialAsynq(ctx context.Context, cfg config.Queue, redisAddr string, log zerolog.Logger) (*AsynqBroker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	redis := asynq.RedisClientOpt{Addr: redisAddr}
	return &AsynqBroker{
		redis:    redis,
		client:   asynq.NewClient(redis),
		queue:    cfg.Name,
		prefetch: cfg.Prefetch,
		log:      log.With().Str("component", "asynq").Logger(),
		closed:   make(chan error, 1),
	}, nil
}

func (b *AsynqBroker) Publish(ctx context.Context, body []byte, retryCount int) error {
	return b.enqueue(ctx, asynqEnvelope{RetryCount: retryCount, Body: body})
}

func (b *AsynqBroker) enqueue(ctx context.Context, env asynqEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeDeliverPost, payload)
	_, err = b.client.EnqueueContext(ctx, task, asynq.Queue(b.queue), asynq.MaxRetry(0))
	return err
}

func (b *AsynqBroker) Consume(ctx context.Context) (<-chan Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.server != nil {
		return nil, errors.New("asynq broker is already consuming")
	}

	out := make(chan Delivery)
	b.server = asynq.NewServer(b.redis, asynq.Config{
		Concurrency: b.prefetch,
		Queues:      map[string]int{b.queue: 1},
		Logger:      asynqLogger{b.log},
	})

	handler := asynq.HandlerFunc(func(taskCtx context.Context, task *asynq.Task) error {
		var env asynqEnvelope
		if err := json.Unmarshal(task.Payload(), &env); err != nil {
			return fmt.Errorf("decode envelope: %v: %w", err, asynq.SkipRetry)
		}

		d := &asynqDelivery{broker: b, env: env, done: make(chan error, 1)}
		select {
		case out <- d:
		case <-taskCtx.Done():
			return taskCtx.Err()
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case err := <-d.done:
			return err
		case <-taskCtx.Done():
			return taskCtx.Err()
		}
	})

	if err := b.server.Start(handler); err != nil {
		b.server = nil
		return nil, fmt.Errorf("start asynq server: %w", err)
	}
	return out, nil
}

func (b *AsynqBroker) NotifyClose() <-chan error {
	return b.closed
}

func (b *AsynqBroker) Close() error {
	b.mu.Lock()
	if b.server != nil {
		b.server.Shutdown()
		b.server = nil
	}
	b.mu.Unlock()
	return b.client.Close()
}

type asynqDelivery struct {
	broker *AsynqBroker
	env    asynqEnvelope
	once   sync.Once
	done   chan error
}

func (d *asynqDelivery) Body() []byte { return d.env.Body }

func (d *asynqDelivery) RetryCount() int { return d.env.RetryCount }

func (d *asynqDelivery) Ack() error {
	d.finish(nil)
	return nil
}

// Nack with requeue enqueues a fresh copy before completing the current task.
func (d *asynqDelivery) Nack(requeue bool) error {
	if !requeue {
		d.finish(nil)
		return nil
	}
	if err := d.broker.enqueue(context.Background(), d.env); err != nil {
		d.finish(fmt.Errorf("requeue: %w", err))
		return err
	}
	d.finish(nil)
	return nil
}

func (d *asynqDelivery) finish(err error) {
	d.once.Do(func() { d.done <- err })
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
