package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maheshrc27/crosspost/internal/apperrors"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/rs/zerolog"
)

// Client enqueues scheduled jobs. It keeps one lazily opened channel and
// drops it after any failure so the next call reconnects. It never retries.
type Client struct {
	dial Dialer
	log  zerolog.Logger

	mu sync.Mutex
	ch *Channel
}

func NewClient(dial Dialer, log zerolog.Logger) *Client {
	return &Client{dial: dial, log: log.With().Str("component", "queue_client").Logger()}
}

// Channel is an open publishing session on the job queue.
type Channel struct {
	broker Broker
}

// Connect opens a new channel on a fresh broker connection.
func (c *Client) Connect(ctx context.Context) (*Channel, error) {
	broker, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrQueueUnavailable, err)
	}
	return &Channel{broker: broker}, nil
}

// Enqueue publishes a new job with a retry count of zero.
func (ch *Channel) Enqueue(ctx context.Context, job *models.PostJob) error {
	body, err := EncodeJob(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := ch.broker.Publish(ctx, body, 0); err != nil {
		return fmt.Errorf("%w: publish job %s: %v", apperrors.ErrQueueUnavailable, job.ID, err)
	}
	return nil
}

func (ch *Channel) Close() error {
	return ch.broker.Close()
}

func (c *Client) Enqueue(ctx context.Context, job *models.PostJob) error {
	ch, err := c.channel(ctx)
	if err != nil {
		return err
	}

	if err := ch.Enqueue(ctx, job); err != nil {
		if errors.Is(err, apperrors.ErrQueueUnavailable) {
			c.drop(ch)
		}
		return err
	}

	c.log.Info().Str("job_id", job.ID).Time("scheduled_time", job.ScheduledTime).Msg("job enqueued")
	return nil
}

func (c *Client) channel(ctx context.Context) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		return c.ch, nil
	}
	ch, err := c.Connect(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("queue connect failed")
		return nil, err
	}
	c.ch = ch
	return ch, nil
}

func (c *Client) drop(ch *Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == ch {
		c.ch = nil
	}
	if err := ch.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close failed channel")
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil {
		return nil
	}
	err := c.ch.Close()
	c.ch = nil
	return err
}
