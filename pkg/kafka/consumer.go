package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes one message value. A non-nil error is retried with
// backoff up to RetryMax times, then the message is skipped.
type Handler func(ctx context.Context, key, value []byte) error

// Consumer reads a single topic. With a GroupID offsets are committed after
// handling; without one it tails from the configured start offset.
type Consumer struct {
	cfg    *ConsumerConfig
	reader *kafka.Reader
}

func NewConsumer(topic string, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		StartOffset: "latest",
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	start := kafka.LastOffset
	if cfg.StartOffset == "earliest" {
		start = kafka.FirstOffset
	}

	registerMetrics()
	return &Consumer{
		cfg: cfg,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.GroupID,
			StartOffset: start,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
		}),
	}, nil
}

// Run blocks until ctx is done or the reader fails.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	topic := c.reader.Config().Topic
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka fetch %s: %w", topic, err)
		}

		err = c.handle(ctx, h, msg)
		observeConsume(topic, err)
		if ctx.Err() != nil {
			return nil
		}

		if c.cfg.GroupID != "" {
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				return fmt.Errorf("kafka commit %s: %w", topic, err)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, msg kafka.Message) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = h(ctx, msg.Key, msg.Value); err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// backoff is exponential in attempt, capped at max, minus up to 50% jitter.
func backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := max
	if attempt < 32 {
		exp = min * time.Duration(1<<uint(attempt-1))
		if exp > max || exp <= 0 {
			exp = max
		}
	}
	if half := int64(exp) / 2; half > 0 {
		return exp - time.Duration(rand.Int64N(half))
	}
	return exp
}
