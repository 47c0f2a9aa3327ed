package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

// Handler processes one message. Returning an error wrapped with
// backoff.Permanent skips the remaining retries.
type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	MinBytes    int
	MaxBytes    int
	MaxAttempts uint
	Backoff     time.Duration
}

// Consumer fetches messages, runs the handler with bounded retries and
// commits. Messages that still fail go to the dead-letter sink when one is set.
type Consumer struct {
	reader    MessageReader
	topic     string
	group     string
	handler   Handler
	dlq       DeadLetterer
	attempts  uint
	backoff   time.Duration
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a consumer group reader for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq DeadLetterer, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return NewConsumerWithReader(r, cfg, handler, dlq, logger)
}

// NewConsumerWithReader creates a consumer over an existing reader.
func NewConsumerWithReader(r MessageReader, cfg ConsumerConfig, handler Handler, dlq DeadLetterer, logger *slog.Logger) *Consumer {
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 3
	}
	wait := cfg.Backoff
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}
	return &Consumer{
		reader:   r,
		topic:    cfg.Topic,
		group:    cfg.GroupID,
		handler:  handler,
		dlq:      dlq,
		attempts: attempts,
		backoff:  wait,
		logger:   logger,
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.String("topic", c.topic),
		slog.String("group", c.group),
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping", slog.String("topic", c.topic))
				return c.Close()
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}
		consumedMessages.WithLabelValues(msg.Topic, c.group, outcomeReceived).Inc()

		if err := c.process(ctx, msg); err != nil && ctx.Err() != nil {
			// Shutting down mid-retry: leave the message uncommitted for redelivery.
			return c.Close()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctx = ExtractTrace(ctx, msg)
	start := time.Now()
	defer func() {
		consumeDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.backoff

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.handler(ctx, msg)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.WarnContext(ctx, "handler failed, will retry",
				slog.String("topic", msg.Topic),
				slog.String("key", string(msg.Key)),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err == nil {
		consumedMessages.WithLabelValues(msg.Topic, c.group, outcomeProcessed).Inc()
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	consumedMessages.WithLabelValues(msg.Topic, c.group, outcomeFailed).Inc()
	c.logger.ErrorContext(ctx, "handler failed after all retries, skipping message",
		slog.String("topic", msg.Topic),
		slog.String("key", string(msg.Key)),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("error", err.Error()),
	)
	if c.dlq != nil {
		if dlqErr := c.dlq.DeadLetter(ctx, msg, err, c.group); dlqErr != nil {
			c.logger.ErrorContext(ctx, "failed to dead-letter message", slog.String("error", dlqErr.Error()))
		}
	}
	return err
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}
