// Package event carries change events over Kafka between the record write path
// and the index synchronizer.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"github.com/utafrali/shopindex/internal/domain"
	"github.com/utafrali/shopindex/internal/notifier"
	pkgkafka "github.com/utafrali/shopindex/pkg/kafka"
)

// EventType is set as the event_type header on every change message.
const EventType = "index.change"

// ChangesTopic is the topic change events are published to.
var ChangesTopic = pkgkafka.Topic("index", "changes")

// Publisher is the producer side used by Sink.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...kafka.Message) error
}

// Sink publishes change events to Kafka keyed by entity, so every event for
// one record lands on the same partition.
type Sink struct {
	producer Publisher
	topic    string
}

var _ notifier.Sink = (*Sink)(nil)

// NewSink creates a sink on ChangesTopic.
func NewSink(producer Publisher) *Sink {
	return &Sink{producer: producer, topic: ChangesTopic}
}

func (s *Sink) Publish(ctx context.Context, events ...domain.ChangeEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		msg, err := Encode(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return s.producer.Publish(ctx, s.topic, msgs...)
}

// Encode renders ev as a Kafka message.
func Encode(ev domain.ChangeEvent) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal change event %s: %w", ev.Key(), err)
	}
	return kafka.Message{
		Key:   []byte(ev.Key()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "event_id", Value: []byte(ev.EventID.String())},
			{Key: "op", Value: []byte(ev.Op)},
		},
	}, nil
}

// Decode parses a change message. Malformed messages are permanent failures.
func Decode(msg kafka.Message) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal change event: %w", err)
	}
	if !ev.Type.Valid() {
		return ev, fmt.Errorf("change event has unknown type %q", ev.Type)
	}
	if ev.Op != domain.OpUpsert && ev.Op != domain.OpDelete {
		return ev, fmt.Errorf("change event has unknown op %q", ev.Op)
	}
	return ev, nil
}

// Handler returns a consumer handler that forwards decoded events to sink,
// normally the synchronizer's queue.
func Handler(sink notifier.Sink, logger *slog.Logger) pkgkafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		ev, err := Decode(msg)
		if err != nil {
			logger.WarnContext(ctx, "skipping malformed change event",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			return backoff.Permanent(err)
		}
		return sink.Publish(ctx, ev)
	}
}

// DropHandler sends events the synchronizer gave up on to the dead-letter topic.
func DropHandler(dlq pkgkafka.DeadLetterer, origin string, logger *slog.Logger) func(context.Context, domain.ChangeEvent, error) {
	return func(ctx context.Context, ev domain.ChangeEvent, cause error) {
		msg, err := Encode(ev)
		if err != nil {
			logger.ErrorContext(ctx, "failed to encode dropped event", slog.String("error", err.Error()))
			return
		}
		msg.Topic = ChangesTopic
		if err := dlq.DeadLetter(ctx, msg, cause, origin); err != nil {
			logger.ErrorContext(ctx, "failed to dead-letter dropped event",
				slog.String("entity", ev.Key()),
				slog.String("error", err.Error()),
			)
		}
	}
}
