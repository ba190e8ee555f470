package kafka

import (
	"context"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"

	"pipeline/internal/logger"
)

// Handler processes one raw inbound message. A non-nil error is logged;
// the message is committed either way, error accounting being the
// handler's responsibility.
type Handler func(ctx context.Context, raw []byte) error

// Consumer reads raw documents from the inbound topic as part of a
// consumer group and hands them to the handler.
type Consumer struct {
	reader  *kafka.Reader
	handler Handler
}

// NewConsumer creates a group consumer for topic.
func NewConsumer(brokers []string, topic, groupID string, handler Handler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		handler: handler,
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("kafka_consumer")
	log.Info().Str("topic", c.reader.Config().Topic).Msg("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := c.handler(ctx, msg.Value); err != nil {
			log.Warn().
				Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("message handling failed")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Error().Err(err).Msg("offset commit failed")
		}
	}
}

// Close releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
