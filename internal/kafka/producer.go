package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"pipeline/internal/config"
	"pipeline/internal/logger"
	"pipeline/internal/metrics"
)

// Producer errors
var ErrProducerClosed = errors.New("producer is closed")

// Producer writes dispatch batches to Kafka through a pool of writers.
// It implements the dispatch.Producer capability; the destination is
// the topic. Retries are owned by the dispatcher, so each write is a
// single attempt.
type Producer struct {
	cfg     config.ProducerConfig
	writers []*kafka.Writer
	pool    chan *kafka.Writer
	closed  atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// NewProducer creates a Kafka producer for the given brokers. Topics
// are chosen per message, so writers are not bound to one.
func NewProducer(brokers []string, cfg config.ProducerConfig) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	p := &Producer{
		cfg:     cfg,
		writers: make([]*kafka.Writer, cfg.PoolSize),
		pool:    make(chan *kafka.Writer, cfg.PoolSize),
	}

	compression := getCompression(cfg.Compression)

	for i := 0; i < cfg.PoolSize; i++ {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compression,
			MaxAttempts:  1, // the dispatcher owns the retry policy
			Async:        false,
		}
		p.writers[i] = writer
		p.pool <- writer
	}

	return p, nil
}

// getCompression returns the kafka compression codec.
func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// Send writes a batch of serialized messages to the destination topic
// in order.
func (p *Producer) Send(ctx context.Context, destination string, batch [][]byte) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(batch) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(batch))
	bytesTotal := uint64(0)
	for i, msg := range batch {
		messages[i] = kafka.Message{
			Topic: destination,
			Value: msg,
		}
		bytesTotal += uint64(len(msg))
	}

	var writer *kafka.Writer
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.messagesFailed.Add(uint64(len(batch)))
		return ctx.Err()
	}

	if err := writer.WriteMessages(ctx, messages...); err != nil {
		p.messagesFailed.Add(uint64(len(batch)))
		metrics.KafkaSendTotal.WithLabelValues("failed").Add(float64(len(batch)))
		log := logger.WithComponent("kafka_producer")
		log.Warn().
			Err(err).
			Str("topic", destination).
			Int("batch_size", len(batch)).
			Msg("kafka write failed")
		return err
	}

	p.messagesSent.Add(uint64(len(batch)))
	p.bytesWritten.Add(bytesTotal)
	metrics.KafkaSendTotal.WithLabelValues("success").Add(float64(len(batch)))
	metrics.KafkaBytesWritten.Add(float64(bytesTotal))
	return nil
}

// HealthCheck verifies the producer has not been closed and a writer is
// obtainable.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	select {
	case writer := <-p.pool:
		p.pool <- writer
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes all writers in the pool.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, writer := range p.writers {
		if err := writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing writers: %v", errs)
	}
	return nil
}

// Stats returns producer counters.
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// ProducerStats holds producer counters.
type ProducerStats struct {
	MessagesSent   uint64
	MessagesFailed uint64
	BytesWritten   uint64
}
