package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pipeline/internal/config"
	"pipeline/internal/logger"
	"pipeline/internal/metrics"
)

// Dispatcher errors
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Producer is the capability the dispatcher hands batches to. A nil
// error means the whole batch was accepted with at-least-once
// semantics.
type Producer interface {
	Send(ctx context.Context, destination string, batch [][]byte) error
}

// DispatchError reports a batch the producer rejected after every
// retry. The batch is carried so callers can account for the messages
// instead of silently discarding them.
type DispatchError struct {
	Destination string
	Batch       [][]byte
	Attempts    int
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %q failed after %d attempts (%d messages): %v",
		e.Destination, e.Attempts, len(e.Batch), e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ErrorHandler receives dispatch failures from timer-driven flushes,
// which have no caller to return an error to.
type ErrorHandler func(*DispatchError)

// Dispatcher buffers serialized messages per destination and flushes
// them to the producer when a destination's buffer reaches the count
// threshold or its oldest message reaches the age threshold. Enqueue is
// safe for concurrent use; independent destinations flush concurrently.
//
// A graceful Close drains every buffer. Abrupt termination without
// Close may lose buffered messages.
type Dispatcher struct {
	cfg      config.DispatchConfig
	producer Producer
	onError  ErrorHandler

	mu      sync.Mutex
	buffers map[string]*buffer
	closed  atomic.Bool

	enqueued atomic.Uint64
	flushed  atomic.Uint64
	failed   atomic.Uint64
}

// buffer holds the pending messages for one destination. mu guards the
// queue; flushMu serializes flushes so enqueues can proceed while a
// flush is on the wire.
type buffer struct {
	mu      sync.Mutex
	flushMu sync.Mutex
	msgs    [][]byte
	oldest  time.Time
	timer   *time.Timer
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithErrorHandler routes timer-flush failures to h.
func WithErrorHandler(h ErrorHandler) Option {
	return func(d *Dispatcher) { d.onError = h }
}

// SetErrorHandler installs the timer-flush error handler. Intended for
// startup wiring where the handler itself needs the dispatcher; must be
// called before the first Enqueue.
func (d *Dispatcher) SetErrorHandler(h ErrorHandler) {
	d.onError = h
}

// New returns a Dispatcher flushing to producer.
func New(cfg config.DispatchConfig, producer Producer, opts ...Option) *Dispatcher {
	if cfg.BatchCount <= 0 {
		cfg.BatchCount = 20
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 60 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}

	d := &Dispatcher{
		cfg:      cfg,
		producer: producer,
		buffers:  make(map[string]*buffer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue appends a serialized message to the destination's buffer.
// When the buffer reaches the count threshold the batch is flushed on
// the calling goroutine and any dispatch failure is returned. With
// batching disabled the message is sent immediately as a single-message
// batch.
func (d *Dispatcher) Enqueue(ctx context.Context, destination string, msg []byte) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}

	d.enqueued.Add(1)
	metrics.DispatchEnqueuedTotal.WithLabelValues(destination).Inc()

	if !d.cfg.Enabled {
		return d.send(ctx, destination, [][]byte{msg})
	}

	buf := d.buffer(destination)

	buf.mu.Lock()
	buf.msgs = append(buf.msgs, msg)
	if len(buf.msgs) == 1 {
		buf.oldest = time.Now()
		buf.timer = time.AfterFunc(d.cfg.BatchInterval, func() {
			d.timerFlush(destination)
		})
	}
	full := len(buf.msgs) >= d.cfg.BatchCount
	buf.mu.Unlock()

	if full {
		return d.Flush(ctx, destination)
	}
	return nil
}

// Flush hands the destination's buffered messages to the producer as
// one batch, in enqueue order. On success the buffer is cleared; on
// failure the batch is retried a bounded number of times before a
// *DispatchError is returned. Messages enqueued while a flush is in
// flight start a new accumulation cycle.
func (d *Dispatcher) Flush(ctx context.Context, destination string) error {
	buf := d.buffer(destination)

	buf.flushMu.Lock()
	defer buf.flushMu.Unlock()

	buf.mu.Lock()
	if len(buf.msgs) == 0 {
		buf.mu.Unlock()
		return nil
	}
	batch := buf.msgs
	buf.msgs = nil
	buf.oldest = time.Time{}
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	buf.mu.Unlock()

	return d.send(ctx, destination, batch)
}

// FlushAll force-flushes every destination regardless of thresholds.
func (d *Dispatcher) FlushAll(ctx context.Context) error {
	d.mu.Lock()
	destinations := make([]string, 0, len(d.buffers))
	for dest := range d.buffers {
		destinations = append(destinations, dest)
	}
	d.mu.Unlock()

	var errs []error
	for _, dest := range destinations {
		if err := d.Flush(ctx, dest); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush errors: %v", errs)
	}
	return nil
}

// Close drains every destination's buffer and stops accepting new
// messages. The producer capability must not be released until Close
// returns.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.FlushAll(ctx)
}

// timerFlush runs on the per-destination timer. It has no caller to
// surface errors to, so failures go to the configured error handler.
func (d *Dispatcher) timerFlush(destination string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.flushBudget())
	defer cancel()

	if err := d.Flush(ctx, destination); err != nil {
		var derr *DispatchError
		if errors.As(err, &derr) && d.onError != nil {
			d.onError(derr)
			return
		}
		log := logger.WithComponent("dispatcher")
		log.Error().
			Err(err).
			Str("destination", destination).
			Msg("timed flush failed")
	}
}

// send performs the producer call with bounded retries and exponential
// backoff. Each attempt is bounded by FlushTimeout; a timed-out attempt
// counts as a transient failure.
func (d *Dispatcher) send(ctx context.Context, destination string, batch [][]byte) error {
	log := logger.WithComponent("dispatcher")
	start := time.Now()

	var lastErr error
	backoff := d.cfg.RetryBackoff
	attempts := 0

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Str("destination", destination).
				Dur("backoff", backoff).
				Msg("retrying batch send")
			metrics.DispatchRetriesTotal.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempts = attempt + 1
				return d.fail(destination, batch, attempts, lastErr)
			}
		}

		attempts = attempt + 1
		err := d.sendOnce(ctx, destination, batch)
		if err == nil {
			d.flushed.Add(uint64(len(batch)))
			metrics.DispatchFlushTotal.WithLabelValues(destination, "success").Inc()
			metrics.DispatchBatchSize.Observe(float64(len(batch)))
			metrics.DispatchFlushDuration.Observe(time.Since(start).Seconds())
			log.Debug().
				Str("destination", destination).
				Int("batch_size", len(batch)).
				Msg("batch dispatched")
			return nil
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("destination", destination).
			Int("attempt", attempts).
			Int("batch_size", len(batch)).
			Msg("batch send attempt failed")

		if errors.Is(err, context.Canceled) {
			break
		}
	}

	return d.fail(destination, batch, attempts, lastErr)
}

func (d *Dispatcher) sendOnce(ctx context.Context, destination string, batch [][]byte) error {
	attemptCtx := ctx
	if d.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, d.cfg.FlushTimeout)
		defer cancel()
	}
	return d.producer.Send(attemptCtx, destination, batch)
}

func (d *Dispatcher) fail(destination string, batch [][]byte, attempts int, err error) error {
	d.failed.Add(uint64(len(batch)))
	metrics.DispatchFlushTotal.WithLabelValues(destination, "failed").Inc()
	return &DispatchError{
		Destination: destination,
		Batch:       batch,
		Attempts:    attempts,
		Err:         err,
	}
}

func (d *Dispatcher) flushBudget() time.Duration {
	budget := d.cfg.FlushTimeout
	if budget <= 0 {
		budget = 10 * time.Second
	}
	// Leave room for every retry plus worst-case backoff.
	attempts := time.Duration(d.cfg.MaxRetries + 1)
	maxBackoff := time.Duration(int64(1) << uint(d.cfg.MaxRetries))
	return budget*attempts + d.cfg.RetryBackoff*maxBackoff
}

func (d *Dispatcher) buffer(destination string) *buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[destination]
	if !ok {
		buf = &buffer{}
		d.buffers[destination] = buf
	}
	return buf
}

// Pending returns the number of buffered messages for a destination.
func (d *Dispatcher) Pending(destination string) int {
	buf := d.buffer(destination)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.msgs)
}

// Stats returns dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued: d.enqueued.Load(),
		Flushed:  d.flushed.Load(),
		Failed:   d.failed.Load(),
	}
}

// Stats holds dispatcher counters.
type Stats struct {
	Enqueued uint64
	Flushed  uint64
	Failed   uint64
}
