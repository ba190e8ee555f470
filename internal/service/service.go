package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pipeline/internal/config"
	"pipeline/internal/dispatch"
	"pipeline/internal/envelope"
	"pipeline/internal/handlers"
	"pipeline/internal/kafka"
	"pipeline/internal/logger"
	"pipeline/internal/middleware"
	"pipeline/internal/pipeline"
	"pipeline/internal/report"
	"pipeline/internal/schema"
)

// Service wires the message core to its collaborators: the Kafka
// producer and consumer, the batch dispatcher, and the HTTP surface.
type Service struct {
	cfg *config.Config

	producer   *kafka.Producer
	dispatcher *dispatch.Dispatcher
	core       *pipeline.Pipeline
	consumer   *kafka.Consumer
	httpServer *http.Server

	wg sync.WaitGroup
}

// New constructs a Service with the given config.
func New(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// Run starts background goroutines and blocks until ctx is cancelled,
// then shuts down gracefully: HTTP first, then the consumer, then the
// dispatcher is drained before the producer is released.
func (s *Service) Run(ctx context.Context) error {
	log := logger.WithComponent("service")
	log.Info().Msg("service starting")

	producer, err := kafka.NewProducer(s.cfg.Kafka.Brokers, s.cfg.Kafka.Producer)
	if err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}
	s.producer = producer

	registry := schema.DefaultRegistry()
	builder := envelope.NewBuilder(s.cfg.Kafka.OutboundTopic)

	s.dispatcher = dispatch.New(s.cfg.Dispatch, producer)
	reporter := report.New(s.dispatcher, builder, s.cfg.Kafka.ErrorTopic)
	// The reporter routes through the dispatcher, so the error handler
	// is installed after both exist.
	s.dispatcher.SetErrorHandler(reporter.ReportDispatch)

	s.core = pipeline.New(registry, builder, s.dispatcher,
		pipeline.WithReporter(reporter),
		pipeline.WithProviderFilter(s.cfg.Providers),
	)

	if s.cfg.Kafka.InboundTopic != "" {
		s.consumer = kafka.NewConsumer(
			s.cfg.Kafka.Brokers,
			s.cfg.Kafka.InboundTopic,
			s.cfg.Kafka.GroupID,
			s.handleInbound,
		)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("consumer stopped")
			}
		}()
	}

	s.initHTTPServer()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	return s.shutdown()
}

// handleInbound feeds consumed raw documents through the core and
// forwards accepted envelopes to the outbound destination.
func (s *Service) handleInbound(ctx context.Context, raw []byte) error {
	env, err := s.core.Receive(ctx, raw)
	if err != nil {
		if errors.Is(err, pipeline.ErrProviderIgnored) {
			return nil
		}
		return err
	}
	return s.core.Forward(ctx, env)
}

func (s *Service) initHTTPServer() {
	mux := http.NewServeMux()

	ingestHandler := handlers.NewIngestHandler(handlers.IngestConfig{
		Core: s.core,
	})
	mux.Handle("/documents", middleware.Chain(
		ingestHandler,
		middleware.Recovery,
		middleware.Logging,
	))

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown drains in dependency order so no buffered message is lost on
// a graceful stop.
func (s *Service) shutdown() error {
	log := logger.WithComponent("service")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if s.consumer != nil {
		log.Info().Msg("closing consumer")
		if err := s.consumer.Close(); err != nil {
			log.Error().Err(err).Msg("consumer close error")
		}
	}

	log.Info().Msg("draining dispatcher")
	if err := s.dispatcher.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dispatcher drain error")
	}

	log.Info().Msg("closing kafka producer")
	if err := s.producer.Close(); err != nil {
		log.Error().Err(err).Msg("producer close error")
	}

	s.wg.Wait()
	log.Info().Msg("service stopped gracefully")
	return nil
}

// reportStats periodically logs counters.
func (s *Service) reportStats(ctx context.Context) {
	log := logger.WithComponent("service")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			coreStats := s.core.Stats()
			dispatchStats := s.dispatcher.Stats()
			producerStats := s.producer.Stats()

			log.Info().
				Uint64("accepted", coreStats.Accepted).
				Uint64("rejected", coreStats.Rejected).
				Uint64("ignored", coreStats.Ignored).
				Uint64("enqueued", dispatchStats.Enqueued).
				Uint64("flushed", dispatchStats.Flushed).
				Uint64("dispatch_failed", dispatchStats.Failed).
				Uint64("kafka_sent", producerStats.MessagesSent).
				Uint64("kafka_failed", producerStats.MessagesFailed).
				Msg("stats")
		}
	}
}

// healthHandler reports broker connectivity.
func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.producer.HealthCheck(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// statsHandler returns current counters.
func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	coreStats := s.core.Stats()
	dispatchStats := s.dispatcher.Stats()
	producerStats := s.producer.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"documents": map[string]uint64{
			"accepted": coreStats.Accepted,
			"rejected": coreStats.Rejected,
			"ignored":  coreStats.Ignored,
		},
		"dispatch": map[string]uint64{
			"enqueued": dispatchStats.Enqueued,
			"flushed":  dispatchStats.Flushed,
			"failed":   dispatchStats.Failed,
		},
		"producer": map[string]uint64{
			"sent":          producerStats.MessagesSent,
			"failed":        producerStats.MessagesFailed,
			"bytes_written": producerStats.BytesWritten,
		},
	})
}
