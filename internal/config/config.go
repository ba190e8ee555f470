package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime configuration for a pipeline service. It is
// built once at startup and handed to the components that need it;
// nothing in the core mutates it afterwards.
type Config struct {
	LogLevel string
	HTTPAddr string

	Kafka     KafkaConfig
	Dispatch  DispatchConfig
	Providers ProviderFilter
}

// KafkaConfig describes the broker connection and topic layout.
type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	InboundTopic  string
	OutboundTopic string
	ErrorTopic    string
	Producer      ProducerConfig
}

// ProducerConfig tunes the Kafka producer adapter.
type ProducerConfig struct {
	PoolSize     int
	Compression  string
	WriteTimeout time.Duration
	RequiredAcks int
}

// DispatchConfig tunes the batch dispatcher.
type DispatchConfig struct {
	// Enabled turns batching on. When false every enqueued message is
	// sent immediately as a single-message batch.
	Enabled bool
	// BatchCount is the count threshold that triggers a flush.
	BatchCount int
	// BatchInterval is the maximum age of the oldest buffered message
	// before a flush is forced.
	BatchInterval time.Duration
	// MaxRetries bounds producer retries per flush.
	MaxRetries int
	// RetryBackoff is the initial delay between retries, doubled on
	// each attempt.
	RetryBackoff time.Duration
	// FlushTimeout bounds a single producer call.
	FlushTimeout time.Duration
}

// ProviderFilter limits which content providers are processed. A
// non-empty Included list wins over Excluded.
type ProviderFilter struct {
	Included []string
	Excluded []string
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTPAddr: ":8080",
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			GroupID:       "pipeline",
			OutboundTopic: "pipeline.outbound",
			ErrorTopic:    "pipeline.errors",
			Producer: ProducerConfig{
				PoolSize:     4,
				Compression:  "snappy",
				WriteTimeout: 10 * time.Second,
				RequiredAcks: -1,
			},
		},
		Dispatch: DispatchConfig{
			Enabled:       false,
			BatchCount:    20,
			BatchInterval: 60 * time.Second,
			MaxRetries:    3,
			RetryBackoff:  250 * time.Millisecond,
			FlushTimeout:  10 * time.Second,
		},
	}
}

// FromEnv returns Default overridden by environment variables. The
// variable names match the settings surface shared by all pipeline
// services.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	if host := os.Getenv("KAFKA_BROKER_HOST"); host != "" {
		port := envInt("KAFKA_BROKER_PORT", 9092)
		cfg.Kafka.Brokers = []string{host + ":" + strconv.Itoa(port)}
	}
	if v := os.Getenv("KAFKA_GROUP_NAME"); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := os.Getenv("KAFKA_TOPIC_INBOUND"); v != "" {
		cfg.Kafka.InboundTopic = v
	}
	if v := os.Getenv("KAFKA_TOPIC_OUTBOUND"); v != "" {
		cfg.Kafka.OutboundTopic = v
	}
	if v := os.Getenv("KAFKA_TOPIC_ERROR"); v != "" {
		cfg.Kafka.ErrorTopic = v
	}

	cfg.Dispatch.Enabled = envBool("KAFKA_BATCH_SEND", cfg.Dispatch.Enabled)
	cfg.Dispatch.BatchCount = envInt("KAFKA_BATCH_SEND_COUNT", cfg.Dispatch.BatchCount)
	if secs := envInt("KAFKA_BATCH_SEND_TIME", 0); secs > 0 {
		cfg.Dispatch.BatchInterval = time.Duration(secs) * time.Second
	}

	cfg.Providers.Included = envList("PROVIDERS_INCLUDED")
	cfg.Providers.Excluded = envList("PROVIDERS_EXCLUDED")

	return cfg
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
