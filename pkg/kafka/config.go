package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Default timeout values for the Kafka consumer and producers.
const (
	DefaultSessionTimeout  = 240 * time.Second
	DefaultMaxPollInterval = 3400 * time.Second
	DefaultFlushTimeout    = 15 * time.Second
	DefaultPollInterval    = 100 * time.Millisecond
)

// ConsumerConfig holds the configuration for the block consumer.
type ConsumerConfig struct {
	Topic            string         `env:"KAFKA_TOPIC"             envDefault:"blocks"`                // Block envelopes to consume
	DLQTopic         string         `env:"KAFKA_DLQ_TOPIC"         envDefault:"blocks-dlq"`            // Dead letter queue for blocks that failed processing
	OutputTopic      string         `env:"KAFKA_OUTPUT_TOPIC"      envDefault:"streamline-output"`     // Module outputs and deltas, empty to disable
	BootstrapServers string         `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"localhost:9092"`        // Kafka broker addresses
	GroupID          string         `env:"KAFKA_GROUP_ID"          envDefault:"streamline-consumer"`   // Consumer group ID for offset management
	AutoOffsetReset  string         `env:"KAFKA_AUTO_OFFSET_RESET" envDefault:"earliest"`              // "earliest" or "latest"
	SessionTimeout   *time.Duration `env:"KAFKA_SESSION_TIMEOUT"   envDefault:"240s"`                  // Session timeout for the consumer group
	MaxPollInterval  *time.Duration `env:"KAFKA_MAX_POLL_INTERVAL" envDefault:"3400s"`                 // Max time between polls before the consumer is evicted
	FlushTimeout     *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"     envDefault:"15s"`                   // Producer flush timeout on shutdown
	PollInterval     *time.Duration `env:"KAFKA_POLL_INTERVAL"     envDefault:"100ms"`                 // Poll timeout of the consume loop
	EnableLogs       bool           `env:"KAFKA_ENABLE_LOGS"       envDefault:"false"`                 // Forward librdkafka client logs
	IsDLQConsumer    bool           `env:"KAFKA_IS_DLQ_CONSUMER"   envDefault:"false"`                 // If true, failed messages are not re-sent to the DLQ
}

// LoadConsumerConfig loads the consumer configuration from environment
// variables.
func LoadConsumerConfig() (ConsumerConfig, error) {
	var cfg ConsumerConfig
	if err := env.Parse(&cfg); err != nil {
		return ConsumerConfig{}, fmt.Errorf("failed to parse consumer config: %w", err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of the config with default values filled in
// for any nil pointer fields.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.SessionTimeout == nil {
		timeout := DefaultSessionTimeout
		c.SessionTimeout = &timeout
	}
	if c.MaxPollInterval == nil {
		interval := DefaultMaxPollInterval
		c.MaxPollInterval = &interval
	}
	if c.FlushTimeout == nil {
		timeout := DefaultFlushTimeout
		c.FlushTimeout = &timeout
	}
	if c.PollInterval == nil {
		interval := DefaultPollInterval
		c.PollInterval = &interval
	}
	return c
}

// ConsumerConfigMap builds the librdkafka configuration of the consumer.
// Offsets are committed manually after each message.
func (c ConsumerConfig) ConsumerConfigMap() *cKafka.ConfigMap {
	c = c.WithDefaults()
	return &cKafka.ConfigMap{
		"bootstrap.servers":             c.BootstrapServers,
		"group.id":                      c.GroupID,
		"auto.offset.reset":             c.AutoOffsetReset,
		"enable.auto.commit":            false,
		"session.timeout.ms":            int(c.SessionTimeout.Milliseconds()),
		"max.poll.interval.ms":          int(c.MaxPollInterval.Milliseconds()),
		"partition.assignment.strategy": "roundrobin",
		"go.logs.channel.enable":        c.EnableLogs,
	}
}

// ProducerConfigMap builds the librdkafka configuration shared by the DLQ
// and output producers.
func (c ConsumerConfig) ProducerConfigMap() *cKafka.ConfigMap {
	return &cKafka.ConfigMap{
		"bootstrap.servers":      c.BootstrapServers,
		"acks":                   "all",
		"linger.ms":              5,
		"batch.size":             16384,
		"compression.type":       "lz4",
		"enable.idempotence":     true,
		"go.logs.channel.enable": c.EnableLogs,
	}
}
