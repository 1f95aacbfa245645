package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/urfave/cli/v2"

	"github.com/ava-labs/avalanche-streamline/pkg/checkpointer"
	"github.com/ava-labs/avalanche-streamline/pkg/clickhouse"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
	"github.com/ava-labs/avalanche-streamline/pkg/runner"
)

// Config holds the configuration of every streamline command. Each command
// only reads the fields its flags fill in.
type Config struct {
	Verbose bool

	// Script settings
	ABIDir   string
	Script   string
	Modules  []runner.ModuleSpec
	StoreDir string
	RPCURL   string
	Pipeline string

	// exec settings
	BlockFile   string
	BlockNumber uint64
	Commit      bool

	// fetch settings
	Start       uint64
	End         uint64
	Concurrency int

	// Kafka settings
	BootstrapServers            string
	GroupID                     string
	Topic                       string
	DLQTopic                    string
	OutputTopic                 string
	AutoOffsetReset             string
	IsDLQConsumer               bool
	EnableKafkaLogs             bool
	SessionTimeout              time.Duration
	MaxPollInterval             time.Duration
	FlushTimeout                time.Duration
	PollInterval                time.Duration
	KafkaTopicNumPartitions     int
	KafkaTopicReplicationFactor int

	// ClickHouse settings, read from the environment when enabled
	UseClickHouse bool
	ClickHouse    clickhouse.Config
	Checkpoint    checkpointer.Config

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	ChainID       uint64
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// MetricsLabels returns the constant labels of every metric.
func (c *Config) MetricsLabels() metrics.Labels {
	return metrics.Labels{
		EVMChainID:    c.ChainID,
		Environment:   c.Environment,
		Region:        c.Region,
		CloudProvider: c.CloudProvider,
	}
}

// ConsumerConfig returns the settings of the block consumer and its
// producers.
func (c *Config) ConsumerConfig() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Topic:            c.Topic,
		DLQTopic:         c.DLQTopic,
		OutputTopic:      c.OutputTopic,
		BootstrapServers: c.BootstrapServers,
		GroupID:          c.GroupID,
		AutoOffsetReset:  c.AutoOffsetReset,
		SessionTimeout:   &c.SessionTimeout,
		MaxPollInterval:  &c.MaxPollInterval,
		FlushTimeout:     &c.FlushTimeout,
		PollInterval:     &c.PollInterval,
		EnableLogs:       c.EnableKafkaLogs,
		IsDLQConsumer:    c.IsDLQConsumer,
	}
}

// Topics returns the topics the run command reads or writes.
func (c *Config) Topics() []kafka.TopicConfig {
	names := []string{c.Topic}
	if c.DLQTopic != "" && !c.IsDLQConsumer {
		names = append(names, c.DLQTopic)
	}
	if c.OutputTopic != "" {
		names = append(names, c.OutputTopic)
	}
	out := make([]kafka.TopicConfig, len(names))
	for i, name := range names {
		out[i] = kafka.TopicConfig{
			Name:              name,
			NumPartitions:     c.KafkaTopicNumPartitions,
			ReplicationFactor: c.KafkaTopicReplicationFactor,
		}
	}
	return out
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	modules, err := buildModules(c.StringSlice("module"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose:                     c.Bool("verbose"),
		ABIDir:                      c.String("abi-dir"),
		Script:                      c.String("script"),
		Modules:                     modules,
		StoreDir:                    c.String("store-dir"),
		RPCURL:                      c.String("rpc-url"),
		Pipeline:                    c.String("pipeline"),
		BlockFile:                   c.String("block"),
		BlockNumber:                 c.Uint64("block-number"),
		Commit:                      c.Bool("commit"),
		Start:                       c.Uint64("start"),
		End:                         c.Uint64("end"),
		Concurrency:                 c.Int("concurrency"),
		BootstrapServers:            c.String("bootstrap-servers"),
		GroupID:                     c.String("group-id"),
		Topic:                       c.String("topic"),
		DLQTopic:                    c.String("dlq-topic"),
		OutputTopic:                 c.String("output-topic"),
		AutoOffsetReset:             c.String("auto-offset-reset"),
		IsDLQConsumer:               c.Bool("is-dlq-consumer"),
		EnableKafkaLogs:             c.Bool("enable-kafka-logs"),
		SessionTimeout:              c.Duration("session-timeout"),
		MaxPollInterval:             c.Duration("max-poll-interval"),
		FlushTimeout:                c.Duration("flush-timeout"),
		PollInterval:                c.Duration("poll-interval"),
		KafkaTopicNumPartitions:     c.Int("kafka-topic-num-partitions"),
		KafkaTopicReplicationFactor: c.Int("kafka-topic-replication-factor"),
		UseClickHouse:               c.Bool("clickhouse"),
		Checkpoint:                  checkpointer.DefaultConfig(),
		MetricsHost:                 c.String("metrics-host"),
		MetricsPort:                 c.Int("metrics-port"),
		ChainID:                     c.Uint64("chain-id"),
		Environment:                 c.String("environment"),
		Region:                      c.String("region"),
		CloudProvider:               c.String("cloud-provider"),
	}

	if cfg.UseClickHouse {
		if cfg.ClickHouse, err = clickhouse.Load(); err != nil {
			return nil, err
		}
		if err := env.Parse(&cfg.Checkpoint); err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint config: %w", err)
		}
	}
	return cfg, nil
}

func buildModules(specs []string) ([]runner.ModuleSpec, error) {
	out := make([]runner.ModuleSpec, 0, len(specs))
	for _, s := range specs {
		spec, err := runner.ParseModuleSpec(s)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}
