package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

func verboseFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Enable verbose logging",
		EnvVars: []string{"STREAMLINE_VERBOSE"},
	}
}

func abiDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "abi-dir",
		Usage:    "Directory of ABI descriptors, one <contract>.json per contract",
		EnvVars:  []string{"STREAMLINE_ABI_DIR"},
		Required: true,
	}
}

// scriptFlags select the script and the modules it exposes.
func scriptFlags() []cli.Flag {
	return []cli.Flag{
		abiDirFlag(),
		&cli.StringFlag{
			Name:     "script",
			Aliases:  []string{"s"},
			Usage:    "Path of the JavaScript file defining the modules",
			EnvVars:  []string{"STREAMLINE_SCRIPT"},
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:     "module",
			Aliases:  []string{"m"},
			Usage:    "Module to run, in order: name, name=map, name=store:<set|set_if_not_exists> or name=store:get:<store module>",
			EnvVars:  []string{"STREAMLINE_MODULES"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "store-dir",
			Usage:   "Directory of the LevelDB store of each store module (empty keeps stores in memory)",
			EnvVars: []string{"STREAMLINE_STORE_DIR"},
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "EVM RPC endpoint used for contract calls and block fetching",
			EnvVars: []string{"STREAMLINE_RPC_URL"},
		},
	}
}

func kafkaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "bootstrap-servers",
			Aliases:  []string{"b"},
			Usage:    "Kafka bootstrap servers (comma-separated)",
			EnvVars:  []string{"KAFKA_BOOTSTRAP_SERVERS"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "topic",
			Aliases: []string{"t"},
			Usage:   "Kafka topic carrying block envelopes",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   "blocks",
		},
		&cli.BoolFlag{
			Name:    "enable-kafka-logs",
			Usage:   "Enable librdkafka client logs",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},
		&cli.DurationFlag{
			Name:    "flush-timeout",
			Usage:   "Kafka producer flush timeout when closing",
			EnvVars: []string{"KAFKA_FLUSH_TIMEOUT"},
			Value:   15 * time.Second,
		},
		&cli.IntFlag{
			Name:    "kafka-topic-num-partitions",
			Usage:   "The number of partitions of the created topics (must be greater than 0)",
			EnvVars: []string{"KAFKA_TOPIC_NUM_PARTITIONS"},
			Value:   1,
		},
		&cli.IntFlag{
			Name:    "kafka-topic-replication-factor",
			Usage:   "The replication factor of the created topics (must be greater than 0)",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
			Value:   1,
		},
	}
}

func metricsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for the Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Port for the Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Usage:   "EVM chain ID added as a label to every metric",
			EnvVars: []string{"CHAIN_ID"},
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label (e.g. production, staging)",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region label",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider label",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
}

func generateFlags() []cli.Flag {
	return []cli.Flag{verboseFlag(), abiDirFlag()}
}

func execFlags() []cli.Flag {
	flags := []cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:    "block",
			Usage:   "Path of a block JSON file to evaluate",
			EnvVars: []string{"STREAMLINE_BLOCK"},
		},
		&cli.Uint64Flag{
			Name:    "block-number",
			Usage:   "Block to fetch over --rpc-url when --block is not given",
			EnvVars: []string{"STREAMLINE_BLOCK_NUMBER"},
		},
		&cli.BoolFlag{
			Name:    "commit",
			Usage:   "Commit store writes instead of discarding them",
			EnvVars: []string{"STREAMLINE_COMMIT"},
		},
	}
	return append(flags, scriptFlags()...)
}

func fetchFlags() []cli.Flag {
	flags := []cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:     "rpc-url",
			Usage:    "EVM RPC endpoint to fetch blocks from",
			EnvVars:  []string{"STREAMLINE_RPC_URL"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:     "start",
			Usage:    "First block to publish",
			EnvVars:  []string{"FETCH_START_BLOCK"},
			Required: true,
		},
		&cli.Uint64Flag{
			Name:    "end",
			Usage:   "Last block to publish (0 for the latest block)",
			EnvVars: []string{"FETCH_END_BLOCK"},
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Blocks fetched concurrently",
			EnvVars: []string{"FETCH_CONCURRENCY"},
			Value:   10,
		},
	}
	flags = append(flags, kafkaFlags()...)
	return append(flags, metricsFlags()...)
}

func runFlags() []cli.Flag {
	flags := []cli.Flag{
		verboseFlag(),
		&cli.StringFlag{
			Name:    "pipeline",
			Usage:   "Pipeline name, used as checkpoint key and output message key",
			EnvVars: []string{"STREAMLINE_PIPELINE"},
			Value:   "streamline",
		},
		&cli.StringFlag{
			Name:     "group-id",
			Aliases:  []string{"g"},
			Usage:    "Kafka consumer group ID",
			EnvVars:  []string{"KAFKA_GROUP_ID"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "dlq-topic",
			Usage:   "Dead letter queue topic for blocks that failed processing (empty to stop on failure)",
			EnvVars: []string{"KAFKA_DLQ_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "output-topic",
			Usage:   "Topic receiving module outputs (empty to disable)",
			EnvVars: []string{"KAFKA_OUTPUT_TOPIC"},
			Value:   "streamline-output",
		},
		&cli.StringFlag{
			Name:    "auto-offset-reset",
			Aliases: []string{"o"},
			Usage:   "Kafka auto offset reset policy (earliest, latest, none)",
			EnvVars: []string{"KAFKA_AUTO_OFFSET_RESET"},
			Value:   "earliest",
		},
		&cli.BoolFlag{
			Name:    "is-dlq-consumer",
			Usage:   "Consume a DLQ topic; failed messages are not re-sent to a DLQ",
			EnvVars: []string{"KAFKA_IS_DLQ_CONSUMER"},
		},
		&cli.DurationFlag{
			Name:    "session-timeout",
			Usage:   "Kafka consumer session timeout",
			EnvVars: []string{"KAFKA_SESSION_TIMEOUT"},
			Value:   240 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "max-poll-interval",
			Usage:   "Kafka consumer max poll interval",
			EnvVars: []string{"KAFKA_MAX_POLL_INTERVAL"},
			Value:   3400 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Poll interval for Kafka consumer",
			EnvVars: []string{"KAFKA_POLL_INTERVAL"},
			Value:   100 * time.Millisecond,
		},
		&cli.BoolFlag{
			Name:    "clickhouse",
			Usage:   "Write store deltas and checkpoints to ClickHouse (configured through CLICKHOUSE_* variables)",
			EnvVars: []string{"STREAMLINE_CLICKHOUSE"},
		},
	}
	flags = append(flags, scriptFlags()...)
	flags = append(flags, kafkaFlags()...)
	return append(flags, metricsFlags()...)
}
