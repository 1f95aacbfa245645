package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/avalanche-streamline/internal/chainclient"
	"github.com/ava-labs/avalanche-streamline/pkg/bindings"
	"github.com/ava-labs/avalanche-streamline/pkg/checkpointer"
	"github.com/ava-labs/avalanche-streamline/pkg/clickhouse"
	"github.com/ava-labs/avalanche-streamline/pkg/data/clickhouse/checkpoint"
	"github.com/ava-labs/avalanche-streamline/pkg/data/clickhouse/deltas"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
	"github.com/ava-labs/avalanche-streamline/pkg/runner"
	"github.com/ava-labs/avalanche-streamline/pkg/utils"
)

const readinessTimeout = 2 * time.Second

func run(c *cli.Context) error {
	// Build configuration from CLI flags
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger("run", cfg.Verbose)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"pipeline", cfg.Pipeline,
		"abiDir", cfg.ABIDir,
		"script", cfg.Script,
		"modules", cfg.Modules,
		"storeDir", cfg.StoreDir,
		"rpcConfigured", cfg.RPCURL != "",
		"bootstrapServers", cfg.BootstrapServers,
		"groupID", cfg.GroupID,
		"topic", cfg.Topic,
		"dlqTopic", cfg.DLQTopic,
		"outputTopic", cfg.OutputTopic,
		"autoOffsetReset", cfg.AutoOffsetReset,
		"isDLQConsumer", cfg.IsDLQConsumer,
		"enableKafkaLogs", cfg.EnableKafkaLogs,
		"sessionTimeout", cfg.SessionTimeout,
		"maxPollInterval", cfg.MaxPollInterval,
		"flushTimeout", cfg.FlushTimeout,
		"pollInterval", cfg.PollInterval,
		"useClickHouse", cfg.UseClickHouse,
		"clickhouseHosts", cfg.ClickHouse.Hosts,
		"clickhouseDatabase", cfg.ClickHouse.Database,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"chainID", cfg.ChainID,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var caller bindings.ContractCaller
	if cfg.RPCURL != "" {
		client, err := chainclient.Dial(ctx, cfg.RPCURL, chainclient.WithMetrics(m))
		if err != nil {
			return err
		}
		defer client.Close()
		caller = client
	}

	engine, err := newEngine(cfg, bindings.Env{Log: sugar, Caller: caller, Metrics: m})
	if err != nil {
		return err
	}

	modules, err := runner.OpenModules(cfg.Modules, backends(cfg.StoreDir))
	if err != nil {
		return err
	}

	var (
		chClient clickhouse.Client
		sink     deltas.Repository
		cp       checkpointer.Checkpointer
	)
	if cfg.UseClickHouse {
		chClient, sink, cp, err = openClickHouse(ctx, cfg, sugar)
		if err != nil {
			return err
		}
		defer chClient.Close()
	}

	if err := ensureTopics(ctx, cfg, sugar, cfg.Topics()...); err != nil {
		return err
	}

	consumerCfg := cfg.ConsumerConfig()

	var output kafka.Publisher
	var outputErrCh <-chan error
	if cfg.OutputTopic != "" {
		producer, err := kafka.NewProducer(ctx, consumerCfg.ProducerConfigMap(), sugar)
		if err != nil {
			return fmt.Errorf("failed to create output producer: %w", err)
		}
		defer producer.Close(cfg.FlushTimeout)
		output, outputErrCh = producer, producer.Errors()
	}

	proc := runner.NewBlockProcessor(sugar, m, engine, modules, runner.Config{
		Pipeline:    cfg.Pipeline,
		OutputTopic: cfg.OutputTopic,
		Checkpoint:  cfg.Checkpoint,
	}, output, sink, cp)
	defer func() {
		if err := proc.Close(); err != nil {
			sugar.Warnw("failed to close stores", "error", err)
		}
	}()

	consumer, err := kafka.NewConsumer(ctx, sugar, consumerCfg, proc, m)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	metricsServer, metricsErrCh := startMetricsServer(cfg, registry, readiness(chClient), sugar)
	defer shutdownMetricsServer(metricsServer, sugar)

	sugar.Infow("consumer created, starting consumption",
		"topic", cfg.Topic,
		"groupID", cfg.GroupID,
		"modules", len(modules),
	)

	// Run consumer, output producer and metrics server error handling
	// concurrently using errgroup
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	// Consumer goroutine - blocks until shutdown or error
	g.Go(func() error {
		defer close(done)
		if err := consumer.Start(gctx); err != nil {
			return fmt.Errorf("consumer error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return watch(stopped(gctx, done), "output producer", outputErrCh)
	})
	g.Go(func() error {
		return watch(stopped(gctx, done), "metrics server", metricsErrCh)
	})

	err = g.Wait()
	sugar.Info("shutdown complete")
	return err
}

// openClickHouse connects to ClickHouse and prepares the delta sink and
// the checkpoint table.
func openClickHouse(ctx context.Context, cfg *Config, log *zap.SugaredLogger) (clickhouse.Client, deltas.Repository, checkpointer.Checkpointer, error) {
	client, err := clickhouse.New(ctx, cfg.ClickHouse, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	log.Info("ClickHouse client created successfully")

	sink, err := deltas.NewRepository(ctx, client, cfg.ClickHouse.Database, cfg.ClickHouse.DeltasTable)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("failed to create deltas repository: %w", err)
	}
	log.Infow("deltas table ready", "tableName", cfg.ClickHouse.DeltasTable)

	cp, err := checkpoint.NewRepository(ctx, client, cfg.ClickHouse.Database, cfg.ClickHouse.CheckpointsTable)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("failed to create checkpoint repository: %w", err)
	}
	log.Infow("checkpoints table ready", "tableName", cfg.ClickHouse.CheckpointsTable)

	return client, sink, cp, nil
}

// readiness reports ready while ClickHouse answers pings. Without
// ClickHouse the process is always ready.
func readiness(client clickhouse.Client) metrics.ReadinessFunc {
	return func() error {
		if client == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return client.Ping(ctx)
	}
}
