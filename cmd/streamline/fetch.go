package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/avalanche-streamline/internal/blockfetcher"
	"github.com/ava-labs/avalanche-streamline/internal/chainclient"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
	"github.com/ava-labs/avalanche-streamline/pkg/utils"
)

func fetch(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger("fetch", cfg.Verbose)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"start", cfg.Start,
		"end", cfg.End,
		"concurrency", cfg.Concurrency,
		"bootstrapServers", cfg.BootstrapServers,
		"topic", cfg.Topic,
		"flushTimeout", cfg.FlushTimeout,
		"kafkaTopicNumPartitions", cfg.KafkaTopicNumPartitions,
		"kafkaTopicReplicationFactor", cfg.KafkaTopicReplicationFactor,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"chainID", cfg.ChainID,
	)

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, cfg.MetricsLabels())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	metricsServer, metricsErrCh := startMetricsServer(cfg, registry, nil, sugar)
	defer shutdownMetricsServer(metricsServer, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chainclient.Dial(ctx, cfg.RPCURL, chainclient.WithMetrics(m))
	if err != nil {
		return err
	}
	defer client.Close()

	err = ensureTopics(ctx, cfg, sugar, kafka.TopicConfig{
		Name:              cfg.Topic,
		NumPartitions:     cfg.KafkaTopicNumPartitions,
		ReplicationFactor: cfg.KafkaTopicReplicationFactor,
	})
	if err != nil {
		return err
	}

	producer, err := kafka.NewProducer(ctx, cfg.ConsumerConfig().ProducerConfigMap(), sugar)
	if err != nil {
		return err
	}
	defer producer.Close(cfg.FlushTimeout)

	fetcher, err := blockfetcher.New(sugar, client, producer, cfg.Topic, cfg.Concurrency)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		if err := fetcher.Run(gctx, cfg.Start, cfg.End); err != nil && ctx.Err() == nil {
			return fmt.Errorf("fetcher error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return watch(stopped(gctx, done), "producer", producer.Errors())
	})
	g.Go(func() error {
		return watch(stopped(gctx, done), "metrics server", metricsErrCh)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	sugar.Info("fetch complete")
	return nil
}

// stopped returns a context that is done once ctx is done or done is
// closed.
func stopped(ctx context.Context, done <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-ctx.Done():
		case <-done:
		}
	}()
	return ctx
}
