package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/bindings"
	"github.com/ava-labs/avalanche-streamline/pkg/descriptor"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
	"github.com/ava-labs/avalanche-streamline/pkg/runner"
	"github.com/ava-labs/avalanche-streamline/pkg/scriptvm"
)

func loadRegistry(dir string) (*bindings.Registry, error) {
	cis, err := descriptor.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return bindings.Build(cis)
}

// newEngine compiles the script of cfg against the descriptors of cfg.
func newEngine(cfg *Config, env bindings.Env) (*scriptvm.Engine, error) {
	registry, err := loadRegistry(cfg.ABIDir)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(cfg.Script)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return scriptvm.New(registry, filepath.Base(cfg.Script), string(source), env)
}

func backends(storeDir string) runner.BackendFactory {
	if storeDir == "" {
		return runner.MemoryBackends
	}
	return runner.LevelDBBackends(storeDir)
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}

func ensureTopics(ctx context.Context, cfg *Config, log *zap.SugaredLogger, topics ...kafka.TopicConfig) error {
	admin, err := cKafka.NewAdminClient(&cKafka.ConfigMap{"bootstrap.servers": cfg.BootstrapServers})
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	if err := kafka.EnsureTopics(ctx, admin, log, topics...); err != nil {
		return fmt.Errorf("failed to ensure kafka topics exist: %w", err)
	}
	return nil
}

func startMetricsServer(cfg *Config, gatherer prometheus.Gatherer, ready metrics.ReadinessFunc, log *zap.SugaredLogger) (*metrics.Server, <-chan error) {
	server := metrics.NewServer(cfg.MetricsAddr(), gatherer, ready)
	errCh := server.Start()
	if cfg.MetricsHost == "" {
		log.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		log.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}
	return server, errCh
}

func shutdownMetricsServer(server *metrics.Server, log *zap.SugaredLogger) {
	log.Info("shutting down metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnw("metrics server shutdown error", "error", err)
	}
}

// watch returns the first error received on errCh, or nil once ctx is done
// or errCh is closed.
func watch(ctx context.Context, name string, errCh <-chan error) error {
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errCh:
		if !ok || err == nil {
			return nil
		}
		return fmt.Errorf("%s error: %w", name, err)
	}
}
