package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/avalanche-streamline/internal/chainclient"
	"github.com/ava-labs/avalanche-streamline/pkg/bindings"
	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/runner"
	"github.com/ava-labs/avalanche-streamline/pkg/utils"
)

var errNoBlock = errors.New("either --block or --rpc-url with --block-number is required")

// execBlock evaluates the modules once and prints the result. Store writes
// are discarded unless --commit is set.
func execBlock(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger("exec", cfg.Verbose)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx := c.Context

	var (
		client *chainclient.Client
		caller bindings.ContractCaller
	)
	if cfg.RPCURL != "" {
		client, err = chainclient.Dial(ctx, cfg.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()
		caller = client
	}

	blk, err := loadBlock(ctx, cfg, client)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg, bindings.Env{Log: sugar, Caller: caller})
	if err != nil {
		return err
	}
	modules, err := runner.OpenModules(cfg.Modules, backends(cfg.StoreDir))
	if err != nil {
		return err
	}
	proc := runner.NewBlockProcessor(sugar, nil, engine, modules, runner.Config{}, nil, nil, nil)
	defer func() {
		if err := proc.Close(); err != nil {
			sugar.Warnw("failed to close stores", "error", err)
		}
	}()

	res, err := proc.Evaluate(ctx, blk)
	if err != nil {
		return err
	}
	if cfg.Commit {
		if err := proc.Commit(); err != nil {
			return err
		}
	}
	return writeJSON(c.App.Writer, res.Value())
}

func loadBlock(ctx context.Context, cfg *Config, client *chainclient.Client) (*chain.Block, error) {
	if cfg.BlockFile != "" {
		raw, err := os.ReadFile(cfg.BlockFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read block: %w", err)
		}
		var blk chain.Block
		if err := blk.Unmarshal(raw); err != nil {
			return nil, fmt.Errorf("failed to decode block %s: %w", cfg.BlockFile, err)
		}
		return &blk, nil
	}
	if client == nil {
		return nil, errNoBlock
	}
	return client.BlockByNumber(ctx, cfg.BlockNumber)
}
