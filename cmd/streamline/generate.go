package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/avalanche-streamline/pkg/utils"
)

func generate(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger("generate", cfg.Verbose)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	registry, err := loadRegistry(cfg.ABIDir)
	if err != nil {
		return err
	}
	accessors := registry.Accessors()
	sugar.Infow("generated accessors",
		"contracts", registry.Contracts(),
		"accessors", len(accessors),
	)
	return writeJSON(c.App.Writer, accessors)
}
