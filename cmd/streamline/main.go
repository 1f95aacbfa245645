package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "streamline",
		Usage: "Run scripted modules over EVM blocks streamed through Kafka",
		Commands: []*cli.Command{
			{
				Name:   "generate",
				Usage:  "Generate the accessor table of the ABI descriptors and print it",
				Flags:  generateFlags(),
				Action: generate,
			},
			{
				Name:   "exec",
				Usage:  "Evaluate the modules against a single block and print the result",
				Flags:  execFlags(),
				Action: execBlock,
			},
			{
				Name:   "fetch",
				Usage:  "Fetch blocks over RPC and publish them to Kafka",
				Flags:  fetchFlags(),
				Action: fetch,
			},
			{
				Name:   "run",
				Usage:  "Consume blocks from Kafka and run the modules against each of them",
				Flags:  runFlags(),
				Action: run,
			},
		},
	}
}
