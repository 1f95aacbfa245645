// Package utils holds process-wide helpers shared by the commands.
package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewSugaredLogger creates the logger of a command. Verbose selects the
// development config at debug level; otherwise JSON lines at info level
// with ISO 8601 timestamps. The logger is named after the command.
func NewSugaredLogger(name string, verbose bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l.Named(name).Sugar(), nil
}
