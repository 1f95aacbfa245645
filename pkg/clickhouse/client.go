package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Client wraps the ClickHouse connection.
type Client interface {
	Conn() driver.Conn
	Ping(ctx context.Context) error
	Close() error
}

const (
	maxExecutionTime = "max_execution_time"
	maxBlockSize     = "max_block_size"

	defaultPingTimeout = 10 * time.Second
)

type client struct {
	conn driver.Conn
	log  *zap.SugaredLogger
}

// New opens a connection and pings it. A failed ping is returned as an
// error since nothing can be persisted without ClickHouse.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (Client, error) {
	conn, err := clickhouse.Open(options(cfg, log))
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		var exception *clickhouse.Exception
		if errors.As(err, &exception) {
			log.Errorw("failed to ping ClickHouse", "code", exception.Code, "error", exception.Message)
		} else {
			log.Errorw("failed to ping ClickHouse", "error", err)
		}
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return NewWithConn(conn, log), nil
}

// NewWithConn wraps an existing connection, such as a mock.
func NewWithConn(conn driver.Conn, log *zap.SugaredLogger) Client {
	return &client{conn: conn, log: log}
}

func options(cfg Config, log *zap.SugaredLogger) *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialContext: func(ctx context.Context, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
		Settings: clickhouse.Settings{
			maxExecutionTime: cfg.MaxExecutionTime,
			maxBlockSize:     cfg.MaxBlockSize,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:          time.Duration(cfg.DialTimeout) * time.Second,
		MaxOpenConns:         cfg.MaxOpenConns,
		MaxIdleConns:         cfg.MaxIdleConns,
		ConnMaxLifetime:      time.Duration(cfg.ConnMaxLifetime) * time.Minute,
		ConnOpenStrategy:     clickhouse.ConnOpenInOrder,
		BlockBufferSize:      uint8(cfg.BlockBufferSize),
		MaxCompressionBuffer: cfg.MaxCompressionBuffer,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: cfg.ClientName, Version: cfg.ClientVersion},
			},
		},
		TLS: &tls.Config{
			//nolint:gosec // configurable for development clusters
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	if cfg.Debug && log != nil {
		opts.Debugf = func(format string, v ...any) {
			log.Debugf(format, v...)
		}
	}
	return opts
}

func (c *client) Conn() driver.Conn {
	return c.conn
}

func (c *client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *client) Close() error {
	return c.conn.Close()
}
