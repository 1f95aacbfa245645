package clickhouse

import (
	"errors"
	"net"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/clickhouse/mocks"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, "store_deltas", cfg.DeltasTable)
	assert.Equal(t, "checkpoints", cfg.CheckpointsTable)
	assert.Equal(t, 60, cfg.MaxExecutionTime)
	assert.Equal(t, 1000, cfg.MaxBlockSize)
	assert.Equal(t, "streamline", cfg.ClientName)
	assert.True(t, cfg.InsecureSkipVerify)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("CLICKHOUSE_HOSTS", "ch-1:9000,ch-2:9000")
	t.Setenv("CLICKHOUSE_DATABASE", "streamline")
	t.Setenv("CLICKHOUSE_DELTAS_TABLE", "deltas")
	t.Setenv("CLICKHOUSE_MAX_OPEN_CONNS", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ch-1:9000", "ch-2:9000"}, cfg.Hosts)
	assert.Equal(t, "streamline", cfg.Database)
	assert.Equal(t, "deltas", cfg.DeltasTable)
	assert.Equal(t, 12, cfg.MaxOpenConns)
}

func TestLoad_InvalidNumber(t *testing.T) {
	t.Setenv("CLICKHOUSE_MAX_OPEN_CONNS", "many")

	_, err := Load()
	require.ErrorContains(t, err, "failed to parse clickhouse config")
}

func TestNew_InvalidAddress(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Hosts:       []string{"invalid:99999"},
		Database:    "test",
		DialTimeout: 1,
	}

	c, err := New(t.Context(), cfg, zap.NewNop().Sugar())
	var addrErr *net.AddrError
	require.ErrorAs(t, err, &addrErr)
	assert.Equal(t, "invalid port", addrErr.Err)
	assert.Nil(t, c)
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Hosts:                []string{"localhost:9000"},
		Database:             "streamline",
		Username:             "writer",
		Debug:                true,
		MaxExecutionTime:     120,
		DialTimeout:          5,
		MaxOpenConns:         10,
		ConnMaxLifetime:      20,
		BlockBufferSize:      20,
		MaxBlockSize:         2000,
		MaxCompressionBuffer: 20480,
		ClientName:           "custom-client",
		ClientVersion:        "2.0",
	}

	opts := options(cfg, zap.NewNop().Sugar())
	assert.Equal(t, cfg.Hosts, opts.Addr)
	assert.Equal(t, "streamline", opts.Auth.Database)
	assert.Equal(t, "writer", opts.Auth.Username)
	assert.Equal(t, 120, opts.Settings[maxExecutionTime])
	assert.Equal(t, 2000, opts.Settings[maxBlockSize])
	assert.Equal(t, clickhouse.CompressionLZ4, opts.Compression.Method)
	assert.Equal(t, uint8(20), opts.BlockBufferSize)
	assert.Equal(t, "custom-client", opts.ClientInfo.Products[0].Name)
	assert.NotNil(t, opts.Debugf)
	assert.False(t, opts.TLS.InsecureSkipVerify)

	cfg.Debug = false
	assert.Nil(t, options(cfg, zap.NewNop().Sugar()).Debugf)
}

func TestClient_Delegates(t *testing.T) {
	t.Parallel()

	conn := &mocks.MockConn{}
	conn.On("Ping", t.Context()).Return(nil).Once()
	conn.On("Close").Return(nil).Once()

	c := NewWithConn(conn, zap.NewNop().Sugar())
	assert.Same(t, conn, c.Conn())
	require.NoError(t, c.Ping(t.Context()))
	require.NoError(t, c.Close())
	conn.AssertExpectations(t)
}

func TestClient_PingException(t *testing.T) {
	t.Parallel()

	exception := &clickhouse.Exception{Code: 516, Message: "Authentication failed"}
	conn := &mocks.MockConn{}
	conn.On("Ping", t.Context()).Return(exception)

	err := NewWithConn(conn, zap.NewNop().Sugar()).Ping(t.Context())

	var ex *clickhouse.Exception
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, int32(516), ex.Code)
}
