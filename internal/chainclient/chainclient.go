// Package chainclient reads blocks and performs read-only contract calls
// against an EVM JSON-RPC endpoint.
package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ava-labs/avalanche-streamline/pkg/bindings"
	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
)

// ChainClient is what the fetcher needs from a node.
type ChainClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error)
}

// backend is the part of *ethclient.Client the Client uses.
type backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BlockReceipts(ctx context.Context, blockNrOrHash rpc.BlockNumberOrHash) ([]*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Client wraps an ethclient.
type Client struct {
	eth     backend
	metrics *metrics.Metrics // nil if metrics disabled
}

var (
	_ ChainClient             = (*Client)(nil)
	_ bindings.ContractCaller = (*Client)(nil)
)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Dial connects to url, which may be an HTTP or websocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return newClient(eth, opts...), nil
}

func newClient(eth backend, opts ...Option) *Client {
	c := &Client{eth: eth}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.observe("BlockNumber", func() error {
		var err error
		n, err = c.eth.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return n, nil
}

// BlockByNumber fetches a block and its receipts and flattens their logs.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error) {
	n := new(big.Int).SetUint64(number)

	var block *types.Block
	err := c.observe("BlockByNumber", func() error {
		var err error
		block, err = c.eth.BlockByNumber(ctx, n)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get block by number %d: %w", number, err)
	}

	var receipts []*types.Receipt
	err = c.observe("BlockReceipts", func() error {
		var err error
		receipts, err = c.eth.BlockReceipts(ctx, rpc.BlockNumberOrHashWithHash(block.Hash(), false))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get receipts of block %d: %w", number, err)
	}

	return chain.FromGeth(block, receipts), nil
}

// CallContract performs an eth_call at blockNumber.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := c.observe("CallContract", func() error {
		var err error
		out, err = c.eth.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func (c *Client) observe(method string, call func() error) error {
	start := time.Now()
	c.metrics.IncRPCInFlight()
	defer c.metrics.DecRPCInFlight()

	err := call()
	c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	return err
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	c.eth.Close()
}
