package blockfetcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka"
	"github.com/ava-labs/avalanche-streamline/pkg/kafka/message"
)

type fakeClient struct {
	latest uint64
	failAt uint64
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeClient) BlockByNumber(_ context.Context, number uint64) (*chain.Block, error) {
	if f.failAt != 0 && number == f.failAt {
		return nil, errors.New("header not found")
	}
	return &chain.Block{Number: new(big.Int).SetUint64(number), Timestamp: number * 2}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []kafka.Msg
	err  error
}

func (p *recordingPublisher) Produce(_ context.Context, msg kafka.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Errors() <-chan error { return nil }

func (p *recordingPublisher) Close(time.Duration) {}

func (p *recordingPublisher) blocks(t *testing.T) []uint64 {
	t.Helper()
	out := make([]uint64, len(p.msgs))
	for i, msg := range p.msgs {
		env, err := message.OpenAs(msg.Value, message.TypeBlock)
		require.NoError(t, err)
		var blk chain.Block
		require.NoError(t, blk.Unmarshal(env.Data))
		out[i] = blk.NumberU64()
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	log := zap.NewNop().Sugar()
	client := &fakeClient{}
	pub := &recordingPublisher{}

	tests := []struct {
		name    string
		build   func() (*Fetcher, error)
		wantErr error
	}{
		{"nil logger", func() (*Fetcher, error) { return New(nil, client, pub, "blocks", 1) }, ErrInvalidLogger},
		{"nil client", func() (*Fetcher, error) { return New(log, nil, pub, "blocks", 1) }, ErrInvalidClient},
		{"nil publisher", func() (*Fetcher, error) { return New(log, client, nil, "blocks", 1) }, ErrInvalidPublisher},
		{"empty topic", func() (*Fetcher, error) { return New(log, client, pub, "", 1) }, ErrInvalidTopic},
		{"zero concurrency", func() (*Fetcher, error) { return New(log, client, pub, "blocks", 0) }, ErrInvalidConcurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.build()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetcher_PublishesInOrder(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	f, err := New(zap.NewNop().Sugar(), &fakeClient{}, pub, "blocks", 3)
	require.NoError(t, err)

	require.NoError(t, f.Run(t.Context(), 10, 16))
	assert.Equal(t, []uint64{10, 11, 12, 13, 14, 15, 16}, pub.blocks(t))
	assert.Equal(t, "blocks", pub.msgs[0].Topic)
	assert.Equal(t, "blocks", string(pub.msgs[0].Key))
	assert.Equal(t, "10", pub.msgs[0].Headers["block"])
}

func TestFetcher_UpToLatest(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	f, err := New(zap.NewNop().Sugar(), &fakeClient{latest: 3}, pub, "blocks", 8)
	require.NoError(t, err)

	require.NoError(t, f.Run(t.Context(), 1, 0))
	assert.Equal(t, []uint64{1, 2, 3}, pub.blocks(t))
}

func TestFetcher_Errors(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	f, err := New(zap.NewNop().Sugar(), &fakeClient{failAt: 5}, pub, "blocks", 2)
	require.NoError(t, err)

	err = f.Run(t.Context(), 1, 10)
	require.ErrorContains(t, err, "header not found")
	assert.Equal(t, []uint64{1, 2, 3, 4}, pub.blocks(t))

	err = f.Run(t.Context(), 5, 4)
	require.ErrorIs(t, err, ErrInvalidRange)

	failing := &recordingPublisher{err: errors.New("broker down")}
	f, err = New(zap.NewNop().Sugar(), &fakeClient{}, failing, "blocks", 2)
	require.NoError(t, err)
	require.ErrorContains(t, f.Run(t.Context(), 1, 1), "failed to publish block 1: broker down")
}
