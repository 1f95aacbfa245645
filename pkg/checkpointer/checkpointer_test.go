package checkpointer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCheckpointer struct {
	mock.Mock
}

func (m *mockCheckpointer) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockCheckpointer) Write(ctx context.Context, pipeline string, nextBlock uint64) error {
	args := m.Called(ctx, pipeline, nextBlock)
	return args.Error(0)
}

func (m *mockCheckpointer) Read(ctx context.Context, pipeline string) (uint64, bool, error) {
	args := m.Called(ctx, pipeline)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func TestWrite_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	checkpointer := &mockCheckpointer{}
	checkpointer.On("Write", mock.Anything, "erc20", uint64(11)).Return(errors.New("timeout")).Twice()
	checkpointer.On("Write", mock.Anything, "erc20", uint64(11)).Return(nil).Once()

	cfg := Config{WriteTimeout: time.Second, MaxRetries: 3, RetryBackoff: time.Millisecond}
	require.NoError(t, Write(t.Context(), checkpointer, cfg, "erc20", 11))
	checkpointer.AssertExpectations(t)
}

func TestWrite_ErrorPropagates(t *testing.T) {
	t.Parallel()
	checkpointer := &mockCheckpointer{}
	writeErr := errors.New("write failed")
	checkpointer.
		On("Write", mock.Anything, "erc20", uint64(1)).
		Return(writeErr).
		Times(4) // initial try + 3 retries

	cfg := Config{WriteTimeout: time.Second, MaxRetries: 3, RetryBackoff: time.Millisecond}
	err := Write(t.Context(), checkpointer, cfg, "erc20", 1)
	require.ErrorIs(t, err, writeErr)
	require.ErrorContains(t, err, "after 4 attempts")
	checkpointer.AssertExpectations(t)
}

func TestWrite_CanceledContext(t *testing.T) {
	t.Parallel()
	checkpointer := &mockCheckpointer{}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := Write(ctx, checkpointer, DefaultConfig(), "erc20", 1)
	require.ErrorIs(t, err, context.Canceled)
	checkpointer.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything)
}

func TestMemory(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	require.NoError(t, m.Initialize(t.Context()))

	_, exists, err := m.Read(t.Context(), "erc20")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.Write(t.Context(), "erc20", 5))
	require.NoError(t, m.Write(t.Context(), "erc20", 6))
	next, exists, err := m.Read(t.Context(), "erc20")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, uint64(6), next)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 1*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 300*time.Millisecond, cfg.RetryBackoff)
}
