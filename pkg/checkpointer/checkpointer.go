package checkpointer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Checkpointer abstracts checkpoint persistence across different data stores. A checkpoint
// holds the next block a pipeline has not processed yet, so that blocks redelivered after a
// restart are not applied to the store twice.
type Checkpointer interface {
	// Initialize ensures the underlying storage is ready (creates tables, schemas, etc.). This
	// should be idempotent and safe to call multiple times.
	Initialize(ctx context.Context) error

	// Write persists the checkpoint of a pipeline.
	Write(ctx context.Context, pipeline string, nextBlock uint64) error

	// Read retrieves the latest checkpoint of a pipeline. If none exists, exists is false and
	// nextBlock is 0.
	Read(ctx context.Context, pipeline string) (nextBlock uint64, exists bool, err error)
}

// Write persists a checkpoint, retrying failed writes as configured.
//
// Returns ctx.Err() when ctx is done before a write succeeds.
func Write(
	ctx context.Context,
	checkpointer Checkpointer,
	cfg Config,
	pipeline string,
	nextBlock uint64,
) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		writeCtx, cancel := context.WithTimeout(ctx, cfg.WriteTimeout)
		lastErr = checkpointer.Write(writeCtx, pipeline, nextBlock)
		cancel()
		if lastErr == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("failed to write checkpoint (pipeline: %s, next: %d) after %d attempts: %w",
		pipeline, nextBlock, cfg.MaxRetries+1, lastErr)
}

// Memory keeps checkpoints in process memory.
type Memory struct {
	mu   sync.Mutex
	next map[string]uint64
}

var _ Checkpointer = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{next: make(map[string]uint64)}
}

func (m *Memory) Initialize(context.Context) error { return nil }

func (m *Memory) Write(_ context.Context, pipeline string, nextBlock uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next[pipeline] = nextBlock
	return nil
}

func (m *Memory) Read(_ context.Context, pipeline string) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, ok := m.next[pipeline]
	return next, ok, nil
}
