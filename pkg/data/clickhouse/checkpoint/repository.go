package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ava-labs/avalanche-streamline/pkg/checkpointer"
	"github.com/ava-labs/avalanche-streamline/pkg/clickhouse"
)

// Repository is used to write and read pipeline checkpoints to persistent storage (ClickHouse).
// It implements the checkpointer.Checkpointer interface.
type Repository interface {
	checkpointer.Checkpointer
	WriteCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	ReadCheckpoint(ctx context.Context, pipeline string) (*Checkpoint, error)
}

var _ Repository = (*repository)(nil)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/write-checkpoint.sql
var writeCheckpointQuery string

//go:embed queries/read-checkpoint.sql
var readCheckpointQuery string

type repository struct {
	client    clickhouse.Client
	database  string
	tableName string
}

func NewRepository(ctx context.Context, client clickhouse.Client, database, tableName string) (Repository, error) {
	repo := &repository{client: client, database: database, tableName: tableName}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// Initialize ensures the checkpoints table exists in ClickHouse.
// Schema:
//   - pipeline: String (primary key)
//   - next_block: UInt64
//   - timestamp: Int64 (used by ReplacingMergeTree for deduplication)
func (r *repository) Initialize(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, r.query(createTableQuery)); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// Write persists a checkpoint with the current Unix timestamp in seconds.
func (r *repository) Write(ctx context.Context, pipeline string, nextBlock uint64) error {
	return r.WriteCheckpoint(ctx, &Checkpoint{
		Pipeline:  pipeline,
		NextBlock: nextBlock,
		Timestamp: time.Now().Unix(),
	})
}

func (r *repository) WriteCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	err := r.client.Conn().
		Exec(ctx, r.query(writeCheckpointQuery), checkpoint.Pipeline, checkpoint.NextBlock, checkpoint.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (r *repository) Read(ctx context.Context, pipeline string) (uint64, bool, error) {
	checkpoint, err := r.ReadCheckpoint(ctx, pipeline)
	if err != nil {
		return 0, false, err
	}
	if checkpoint == nil {
		return 0, false, nil
	}
	return checkpoint.NextBlock, true, nil
}

// ReadCheckpoint returns the latest checkpoint of pipeline, or nil when there is none.
func (r *repository) ReadCheckpoint(ctx context.Context, pipeline string) (*Checkpoint, error) {
	var checkpoint Checkpoint
	err := r.client.Conn().
		QueryRow(ctx, r.query(readCheckpointQuery), pipeline).
		Scan(&checkpoint.Pipeline, &checkpoint.NextBlock, &checkpoint.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (r *repository) query(tmpl string) string {
	return fmt.Sprintf(strings.TrimSpace(tmpl), r.database, r.tableName)
}
