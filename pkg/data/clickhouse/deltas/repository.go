// Package deltas persists store deltas to ClickHouse, one row per delta.
package deltas

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/ava-labs/avalanche-streamline/pkg/clickhouse"
	"github.com/ava-labs/avalanche-streamline/pkg/store"
)

// Repository writes the deltas produced by store modules.
type Repository interface {
	CreateTableIfNotExists(ctx context.Context) error
	WriteDeltas(ctx context.Context, blockNumber uint64, module string, deltas []store.Delta) error
	// DeleteFrom removes the deltas of module at blockNumber and above, for
	// reprocessing a range.
	DeleteFrom(ctx context.Context, module string, blockNumber uint64) error
}

var _ Repository = (*repository)(nil)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/insert-deltas.sql
var insertDeltasQuery string

//go:embed queries/delete-from.sql
var deleteFromQuery string

const rowPlaceholder = "(?, ?, ?, ?, ?, ?, ?)"

type repository struct {
	client    clickhouse.Client
	database  string
	tableName string
}

// NewRepository creates the repository and its table.
func NewRepository(ctx context.Context, client clickhouse.Client, database, tableName string) (Repository, error) {
	repo := &repository{client: client, database: database, tableName: tableName}
	if err := repo.CreateTableIfNotExists(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// CreateTableIfNotExists creates the deltas table. Rows are deduplicated on
// (module, block_number, ordinal) so writing a block twice is harmless.
func (r *repository) CreateTableIfNotExists(ctx context.Context) error {
	query := fmt.Sprintf(createTableQuery, r.database, r.tableName)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create deltas table: %w", err)
	}
	return nil
}

// WriteDeltas inserts all deltas of one module for one block in a single
// statement. Nothing is written when deltas is empty.
func (r *repository) WriteDeltas(ctx context.Context, blockNumber uint64, module string, deltas []store.Delta) error {
	if len(deltas) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(strings.TrimSpace(insertDeltasQuery), r.database, r.tableName))
	args := make([]any, 0, len(deltas)*7)
	for i, d := range deltas {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(" ")
		sb.WriteString(rowPlaceholder)
		args = append(args,
			module,
			blockNumber,
			d.Ordinal,
			d.Operation.String(),
			d.Key,
			nullableString(d.OldValue),
			nullableString(d.NewValue),
		)
	}

	if err := r.client.Conn().Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to write %d deltas of %s at block %d: %w", len(deltas), module, blockNumber, err)
	}
	return nil
}

func (r *repository) DeleteFrom(ctx context.Context, module string, blockNumber uint64) error {
	query := fmt.Sprintf(strings.TrimSpace(deleteFromQuery), r.database, r.tableName)
	if err := r.client.Conn().Exec(ctx, query, module, blockNumber); err != nil {
		return fmt.Errorf("failed to delete deltas: %w", err)
	}
	return nil
}

func nullableString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
