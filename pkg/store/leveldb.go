package store

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend persists committed state in LevelDB.
// LevelDB handles its own synchronization.
type LevelDBBackend struct {
	db *leveldb.DB
}

// NewLevelDBBackend opens or creates a database at path. An empty path
// uses in-memory storage.
func NewLevelDBBackend(path string) (*LevelDBBackend, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store database at %q: %w", path, err)
	}
	return &LevelDBBackend{db: db}, nil
}

func (b *LevelDBBackend) Get(key string) ([]byte, bool, error) {
	v, err := b.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	return v, true, nil
}

func (b *LevelDBBackend) Prefix(prefix string) ([]KV, error) {
	iter := b.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	var out []KV
	for iter.Next() {
		// The iterator reuses its buffers.
		out = append(out, KV{Key: string(iter.Key()), Value: clone(iter.Value())})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate prefix %q: %w", prefix, err)
	}
	return out, nil
}

func (b *LevelDBBackend) Apply(deltas []Delta) error {
	batch := new(leveldb.Batch)
	for _, d := range deltas {
		if d.Operation == OperationDelete {
			batch.Delete([]byte(d.Key))
			continue
		}
		batch.Put([]byte(d.Key), d.NewValue)
	}
	if err := b.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write %d deltas: %w", len(deltas), err)
	}
	return nil
}

func (b *LevelDBBackend) Close() error {
	return b.db.Close()
}
