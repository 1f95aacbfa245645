package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrOrdinalNotIncreasing = errors.New("ordinal not increasing")

type pendingValue struct {
	value   []byte
	deleted bool
}

// Store is the visibility scope of one block over a Backend. Writes are
// buffered as deltas until Commit. A Store is not safe for concurrent use.
type Store struct {
	backend     Backend
	deltas      []Delta
	pending     map[string]pendingValue
	lastOrdinal uint64
}

func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		pending: make(map[string]pendingValue),
	}
}

func (s *Store) advance(ord uint64) error {
	if ord <= s.lastOrdinal {
		return fmt.Errorf("%w: %d after %d", ErrOrdinalNotIncreasing, ord, s.lastOrdinal)
	}
	s.lastOrdinal = ord
	return nil
}

// current returns the value visible after every buffered delta.
func (s *Store) current(key string) ([]byte, bool, error) {
	if p, ok := s.pending[key]; ok {
		if p.deleted {
			return nil, false, nil
		}
		return p.value, true, nil
	}
	return s.backend.Get(key)
}

func (s *Store) write(ord uint64, key string, value []byte, onlyIfAbsent bool) (bool, error) {
	if err := s.advance(ord); err != nil {
		return false, err
	}
	old, exists, err := s.current(key)
	if err != nil {
		return false, err
	}
	if exists && onlyIfAbsent {
		return false, nil
	}

	op := OperationCreate
	if exists {
		op = OperationUpdate
	}
	value = clone(value)
	s.deltas = append(s.deltas, Delta{
		Operation: op,
		Ordinal:   ord,
		Key:       key,
		OldValue:  clone(old),
		NewValue:  value,
	})
	s.pending[key] = pendingValue{value: value}
	return true, nil
}

// Set writes value at key with ordinal ord.
func (s *Store) Set(ord uint64, key string, value []byte) error {
	_, err := s.write(ord, key, value, false)
	return err
}

// SetIfNotExists writes value only when key has no visible value. It
// reports whether the write happened. The ordinal is consumed either way.
func (s *Store) SetIfNotExists(ord uint64, key string, value []byte) (bool, error) {
	return s.write(ord, key, value, true)
}

// DeletePrefix deletes every visible key starting with prefix, in key
// order, using consecutive ordinals from ord. It returns the last ordinal
// used, or ord-1 when nothing matched.
func (s *Store) DeletePrefix(ord uint64, prefix string) (uint64, error) {
	if ord <= s.lastOrdinal {
		return 0, fmt.Errorf("%w: %d after %d", ErrOrdinalNotIncreasing, ord, s.lastOrdinal)
	}
	keys, err := s.visibleKeys(prefix)
	if err != nil {
		return 0, err
	}

	last := ord - 1
	for _, k := range keys {
		old, _, err := s.current(k)
		if err != nil {
			return last, err
		}
		last++
		s.lastOrdinal = last
		s.deltas = append(s.deltas, Delta{
			Operation: OperationDelete,
			Ordinal:   last,
			Key:       k,
			OldValue:  clone(old),
		})
		s.pending[k] = pendingValue{deleted: true}
	}
	return last, nil
}

func (s *Store) visibleKeys(prefix string) ([]string, error) {
	committed, err := s.backend.Prefix(prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(committed))
	var keys []string
	for _, kv := range committed {
		seen[kv.Key] = true
		if p, ok := s.pending[kv.Key]; ok && p.deleted {
			continue
		}
		keys = append(keys, kv.Key)
	}
	for k, p := range s.pending {
		if seen[k] || p.deleted || !strings.HasPrefix(k, prefix) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetLast returns the most recent value of key in this scope.
func (s *Store) GetLast(key string) ([]byte, bool, error) {
	v, ok, err := s.current(key)
	return clone(v), ok, err
}

// GetFirst returns the value key had when the scope opened, that is its
// committed value. A key created in this scope reports false.
func (s *Store) GetFirst(key string) ([]byte, bool, error) {
	for _, d := range s.deltas {
		if d.Key != key {
			continue
		}
		if d.Operation == OperationCreate {
			return nil, false, nil
		}
		return clone(d.OldValue), true, nil
	}
	return s.backend.Get(key)
}

// GetAt returns the value of key after every delta with an ordinal up to
// and including ord.
func (s *Store) GetAt(ord uint64, key string) ([]byte, bool, error) {
	value, exists, err := s.GetFirst(key)
	if err != nil {
		return nil, false, err
	}
	for _, d := range s.deltas {
		if d.Ordinal > ord {
			break
		}
		if d.Key != key {
			continue
		}
		if d.Operation == OperationDelete {
			value, exists = nil, false
			continue
		}
		value, exists = clone(d.NewValue), true
	}
	return value, exists, nil
}

// Deltas returns the buffered deltas in ordinal order.
func (s *Store) Deltas() []Delta {
	out := make([]Delta, len(s.deltas))
	copy(out, s.deltas)
	return out
}

// Commit applies the buffered deltas to the backend in ordinal order and
// opens a new scope.
func (s *Store) Commit() error {
	if len(s.deltas) > 0 {
		if err := s.backend.Apply(s.deltas); err != nil {
			return fmt.Errorf("failed to commit store: %w", err)
		}
	}
	s.Reset()
	return nil
}

// Reset drops the buffered deltas without applying them.
func (s *Store) Reset() {
	s.deltas = nil
	s.pending = make(map[string]pendingValue)
	s.lastOrdinal = 0
}
