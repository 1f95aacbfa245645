package store

import (
	"sort"
	"strings"
	"sync"
)

// KV is a committed key and its value.
type KV struct {
	Key   string
	Value []byte
}

// Backend holds the committed state that survives across blocks.
type Backend interface {
	// Get returns (nil, false, nil) when key is absent.
	Get(key string) ([]byte, bool, error)
	// Prefix returns every pair whose key starts with prefix, in key order.
	Prefix(prefix string) ([]KV, error)
	// Apply writes deltas in slice order as one atomic batch.
	Apply(deltas []Delta) error
	Close() error
}

// MemoryBackend is a Backend kept in a map. It is safe for concurrent use.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (b *MemoryBackend) Prefix(prefix string) ([]KV, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []KV
	for k, v := range b.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, KV{Key: k, Value: clone(v)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (b *MemoryBackend) Apply(deltas []Delta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range deltas {
		if d.Operation == OperationDelete {
			delete(b.data, d.Key)
			continue
		}
		b.data[d.Key] = clone(d.NewValue)
	}
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
