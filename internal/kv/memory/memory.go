package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv"
)

// Store keeps records in process memory. Nothing survives a restart; it
// backs tests and the "memory" backend.
type Store struct {
	records map[string]kv.Record
	mu      sync.RWMutex
}

func New() *Store {
	return &Store{
		records: make(map[string]kv.Record),
	}
}

func (s *Store) Get(ctx context.Context, key string) (kv.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return kv.Record{}, errs.ErrNotFound
	}
	return kv.Record{Value: clone(rec.Value), Version: rec.Version}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.records[key]
	s.records[key] = kv.Record{Value: clone(value), Version: cur.Version + 1}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.records[key]
	if cur.Version != version {
		return false, nil
	}
	s.records[key] = kv.Record{Value: clone(value), Version: version + 1}
	return true, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ kv.Store = (*Store)(nil)
