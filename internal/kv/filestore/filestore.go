// Package filestore persists records as one JSON file per key inside a
// directory. Writes go to a temporary file that is synced and renamed over
// the target, so readers only ever see a complete old or new record. A
// directory-wide flock serialises writers across processes.
package filestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv"
)

const (
	fileExt  = ".json"
	lockName = ".lock"
)

type envelope struct {
	Version uint64 `json:"version"`
	Value   []byte `json:"value"`
}

type Store struct {
	dir   string
	mu    sync.Mutex
	flock *flock.Flock
}

// Open creates dir if needed and returns a store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{
		dir:   dir,
		flock: flock.New(filepath.Join(dir, lockName)),
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (kv.Record, error) {
	env, err := s.read(key)
	if err != nil {
		return kv.Record{}, err
	}
	return kv.Record{Value: env.Value, Version: env.Version}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	var version uint64
	cur, err := s.read(key)
	switch {
	case err == nil:
		version = cur.Version
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrStorage):
		// An unreadable record is overwritten only by an explicit Put.
	default:
		return err
	}
	return s.write(key, envelope{Version: version + 1, Value: value})
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) (bool, error) {
	unlock, err := s.lock()
	if err != nil {
		return false, err
	}
	defer unlock()

	var current uint64
	cur, err := s.read(key)
	if err == nil {
		current = cur.Version
	} else if !errors.Is(err, errs.ErrNotFound) {
		return false, err
	}
	if current != version {
		return false, nil
	}
	if err := s.write(key, envelope{Version: version + 1, Value: value}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Storage("list "+s.dir, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		if key := string(raw); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Close() error {
	return s.flock.Close()
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileExt)
}

func (s *Store) lock() (func(), error) {
	s.mu.Lock()
	if err := s.flock.Lock(); err != nil {
		s.mu.Unlock()
		return nil, errs.Storage("lock "+s.dir, err)
	}
	return func() {
		_ = s.flock.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *Store) read(key string) (envelope, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return envelope{}, errs.ErrNotFound
	}
	if err != nil {
		return envelope{}, errs.Storage("read "+key, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, errs.Storage("decode "+key, err)
	}
	if env.Version == 0 {
		return envelope{}, errs.Storage("decode "+key, errors.New("missing version"))
	}
	return env, nil
}

func (s *Store) write(key string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return errs.Storage("encode "+key, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return errs.Storage("write "+key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Storage("write "+key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Storage("sync "+key, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Storage("write "+key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return errs.Storage("rename "+key, err)
	}
	return nil
}

var _ kv.Store = (*Store)(nil)
