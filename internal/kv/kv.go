// Package kv defines the durable key-value abstraction every governance
// component persists through. Engines live in the sub-packages.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/sethvargo/go-retry"
)

// ErrVersionConflict is returned by Update when the optimistic write kept
// losing to concurrent writers.
var ErrVersionConflict = errors.New("version conflict")

const maxUpdateRetries = 32

// Record is a stored value and its version. Version 0 means "absent";
// every successful write bumps it.
type Record struct {
	Value   []byte
	Version uint64
}

// Store is implemented by every storage engine.
//
// Get returns errs.ErrNotFound for absent keys and an error wrapping
// errs.ErrStorage when the engine cannot read or decode what it holds.
// CompareAndSwap writes value only if the current version equals version
// (0 requires the key to be absent) and reports whether it did.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, value []byte) error
	CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// MutateFunc receives the current value (nil and false when absent) and
// returns the value to write.
type MutateFunc func(cur []byte, exists bool) ([]byte, error)

// Update performs a read-modify-write on key, retrying when another writer
// got there first. Errors returned by fn abort the update unchanged.
func Update(ctx context.Context, s Store, key string, fn MutateFunc) error {
	backoff := retry.NewExponential(2 * time.Millisecond)
	backoff = retry.WithCappedDuration(50*time.Millisecond, backoff)
	backoff = retry.WithMaxRetries(maxUpdateRetries, retry.WithJitter(time.Millisecond, backoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec, err := s.Get(ctx, key)
		exists := true
		if errors.Is(err, errs.ErrNotFound) {
			exists = false
			rec = Record{}
		} else if err != nil {
			return err
		}

		next, err := fn(rec.Value, exists)
		if err != nil {
			return err
		}

		swapped, err := s.CompareAndSwap(ctx, key, rec.Version, next)
		if err != nil {
			return err
		}
		if !swapped {
			return retry.RetryableError(ErrVersionConflict)
		}
		return nil
	})
}

// GetJSON decodes the value stored under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rec.Value, v); err != nil {
		return errs.Storage("decode "+key, err)
	}
	return nil
}

// UpdateJSON is Update for JSON-encoded values of type T.
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(cur T, exists bool) (T, error)) error {
	return Update(ctx, s, key, func(raw []byte, exists bool) ([]byte, error) {
		var cur T
		if exists {
			if err := json.Unmarshal(raw, &cur); err != nil {
				return nil, errs.Storage("decode "+key, err)
			}
		}
		next, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return nil, errs.Storage("encode "+key, err)
		}
		return out, nil
	})
}
