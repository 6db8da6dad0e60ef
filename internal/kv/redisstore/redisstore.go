// Package redisstore keeps records in Redis hashes.
//
// Redis keys:
// {namespace}{key} -> hash { v: value, ver: version }
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv"
	"github.com/redis/go-redis/v9"
)

const (
	fieldValue   = "v"
	fieldVersion = "ver"

	DefaultNamespace = "textgate:"
)

// putScript bumps the version and replaces the value in one step.
// KEYS[1] = record key
// ARGV[1] = value
var putScript = redis.NewScript(`
local ver = redis.call("HINCRBY", KEYS[1], "ver", 1)
redis.call("HSET", KEYS[1], "v", ARGV[1])
return ver
`)

type Store struct {
	client    *redis.Client
	namespace string
}

func New(client *redis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Store{client: client, namespace: namespace}
}

func (s *Store) Get(ctx context.Context, key string) (kv.Record, error) {
	vals, err := s.client.HMGet(ctx, s.namespace+key, fieldValue, fieldVersion).Result()
	if err != nil {
		return kv.Record{}, errs.Storage("get "+key, err)
	}
	if vals[0] == nil && vals[1] == nil {
		return kv.Record{}, errs.ErrNotFound
	}
	value, ok := vals[0].(string)
	if !ok {
		return kv.Record{}, errs.Storage("decode "+key, errors.New("missing value field"))
	}
	version, err := parseVersion(vals[1])
	if err != nil {
		return kv.Record{}, errs.Storage("decode "+key, err)
	}
	return kv.Record{Value: []byte(value), Version: version}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := putScript.Run(ctx, s.client, []string{s.namespace + key}, value).Err(); err != nil {
		return errs.Storage("put "+key, err)
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) (bool, error) {
	rk := s.namespace + key
	swapped := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, rk, fieldVersion).Result()
		var current uint64
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = parseVersion(raw); err != nil {
				return err
			}
		}
		if current != version {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, rk, fieldValue, value, fieldVersion, version+1)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, rk)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, errs.Storage("cas "+key, err)
	}
	return swapped, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.namespace+prefix) + "*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), s.namespace)
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, errs.Storage("keys "+prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *Store) Close() error { return nil }

func parseVersion(v any) (uint64, error) {
	str, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("version field has type %T", v)
	}
	n, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version field: %w", err)
	}
	return n, nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ kv.Store = (*Store)(nil)
