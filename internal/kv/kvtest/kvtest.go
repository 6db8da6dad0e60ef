// Package kvtest holds the behaviour every kv.Store engine must share.
package kvtest

import (
	"context"
	"errors"
	"testing"

	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the kv.Store contract. s must start empty.
func Run(t *testing.T, s kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("absent key is not found", func(t *testing.T) {
		_, err := s.Get(ctx, "account:nobody")
		assert.True(t, errors.Is(err, errs.ErrNotFound))
	})

	t.Run("create with version zero", func(t *testing.T) {
		ok, err := s.CompareAndSwap(ctx, "account:alice", 0, []byte(`{"n":1}`))
		require.NoError(t, err)
		assert.True(t, ok)

		rec, err := s.Get(ctx, "account:alice")
		require.NoError(t, err)
		assert.Equal(t, `{"n":1}`, string(rec.Value))
		assert.Equal(t, uint64(1), rec.Version)

		ok, err = s.CompareAndSwap(ctx, "account:alice", 0, []byte(`{"n":2}`))
		require.NoError(t, err)
		assert.False(t, ok, "second create must lose")
	})

	t.Run("stale version loses", func(t *testing.T) {
		ok, err := s.CompareAndSwap(ctx, "account:alice", 1, []byte(`{"n":3}`))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.CompareAndSwap(ctx, "account:alice", 1, []byte(`{"n":4}`))
		require.NoError(t, err)
		assert.False(t, ok)

		rec, err := s.Get(ctx, "account:alice")
		require.NoError(t, err)
		assert.Equal(t, `{"n":3}`, string(rec.Value))
		assert.Equal(t, uint64(2), rec.Version)
	})

	t.Run("put bumps version", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "history:bob", []byte(`[]`)))
		require.NoError(t, s.Put(ctx, "history:bob", []byte(`[1]`)))

		rec, err := s.Get(ctx, "history:bob")
		require.NoError(t, err)
		assert.Equal(t, `[1]`, string(rec.Value))
		assert.Equal(t, uint64(2), rec.Version)
	})

	t.Run("keys by prefix", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "account:b*b?", []byte(`{}`)))

		keys, err := s.Keys(ctx, "account:")
		require.NoError(t, err)
		assert.Equal(t, []string{"account:alice", "account:b*b?"}, keys)

		keys, err = s.Keys(ctx, "window:")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("update through helper", func(t *testing.T) {
		err := kv.UpdateJSON(ctx, s, "window:carol", func(cur []int, _ bool) ([]int, error) {
			return append(cur, 7), nil
		})
		require.NoError(t, err)

		var got []int
		require.NoError(t, kv.GetJSON(ctx, s, "window:carol", &got))
		assert.Equal(t, []int{7}, got)
	})
}
