package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv/memory"
	"github.com/raakeshmj/textgate/internal/repository/kvrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistory(t *testing.T) (*HistoryManager, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewHistoryManager(kvrepo.New(store)), store
}

func TestHistory_EvictsOldestFirst(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()

	for i := 0; i < MaxHistoryEntries+1; i++ {
		require.NoError(t, h.Append(ctx, "alice", db.ToolSentiment, fmt.Sprintf("q%d", i), i))
	}

	entries, err := h.Recent(ctx, "alice", 1000)
	require.NoError(t, err)
	require.Len(t, entries, MaxHistoryEntries)
	assert.Equal(t, "q1", entries[0].Query, "q0 is evicted, q1 survives")
	assert.Equal(t, "q100", entries[len(entries)-1].Query)
}

func TestHistory_Truncation(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "bob", db.ToolSummarization, strings.Repeat("a", 300), strings.Repeat("b", 600)))
	// counted in characters, not bytes
	require.NoError(t, h.Append(ctx, "bob", db.ToolSummarization, strings.Repeat("日", 300), strings.Repeat("ß", 600)))
	require.NoError(t, h.Append(ctx, "bob", db.ToolSummarization, "short", "short"))

	entries, err := h.Recent(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, e := range entries[:2] {
		assert.Len(t, []rune(e.Query), MaxQueryLen)
		assert.Len(t, []rune(e.Result), MaxResultLen)
	}
	assert.Equal(t, "short", entries[2].Query)
}

func TestHistory_ResultIsStringified(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "carol", db.ToolJobMatch, "Resume vs Job", 0.75))
	entries, err := h.Recent(ctx, "carol", 1)
	require.NoError(t, err)
	assert.Equal(t, "0.75", entries[0].Result)
}

func TestHistory_Recent(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()

	entries, err := h.Recent(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for i := 0; i < 60; i++ {
		require.NoError(t, h.Append(ctx, "dave", db.ToolFakeNews, fmt.Sprintf("q%d", i), "REAL"))
	}

	entries, err = h.Recent(ctx, "dave", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"q57", "q58", "q59"}, []string{entries[0].Query, entries[1].Query, entries[2].Query})

	entries, err = h.Recent(ctx, "dave", 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultRecent)
}

func TestHistory_UnknownTool(t *testing.T) {
	h, _ := newHistory(t)
	err := h.Append(context.Background(), "erin", "translation", "q", "r")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestHistory_ConcurrentAppendsAreNotLost(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				assert.NoError(t, h.Append(ctx, "frank", db.ToolSentiment, fmt.Sprintf("g%d-%d", g, i), "ok"))
			}
		}(g)
	}
	wg.Wait()

	entries, err := h.Recent(ctx, "frank", MaxHistoryEntries)
	require.NoError(t, err)
	assert.Len(t, entries, 50)
}

func TestHistory_CorruptLogIsAnError(t *testing.T) {
	h, store := newHistory(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "history:gina", []byte("][")))

	_, err := h.Recent(ctx, "gina", 10)
	assert.ErrorIs(t, err, errs.ErrStorage)

	err = h.Append(ctx, "gina", db.ToolSentiment, "q", "r")
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestHistory_TotalEntries(t *testing.T) {
	h, _ := newHistory(t)
	ctx := context.Background()
	h.Now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Append(ctx, "a", db.ToolSentiment, "q", "r"))
	}
	require.NoError(t, h.Append(ctx, "b", db.ToolSentiment, "q", "r"))

	n, err := h.TotalEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
