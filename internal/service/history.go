package service

import (
	"context"
	"fmt"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/keylock"
	"github.com/raakeshmj/textgate/internal/repository"
)

const (
	MaxHistoryEntries = 100
	MaxQueryLen       = 200
	MaxResultLen      = 500
	DefaultRecent     = 50
)

// HistoryManager keeps a bounded, append-only log of tool calls per user.
type HistoryManager struct {
	repo  repository.HistoryRepository
	locks *keylock.Locker

	Now func() time.Time
}

func NewHistoryManager(repo repository.HistoryRepository) *HistoryManager {
	return &HistoryManager{
		repo:  repo,
		locks: keylock.New(),
		Now:   time.Now,
	}
}

// Append records one tool call. The query is cut to MaxQueryLen characters
// and the formatted result to MaxResultLen. Once a user has
// MaxHistoryEntries entries the oldest is dropped.
func (h *HistoryManager) Append(ctx context.Context, username string, tool db.Tool, query string, result any) error {
	if !tool.Valid() {
		return fmt.Errorf("%w: unknown tool %q", errs.ErrInvalidInput, tool)
	}

	entry := db.HistoryEntry{
		Timestamp: h.Now().UTC(),
		Tool:      tool,
		Query:     truncate(query, MaxQueryLen),
		Result:    truncate(fmt.Sprint(result), MaxResultLen),
	}

	unlock := h.locks.Lock(username)
	defer unlock()

	err := h.repo.UpdateHistory(ctx, username, func(cur []db.HistoryEntry) ([]db.HistoryEntry, error) {
		next := append(cur, entry)
		if over := len(next) - MaxHistoryEntries; over > 0 {
			next = next[over:]
		}
		return next, nil
	})
	if err != nil {
		logStorageFailure("history_append", username, err)
	}
	return err
}

// Recent returns up to limit of the newest entries, oldest first.
// limit <= 0 means DefaultRecent.
func (h *HistoryManager) Recent(ctx context.Context, username string, limit int) ([]db.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultRecent
	}

	entries, err := h.repo.LoadHistory(ctx, username)
	if err != nil {
		logStorageFailure("history_read", username, err)
		return nil, err
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// TotalEntries counts stored entries across all users.
func (h *HistoryManager) TotalEntries(ctx context.Context) (int, error) {
	users, err := h.repo.HistoryUsers(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, u := range users {
		entries, err := h.repo.LoadHistory(ctx, u)
		if err != nil {
			return 0, err
		}
		total += len(entries)
	}
	return total, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
