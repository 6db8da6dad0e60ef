package repository

import (
	"context"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
)

// AccountRepository returns errs.ErrNotFound for unknown usernames and
// errs.ErrConflict when creating one that exists.
type AccountRepository interface {
	Get(ctx context.Context, username string) (*db.Account, error)
	CreateAccount(ctx context.Context, account *db.Account) error
	UpdateAccount(ctx context.Context, username string, fn func(*db.Account) error) error
	ListAccounts(ctx context.Context) ([]*db.Account, error)
}

type APIKeyRepository interface {
	GetByHash(ctx context.Context, keyHash string) (*db.APIKey, error)
	ListByUser(ctx context.Context, username string) ([]*db.APIKey, error)
	CreateAPIKey(ctx context.Context, apiKey *db.APIKey) error
	InvalidateAll(ctx context.Context, username string) error
}

// WindowRepository stores each user's recent request timestamps.
// UpdateWindow is atomic with respect to other writers of the same user.
type WindowRepository interface {
	LoadWindow(ctx context.Context, username string) ([]time.Time, error)
	UpdateWindow(ctx context.Context, username string, fn func([]time.Time) ([]time.Time, error)) error
}

// HistoryRepository stores each user's bounded operation log.
type HistoryRepository interface {
	LoadHistory(ctx context.Context, username string) ([]db.HistoryEntry, error)
	UpdateHistory(ctx context.Context, username string, fn func([]db.HistoryEntry) ([]db.HistoryEntry, error)) error
	HistoryUsers(ctx context.Context) ([]string, error)
}
