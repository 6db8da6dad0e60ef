// Package kvrepo implements the repositories on top of a kv.Store.
//
// Keys:
// account:{username} -> db.Account
// apikey:{sha256}    -> db.APIKey
// window:{username}  -> []time.Time
// history:{username} -> []db.HistoryEntry
package kvrepo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv"
	"github.com/raakeshmj/textgate/internal/repository"
)

const (
	accountPrefix = "account:"
	apiKeyPrefix  = "apikey:"
	windowPrefix  = "window:"
	historyPrefix = "history:"
)

type Repository struct {
	store kv.Store
}

func New(store kv.Store) *Repository {
	return &Repository{store: store}
}

// Accounts

func (r *Repository) Get(ctx context.Context, username string) (*db.Account, error) {
	var a db.Account
	if err := kv.GetJSON(ctx, r.store, accountPrefix+username, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, account *db.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return errs.Storage("encode account", err)
	}
	created, err := r.store.CompareAndSwap(ctx, accountPrefix+account.Username, 0, data)
	if err != nil {
		return err
	}
	if !created {
		return errs.ErrConflict
	}
	return nil
}

func (r *Repository) UpdateAccount(ctx context.Context, username string, fn func(*db.Account) error) error {
	return kv.UpdateJSON(ctx, r.store, accountPrefix+username, func(a db.Account, exists bool) (db.Account, error) {
		if !exists {
			return a, errs.ErrNotFound
		}
		if err := fn(&a); err != nil {
			return a, err
		}
		return a, nil
	})
}

func (r *Repository) ListAccounts(ctx context.Context) ([]*db.Account, error) {
	keys, err := r.store.Keys(ctx, accountPrefix)
	if err != nil {
		return nil, err
	}
	accounts := make([]*db.Account, 0, len(keys))
	for _, k := range keys {
		var a db.Account
		if err := kv.GetJSON(ctx, r.store, k, &a); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, &a)
	}
	return accounts, nil
}

// API keys

func (r *Repository) GetByHash(ctx context.Context, keyHash string) (*db.APIKey, error) {
	var k db.APIKey
	if err := kv.GetJSON(ctx, r.store, apiKeyPrefix+keyHash, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *Repository) ListByUser(ctx context.Context, username string) ([]*db.APIKey, error) {
	keys, err := r.store.Keys(ctx, apiKeyPrefix)
	if err != nil {
		return nil, err
	}
	var list []*db.APIKey
	for _, k := range keys {
		var key db.APIKey
		if err := kv.GetJSON(ctx, r.store, k, &key); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if key.Username == username {
			list = append(list, &key)
		}
	}
	return list, nil
}

func (r *Repository) CreateAPIKey(ctx context.Context, apiKey *db.APIKey) error {
	data, err := json.Marshal(apiKey)
	if err != nil {
		return errs.Storage("encode api key", err)
	}
	created, err := r.store.CompareAndSwap(ctx, apiKeyPrefix+apiKey.KeyHash, 0, data)
	if err != nil {
		return err
	}
	if !created {
		return errs.ErrConflict
	}
	return nil
}

func (r *Repository) InvalidateAll(ctx context.Context, username string) error {
	keys, err := r.ListByUser(ctx, username)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.Revoked {
			continue
		}
		err := kv.UpdateJSON(ctx, r.store, apiKeyPrefix+k.KeyHash, func(cur db.APIKey, exists bool) (db.APIKey, error) {
			if !exists {
				return cur, errs.ErrNotFound
			}
			cur.Revoked = true
			return cur, nil
		})
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Rate windows

func (r *Repository) LoadWindow(ctx context.Context, username string) ([]time.Time, error) {
	var w []time.Time
	err := kv.GetJSON(ctx, r.store, windowPrefix+username, &w)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return w, err
}

func (r *Repository) UpdateWindow(ctx context.Context, username string, fn func([]time.Time) ([]time.Time, error)) error {
	return kv.UpdateJSON(ctx, r.store, windowPrefix+username, func(cur []time.Time, _ bool) ([]time.Time, error) {
		return fn(cur)
	})
}

// History

func (r *Repository) LoadHistory(ctx context.Context, username string) ([]db.HistoryEntry, error) {
	var h []db.HistoryEntry
	err := kv.GetJSON(ctx, r.store, historyPrefix+username, &h)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return h, err
}

func (r *Repository) UpdateHistory(ctx context.Context, username string, fn func([]db.HistoryEntry) ([]db.HistoryEntry, error)) error {
	return kv.UpdateJSON(ctx, r.store, historyPrefix+username, func(cur []db.HistoryEntry, _ bool) ([]db.HistoryEntry, error) {
		return fn(cur)
	})
}

func (r *Repository) HistoryUsers(ctx context.Context) ([]string, error) {
	keys, err := r.store.Keys(ctx, historyPrefix)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, historyPrefix))
	}
	return users, nil
}

// Interface check
var _ repository.AccountRepository = (*Repository)(nil)
var _ repository.APIKeyRepository = (*Repository)(nil)
var _ repository.WindowRepository = (*Repository)(nil)
var _ repository.HistoryRepository = (*Repository)(nil)
