package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/raakeshmj/textgate/internal/audit"
	"github.com/raakeshmj/textgate/internal/auth"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/repository"
)

// APIKeyManager issues and validates API keys. Only the SHA256 of a key is
// stored; the raw key is returned once, at issue time.
type APIKeyManager struct {
	apiKeyRepo repository.APIKeyRepository
	auditLog   audit.Logger

	Now func() time.Time
}

func NewAPIKeyManager(k repository.APIKeyRepository, a audit.Logger) *APIKeyManager {
	return &APIKeyManager{
		apiKeyRepo: k,
		auditLog:   a,
		Now:        time.Now,
	}
}

// Issue generates a new key for the user
func (s *APIKeyManager) Issue(ctx context.Context, username string) (string, error) {
	rawKey, keyHash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		return "", err
	}

	apiKey := &db.APIKey{
		KeyHash:  keyHash,
		Username: username,
		Prefix:   prefix,
		IssuedAt: s.Now().UTC(),
	}

	if err := s.apiKeyRepo.CreateAPIKey(ctx, apiKey); err != nil {
		logStorageFailure("issue_key", username, err)
		return "", err
	}

	audit.Event(s.auditLog, username, audit.ActionKeyIssue, map[string]interface{}{"prefix": prefix})
	return rawKey, nil
}

// Validate resolves a raw key to its owner. It never writes anything.
// Unknown and revoked keys report ok=false with a nil error.
func (s *APIKeyManager) Validate(ctx context.Context, rawKey string) (string, bool, error) {
	apiKey, err := s.apiKeyRepo.GetByHash(ctx, auth.HashAPIKey(rawKey))
	if errors.Is(err, errs.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		logStorageFailure("validate_key", "", err)
		return "", false, err
	}

	if apiKey.Revoked {
		return "", false, nil
	}
	return apiKey.Username, true, nil
}

// Rotate invalidates old keys and creates a new one
func (s *APIKeyManager) Rotate(ctx context.Context, username string) (string, error) {
	if err := s.apiKeyRepo.InvalidateAll(ctx, username); err != nil {
		logStorageFailure("rotate_key", username, err)
		return "", err
	}

	raw, err := s.Issue(ctx, username)
	if err != nil {
		return "", err
	}
	audit.Event(s.auditLog, username, audit.ActionKeyRotate, nil)
	return raw, nil
}

// List returns key metadata, newest first.
func (s *APIKeyManager) List(ctx context.Context, username string) ([]db.APIKeyView, error) {
	keys, err := s.apiKeyRepo.ListByUser(ctx, username)
	if err != nil {
		return nil, err
	}

	views := make([]db.APIKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, db.APIKeyView{Prefix: k.Prefix, IssuedAt: k.IssuedAt, Revoked: k.Revoked})
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].IssuedAt.After(views[j].IssuedAt) })
	return views, nil
}
