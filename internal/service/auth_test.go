package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raakeshmj/textgate/internal/auth"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.PasswordCost = bcrypt.MinCost
}

// MockAPIKeyRepo
type MockAPIKeyRepo struct {
	mu       sync.Mutex
	keys     map[string]*db.APIKey // map keyHash -> APIKey
	getCalls int
	writes   int
	failGet  error
}

func NewMockAPIKeyRepo() *MockAPIKeyRepo {
	return &MockAPIKeyRepo{
		keys: make(map[string]*db.APIKey),
	}
}

func (m *MockAPIKeyRepo) GetByHash(ctx context.Context, keyHash string) (*db.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.failGet != nil {
		return nil, m.failGet
	}
	if key, ok := m.keys[keyHash]; ok {
		cp := *key
		return &cp, nil
	}
	return nil, errs.ErrNotFound
}

func (m *MockAPIKeyRepo) ListByUser(ctx context.Context, username string) ([]*db.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*db.APIKey
	for _, k := range m.keys {
		if k.Username == username {
			cp := *k
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (m *MockAPIKeyRepo) CreateAPIKey(ctx context.Context, apiKey *db.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.keys[apiKey.KeyHash] = apiKey
	return nil
}

func (m *MockAPIKeyRepo) InvalidateAll(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	for _, k := range m.keys {
		if k.Username == username {
			k.Revoked = true
		}
	}
	return nil
}

func TestAPIKeyManager_IssueAndValidate(t *testing.T) {
	repo := NewMockAPIKeyRepo()
	svc := NewAPIKeyManager(repo, nil)
	ctx := context.Background()

	raw, err := svc.Issue(ctx, "alice")
	require.NoError(t, err)
	assert.Contains(t, raw, auth.KeyPrefix)

	stored, ok := repo.keys[auth.HashAPIKey(raw)]
	require.True(t, ok, "only the hash is stored")
	assert.Equal(t, "alice", stored.Username)
	assert.NotContains(t, stored.KeyHash, raw)

	user, ok, err := svc.Validate(ctx, raw)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", user)

	// never issued
	_, ok, err = svc.Validate(ctx, "sk_not-a-real-key")
	require.NoError(t, err)
	assert.False(t, ok)

	// presenting the stored hash as if it were a key
	_, ok, err = svc.Validate(ctx, stored.KeyHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAPIKeyManager_ValidateIsReadOnly(t *testing.T) {
	repo := NewMockAPIKeyRepo()
	svc := NewAPIKeyManager(repo, nil)
	ctx := context.Background()

	raw, err := svc.Issue(ctx, "bob")
	require.NoError(t, err)
	writes := repo.writes

	for i := 0; i < 3; i++ {
		_, ok, err := svc.Validate(ctx, raw)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, writes, repo.writes)
	assert.Equal(t, 3, repo.getCalls)
}

func TestAPIKeyManager_ValidateStorageFailure(t *testing.T) {
	repo := NewMockAPIKeyRepo()
	repo.failGet = errs.Storage("read", errors.New("disk gone"))
	svc := NewAPIKeyManager(repo, nil)

	_, ok, err := svc.Validate(context.Background(), "sk_anything")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestAPIKeyManager_MultipleKeys(t *testing.T) {
	svc := NewAPIKeyManager(NewMockAPIKeyRepo(), nil)
	ctx := context.Background()

	k1, err := svc.Issue(ctx, "carol")
	require.NoError(t, err)
	k2, err := svc.Issue(ctx, "carol")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)

	for _, k := range []string{k1, k2} {
		_, ok, err := svc.Validate(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestAPIKeyManager_Rotate(t *testing.T) {
	repo := NewMockAPIKeyRepo()
	svc := NewAPIKeyManager(repo, nil)
	ctx := context.Background()

	key1, err := svc.Issue(ctx, "user-123")
	require.NoError(t, err)

	key2, err := svc.Rotate(ctx, "user-123")
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2, "rotated key should differ from the original")

	_, ok, err := svc.Validate(ctx, key1)
	require.NoError(t, err)
	assert.False(t, ok, "old key must stop working after rotation")

	user, ok, err := svc.Validate(ctx, key2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user-123", user)
}

func TestAPIKeyManager_List(t *testing.T) {
	svc := NewAPIKeyManager(NewMockAPIKeyRepo(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	svc.Now = func() time.Time { n++; return base.Add(time.Duration(n) * time.Minute) }
	ctx := context.Background()

	_, err := svc.Issue(ctx, "dave")
	require.NoError(t, err)
	_, err = svc.Rotate(ctx, "dave")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, "erin")
	require.NoError(t, err)

	views, err := svc.List(ctx, "dave")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.False(t, views[0].Revoked, "newest first")
	assert.True(t, views[1].Revoked)
	assert.Len(t, views[0].Prefix, 7)
}
