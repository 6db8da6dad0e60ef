package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/raakeshmj/textgate/internal/auth"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv/memory"
	"github.com/raakeshmj/textgate/internal/repository/kvrepo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredentials(t *testing.T) (*CredentialManager, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewCredentialManager(kvrepo.New(store), auth.NewJWTManager("test-secret", time.Hour), nil), store
}

func TestRegister_Duplicate(t *testing.T) {
	m, _ := newCredentials(t)
	ctx := context.Background()

	ok, err := m.Authenticate(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.False(t, ok, "no account yet")

	require.NoError(t, m.Register(ctx, "alice", "s3cret-pass", "alice@example.com"))
	assert.ErrorIs(t, m.Register(ctx, "alice", "other-pass", "evil@example.com"), errs.ErrConflict)

	ok, err = m.Authenticate(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := m.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", a.Email, "second registration must not overwrite")
	assert.Equal(t, db.TierUser, a.Tier)
	assert.Equal(t, db.RoleUser, a.Role)
	assert.NotContains(t, a.PasswordHash, "s3cret-pass")
}

func TestRegister_UsernamesAreCaseSensitive(t *testing.T) {
	m, _ := newCredentials(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "Alice", "pw-one-123", ""))
	require.NoError(t, m.Register(ctx, "alice", "pw-two-123", ""))

	ok, err := m.Authenticate(ctx, "alice", "pw-one-123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	m, _ := newCredentials(t)
	ctx := context.Background()

	passwords := []string{
		"password1",
		"p",
		"unicode-ü-pass",
		strings.Repeat("a", 72),
		strings.Repeat("é", 40),
	}
	for i, pw := range passwords {
		user := fmt.Sprintf("u%d", i)
		require.NoError(t, m.Register(ctx, user, pw, ""))

		good, err := m.Authenticate(ctx, user, pw)
		require.NoError(t, err)
		bad, err := m.Authenticate(ctx, user, pw+"x")
		require.NoError(t, err)

		assert.True(t, good)
		assert.False(t, bad)
	}
}

func TestAuthenticate_CorruptRecord(t *testing.T) {
	m, store := newCredentials(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "account:mallory", []byte("{not json")))

	ok, err := m.Authenticate(ctx, "mallory", "whatever")
	assert.False(t, ok)
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestGetAccount_NotFound(t *testing.T) {
	m, _ := newCredentials(t)
	_, err := m.GetAccount(context.Background(), "ghost")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdateAccount(t *testing.T) {
	m, _ := newCredentials(t)
	ctx := context.Background()

	pro := db.TierPro
	ok, err := m.UpdateAccount(ctx, "ghost", db.AccountUpdate{Tier: &pro})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Register(ctx, "bob", "password123", "bob@example.com"))
	email := "new@example.com"
	ok, err = m.UpdateAccount(ctx, "bob", db.AccountUpdate{Tier: &pro, Email: &email})
	require.NoError(t, err)
	assert.True(t, ok)

	a, err := m.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, db.TierPro, a.Tier)
	assert.Equal(t, "new@example.com", a.Email)
	assert.Equal(t, db.RoleUser, a.Role)

	bogus := db.Tier("platinum")
	_, err = m.UpdateAccount(ctx, "bob", db.AccountUpdate{Tier: &bogus})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestLogin(t *testing.T) {
	m, _ := newCredentials(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "carol", "password123", ""))

	_, err := m.Login(ctx, "carol", "wrong")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = m.Login(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	token, err := m.Login(ctx, "carol", "password123")
	require.NoError(t, err)

	claims, err := m.JWTManager().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "carol", claims.Username)
	assert.Equal(t, string(db.RoleUser), claims.Role)
}

func TestEnsureAdmin(t *testing.T) {
	m, _ := newCredentials(t)
	ctx := context.Background()

	require.NoError(t, m.EnsureAdmin(ctx, "root", "rootpass1"))
	a, err := m.GetAccount(ctx, "root")
	require.NoError(t, err)
	assert.True(t, a.IsAdmin())

	// idempotent, and promotes an existing account without touching its password
	require.NoError(t, m.Register(ctx, "ops", "opspass12", ""))
	require.NoError(t, m.EnsureAdmin(ctx, "ops", "different"))
	require.NoError(t, m.EnsureAdmin(ctx, "root", "rootpass1"))

	a, err = m.GetAccount(ctx, "ops")
	require.NoError(t, err)
	assert.True(t, a.IsAdmin())
	ok, err := m.Authenticate(ctx, "ops", "opspass12")
	require.NoError(t, err)
	assert.True(t, ok)

	accounts, err := m.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}
