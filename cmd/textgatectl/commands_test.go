package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/raakeshmj/textgate/internal/app"
	"github.com/raakeshmj/textgate/internal/config"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) openFunc {
	t.Helper()
	a, err := app.Open(context.Background(), &config.Config{
		StoreBackend:     config.BackendMemory,
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
		BcryptCost:       4,
		GuestRateLimit:   2,
		UserRateLimit:    100,
		ProRateLimit:     1000,
		InferenceURL:     "http://127.0.0.1:0",
		RateLimitFailure: "fail_closed",
	}, nil)
	require.NoError(t, err)
	return func(context.Context) (*app.App, error) { return a, nil }
}

func run(t *testing.T, open openFunc, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRegisterAndSetTier(t *testing.T) {
	open := newTestApp(t)

	out, err := run(t, open, "register", "alice", "--password", "password123")
	require.NoError(t, err)
	assert.Equal(t, "registered alice\n", out)

	_, err = run(t, open, "register", "alice", "--password", "password123")
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = run(t, open, "register", "bob")
	assert.Error(t, err)

	out, err = run(t, open, "set-tier", "alice", "guest")
	require.NoError(t, err)
	assert.Equal(t, "alice is now guest\n", out)

	_, err = run(t, open, "set-tier", "alice", "gold")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = run(t, open, "set-tier", "nobody", "pro")
	assert.Error(t, err)
}

func TestIssueKey(t *testing.T) {
	open := newTestApp(t)

	_, err := run(t, open, "issue-key", "alice")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = run(t, open, "register", "alice", "--password", "password123")
	require.NoError(t, err)

	out, err := run(t, open, "issue-key", "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sk_"), out)

	a, _ := open(context.Background())
	user, ok, err := a.Keys.Validate(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", user)
}

func TestAdmit(t *testing.T) {
	open := newTestApp(t)
	_, err := run(t, open, "register", "alice", "--password", "password123")
	require.NoError(t, err)
	_, err = run(t, open, "set-tier", "alice", "guest")
	require.NoError(t, err)

	out, err := run(t, open, "admit", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Remaining: 1/2\n", out)

	out, err = run(t, open, "admit", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Remaining: 0/2\n", out)

	_, err = run(t, open, "admit", "alice")
	assert.ErrorIs(t, err, errs.ErrRateLimited)
}

func TestHistoryAndAnalytics(t *testing.T) {
	open := newTestApp(t)
	a, _ := open(context.Background())

	out, err := run(t, open, "analytics", "alice")
	require.NoError(t, err)
	assert.Equal(t, "no history for alice\n", out)

	ctx := context.Background()
	require.NoError(t, a.History.Append(ctx, "alice", db.ToolSentiment, "first", "POSITIVE"))
	require.NoError(t, a.History.Append(ctx, "alice", db.ToolFakeNews, "second", "REAL"))

	out, err = run(t, open, "history", "alice", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"query": "second"`)
	assert.NotContains(t, out, `"query": "first"`)

	out, err = run(t, open, "analytics", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_queries": 2`)
}
