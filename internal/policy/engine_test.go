package policy

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_DefaultPolicies(t *testing.T) {
	e := NewEngine()
	e.LoadPolicies(DefaultPolicies())

	cases := []struct {
		method, path string
		id           string
		rules        Rules
	}{
		{"GET", "/health", "health", Rules{}},
		{"POST", "/api/auth/login", "auth", Rules{}},
		{"GET", "/api/auth/login", "api", Rules{AuthRequired: true}},
		{"POST", "/api/tools/sentiment", "tools", Rules{AuthRequired: true, Metered: true}},
		{"GET", "/api/ratelimit", "ratelimit", Rules{AuthRequired: true, Metered: true}},
		{"POST", "/api/admin/tier", "admin", Rules{AuthRequired: true, AdminOnly: true}},
		{"GET", "/api/history", "api", Rules{AuthRequired: true}},
	}
	for _, c := range cases {
		p := e.Evaluate(httptest.NewRequest(c.method, c.path, nil))
		require.NotNil(t, p, c.path)
		assert.Equal(t, c.id, p.ID, c.method+" "+c.path)
		assert.Equal(t, c.rules, p.Rules, c.method+" "+c.path)
	}

	assert.Nil(t, e.Evaluate(httptest.NewRequest("GET", "/favicon.ico", nil)))
}

func TestEngine_LoadPoliciesCopies(t *testing.T) {
	e := NewEngine()
	ps := []Policy{{ID: "a", Matcher: Matcher{Path: "/a"}}}
	e.LoadPolicies(ps)
	ps[0].ID = "mutated"

	p := e.Evaluate(httptest.NewRequest("GET", "/a/b", nil))
	require.NotNil(t, p)
	assert.Equal(t, "a", p.ID)

	p.Rules.AdminOnly = true
	again := e.Evaluate(httptest.NewRequest("GET", "/a/b", nil))
	require.NotNil(t, again)
	assert.False(t, again.Rules.AdminOnly)
}
