package policy

import (
	"net/http"
	"strings"
	"sync"
)

// Matcher defines criteria to apply a policy
type Matcher struct {
	Method string `json:"method,omitempty"` // "*" or specific
	Path   string `json:"path"`             // Prefix match
}

// Rules defines what to enforce
type Rules struct {
	AuthRequired bool `json:"auth_required"`
	AdminOnly    bool `json:"admin_only"`
	// Metered requests consume one slot of the caller's hourly quota.
	Metered bool `json:"metered"`
}

// Policy is a named set of rules
type Policy struct {
	ID      string  `json:"id"`
	Matcher Matcher `json:"matcher"`
	Rules   Rules   `json:"rules"`
}

// Default applies when no policy matches.
var Default = Policy{ID: "default", Rules: Rules{AuthRequired: true}}

// DefaultPolicies is the route table of the gateway. Order matters.
func DefaultPolicies() []Policy {
	public := Rules{}
	return []Policy{
		{ID: "health", Matcher: Matcher{Path: "/health"}, Rules: public},
		{ID: "ready", Matcher: Matcher{Path: "/ready"}, Rules: public},
		{ID: "metrics", Matcher: Matcher{Path: "/metrics"}, Rules: public},
		{ID: "auth", Matcher: Matcher{Method: http.MethodPost, Path: "/api/auth/"}, Rules: public},
		{ID: "admin", Matcher: Matcher{Path: "/api/admin/"}, Rules: Rules{AuthRequired: true, AdminOnly: true}},
		{ID: "tools", Matcher: Matcher{Method: http.MethodPost, Path: "/api/tools/"}, Rules: Rules{AuthRequired: true, Metered: true}},
		{ID: "ratelimit", Matcher: Matcher{Method: http.MethodGet, Path: "/api/ratelimit"}, Rules: Rules{AuthRequired: true, Metered: true}},
		{ID: "api", Matcher: Matcher{Path: "/api/"}, Rules: Rules{AuthRequired: true}},
	}
}

// Engine evaluates requests against policies
type Engine struct {
	mu       sync.RWMutex
	policies []Policy
}

func NewEngine() *Engine {
	return &Engine{
		policies: []Policy{},
	}
}

// LoadPolicies replaces the current set
func (e *Engine) LoadPolicies(newPolicies []Policy) {
	cp := make([]Policy, len(newPolicies))
	copy(cp, newPolicies)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies = cp
}

// Evaluate finds the first matching policy, or nil.
func (e *Engine) Evaluate(r *http.Request) *Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for i := range e.policies {
		p := e.policies[i]
		if match(p.Matcher, r) {
			return &p
		}
	}
	return nil
}

func match(m Matcher, r *http.Request) bool {
	if m.Method != "" && m.Method != "*" && m.Method != r.Method {
		return false
	}
	return strings.HasPrefix(r.URL.Path, m.Path)
}
