package db

import (
	"time"
)

// Tier is the access class that decides the hourly request ceiling.
type Tier string

const (
	TierGuest Tier = "guest"
	TierUser  Tier = "user"
	TierPro   Tier = "pro"
)

func (t Tier) Valid() bool {
	return t == TierGuest || t == TierUser || t == TierPro
}

// Role gates administrative operations.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Account struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Email        string    `json:"email"`
	Tier         Tier      `json:"tier"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin is the single authorization predicate for admin-only operations.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// AccountUpdate is a partial update; nil fields are left alone.
type AccountUpdate struct {
	Email *string `json:"email,omitempty"`
	Tier  *Tier   `json:"tier,omitempty"`
	Role  *Role   `json:"role,omitempty"`
}

// AccountView is the outward shape of an account. It never carries the hash.
type AccountView struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Tier      Tier      `json:"tier"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *Account) View() AccountView {
	return AccountView{
		Username:  a.Username,
		Email:     a.Email,
		Tier:      a.Tier,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}

type APIKey struct {
	KeyHash  string    `json:"key_hash"` // SHA256 hash of the raw key
	Username string    `json:"username"` // owner
	Prefix   string    `json:"prefix"`   // first few chars, for display
	IssuedAt time.Time `json:"issued_at"`
	Revoked  bool      `json:"revoked,omitempty"`
}

// APIKeyView lists a key without its hash.
type APIKeyView struct {
	Prefix   string    `json:"prefix"`
	IssuedAt time.Time `json:"issued_at"`
	Revoked  bool      `json:"revoked"`
}

// Tool identifies the text-processing operation a history entry records.
type Tool string

const (
	ToolSentiment     Tool = "sentiment"
	ToolSummarization Tool = "summarization"
	ToolFakeNews      Tool = "fake-news"
	ToolJobMatch      Tool = "job-match"
)

func (t Tool) Valid() bool {
	switch t {
	case ToolSentiment, ToolSummarization, ToolFakeNews, ToolJobMatch:
		return true
	}
	return false
}

type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Tool      Tool      `json:"tool"`
	Query     string    `json:"query"`
	Result    string    `json:"result"`
}

// AnalyticsSnapshot is derived from history on demand and never stored.
type AnalyticsSnapshot struct {
	TotalQueries  int            `json:"total_queries"`
	ToolsUsed     map[Tool]int   `json:"tools_used"`
	QueriesByDate map[string]int `json:"queries_by_date"`
	Last7Days     int            `json:"last_7_days"`
	Last30Days    int            `json:"last_30_days"`
}
