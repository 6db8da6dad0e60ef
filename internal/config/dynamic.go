package config

import (
	"errors"
	"sync"

	"github.com/raakeshmj/textgate/internal/db"
)

// FallbackLimit applies to any tier missing from the table.
const FallbackLimit = 10

// TierLimits holds the hourly request ceiling per tier.
type TierLimits struct {
	Guest int `json:"guest"`
	User  int `json:"user"`
	Pro   int `json:"pro"`
}

func (l TierLimits) Validate() error {
	if l.Guest < 1 || l.User < 1 || l.Pro < 1 {
		return errors.New("limits must be positive")
	}
	return nil
}

// DynamicConfigManager manages thread-safe config updates
type DynamicConfigManager struct {
	mu     sync.RWMutex
	limits TierLimits
}

func NewDynamicConfigManager(limits TierLimits) *DynamicConfigManager {
	return &DynamicConfigManager{limits: limits}
}

// DefaultTierLimits returns guest 10, user 100, pro 1000.
func DefaultTierLimits() TierLimits {
	return TierLimits{Guest: 10, User: 100, Pro: 1000}
}

func (c *Config) TierLimits() TierLimits {
	return TierLimits{Guest: c.GuestRateLimit, User: c.UserRateLimit, Pro: c.ProRateLimit}
}

func (m *DynamicConfigManager) GetLimits() TierLimits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

func (m *DynamicConfigManager) UpdateLimits(limits TierLimits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = limits
	return nil
}

// LimitFor resolves the hourly limit for a tier.
func (m *DynamicConfigManager) LimitFor(tier db.Tier) int {
	l := m.GetLimits()
	switch tier {
	case db.TierGuest:
		return l.Guest
	case db.TierUser:
		return l.User
	case db.TierPro:
		return l.Pro
	}
	return FallbackLimit
}
