package service

import (
	"context"
	"errors"
	"time"

	"github.com/raakeshmj/textgate/internal/audit"
	"github.com/raakeshmj/textgate/internal/auth"
	"github.com/raakeshmj/textgate/internal/db"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/logger"
	"github.com/raakeshmj/textgate/internal/repository"
	"github.com/sirupsen/logrus"
)

// CredentialManager registers and authenticates accounts.
//
// It does not enforce any password policy. Callers must reject empty or
// weak credentials before calling Register.
type CredentialManager struct {
	accounts   repository.AccountRepository
	jwtManager *auth.JWTManager
	auditLog   audit.Logger

	Now func() time.Time
}

func NewCredentialManager(accounts repository.AccountRepository, j *auth.JWTManager, a audit.Logger) *CredentialManager {
	return &CredentialManager{
		accounts:   accounts,
		jwtManager: j,
		auditLog:   a,
		Now:        time.Now,
	}
}

func (m *CredentialManager) JWTManager() *auth.JWTManager {
	return m.jwtManager
}

// Register creates a user-tier account. It returns errs.ErrConflict if the
// username is taken.
func (m *CredentialManager) Register(ctx context.Context, username, password, email string) error {
	return m.create(ctx, username, password, email, db.RoleUser)
}

func (m *CredentialManager) create(ctx context.Context, username, password, email string, role db.Role) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	now := m.Now().UTC()
	account := &db.Account{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Tier:         db.TierUser,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.accounts.CreateAccount(ctx, account); err != nil {
		if !errors.Is(err, errs.ErrConflict) {
			logStorageFailure("register", username, err)
		}
		return err
	}

	audit.Event(m.auditLog, username, audit.ActionRegister, map[string]interface{}{"role": string(role)})
	return nil
}

// Authenticate reports whether password matches the stored hash. Unknown
// users and wrong passwords are indistinguishable; both cost one bcrypt
// comparison. The error is non-nil only when storage failed.
func (m *CredentialManager) Authenticate(ctx context.Context, username, password string) (bool, error) {
	account, err := m.accounts.Get(ctx, username)
	if errors.Is(err, errs.ErrNotFound) {
		auth.BurnPasswordCheck(password)
		return false, nil
	}
	if err != nil {
		logStorageFailure("authenticate", username, err)
		return false, err
	}
	return auth.CheckPasswordHash(password, account.PasswordHash), nil
}

// Login authenticates and returns a signed session token.
func (m *CredentialManager) Login(ctx context.Context, username, password string) (string, error) {
	ok, err := m.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	if !ok {
		audit.Event(m.auditLog, username, audit.ActionLogin, map[string]interface{}{"success": false})
		return "", errs.ErrUnauthorized
	}

	account, err := m.accounts.Get(ctx, username)
	if err != nil {
		return "", err
	}

	token, err := m.jwtManager.Generate(account.Username, string(account.Role))
	if err != nil {
		return "", err
	}
	audit.Event(m.auditLog, username, audit.ActionLogin, map[string]interface{}{"success": true})
	return token, nil
}

// GetAccount returns errs.ErrNotFound for unknown usernames.
func (m *CredentialManager) GetAccount(ctx context.Context, username string) (*db.Account, error) {
	return m.accounts.Get(ctx, username)
}

// UpdateAccount applies a partial update. It reports false, without error,
// when the account does not exist.
func (m *CredentialManager) UpdateAccount(ctx context.Context, username string, upd db.AccountUpdate) (bool, error) {
	if upd.Tier != nil && !upd.Tier.Valid() {
		return false, errs.ErrInvalidInput
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return false, errs.ErrInvalidInput
	}

	err := m.accounts.UpdateAccount(ctx, username, func(a *db.Account) error {
		if upd.Email != nil {
			a.Email = *upd.Email
		}
		if upd.Tier != nil {
			a.Tier = *upd.Tier
		}
		if upd.Role != nil {
			a.Role = *upd.Role
		}
		a.UpdatedAt = m.Now().UTC()
		return nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		logStorageFailure("update_account", username, err)
		return false, err
	}

	if upd.Tier != nil {
		audit.Event(m.auditLog, username, audit.ActionTierChange, map[string]interface{}{"tier": string(*upd.Tier)})
	}
	return true, nil
}

// EnsureAdmin creates the admin account, or promotes an existing account
// of that name. The password of an existing account is left unchanged.
func (m *CredentialManager) EnsureAdmin(ctx context.Context, username, password string) error {
	err := m.create(ctx, username, password, "", db.RoleAdmin)
	if !errors.Is(err, errs.ErrConflict) {
		return err
	}

	role := db.RoleAdmin
	_, err = m.UpdateAccount(ctx, username, db.AccountUpdate{Role: &role})
	return err
}

func (m *CredentialManager) ListAccounts(ctx context.Context) ([]*db.Account, error) {
	return m.accounts.ListAccounts(ctx)
}

func logStorageFailure(op, username string, err error) {
	if !errors.Is(err, errs.ErrStorage) {
		return
	}
	logger.LogEvent(logrus.ErrorLevel, "storage failure", logrus.Fields{
		"op":    op,
		"user":  username,
		"error": err.Error(),
	})
}
