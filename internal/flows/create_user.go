package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/store"
)

// CreateUserRequest is the flow-local principal creation input.
type CreateUserRequest struct {
	Email         string
	Password      string
	FullName      string
	Roles         []string
	Active        bool
	MFAEnabled    bool
	EmailVerified bool
}

// CreateUserMetrics carries metric IDs needed by the create-user flow.
type CreateUserMetrics struct {
	AccountCreated   int
	AccountDuplicate int
}

// CreateUserDeps captures principal creation dependencies.
type CreateUserDeps struct {
	Begin        func(context.Context) (store.Tx, error)
	HashPassword func(password string) (string, error)

	MetricInc func(int)

	Metrics CreateUserMetrics
	Errors  Errors
}

// RunCreateUser hashes the password and stores a new principal.
func RunCreateUser(ctx context.Context, req CreateUserRequest, deps CreateUserDeps) (*store.User, error) {
	if deps.Begin == nil || deps.HashPassword == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}

	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, deps.Errors.AccountInvalid
	}
	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	tx, err := deps.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback(ctx)

	user := &store.User{
		Email:         email,
		PasswordHash:  hash,
		FullName:      req.FullName,
		Roles:         append([]string(nil), req.Roles...),
		IsActive:      req.Active,
		MFAEnabled:    req.MFAEnabled,
		EmailVerified: req.EmailVerified,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			deps.MetricInc(deps.Metrics.AccountDuplicate)
			return nil, deps.Errors.AccountExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			deps.MetricInc(deps.Metrics.AccountDuplicate)
			return nil, deps.Errors.AccountExists
		}
		return nil, fmt.Errorf("commit create user: %w", err)
	}

	deps.MetricInc(deps.Metrics.AccountCreated)
	return user, nil
}
