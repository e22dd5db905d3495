package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// LoginResult is the flow-local login response shape. Tokens is nil when a
// second factor is required.
type LoginResult struct {
	Tokens      *TokenPair
	MFARequired bool
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	MFARequired      int
	MFAResent        int
	PasswordUpgraded int
	AccountUnblocked int
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	AutoUnblock bool

	Now   func() time.Time
	Begin func(context.Context) (store.Tx, error)

	VerifyPassword func(password, encoded string) (bool, error)
	VerifyDummy    func(password string)
	NeedsUpgrade   func(encoded string) bool
	HashPassword   func(password string) (string, error)

	GenerateChallenge func(context.Context, store.Tx, *store.User) error
	ResendChallenge   func(context.Context, store.Tx, *store.User) error
	IssueTokens       func(*store.User) (TokenPair, error)

	MetricInc func(int)
	Logger    *zap.Logger

	Metrics LoginMetrics
	Errors  Errors
}

// RunLogin checks credentials and either issues a token pair or starts the
// MFA challenge. Absent accounts and wrong passwords fail identically.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) (*LoginResult, error) {
	if deps.Begin == nil ||
		deps.VerifyPassword == nil ||
		deps.IssueTokens == nil ||
		deps.GenerateChallenge == nil ||
		deps.ResendChallenge == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}
	if deps.VerifyDummy == nil {
		deps.VerifyDummy = func(string) {}
	}
	deps.Now = nowOrDefault(deps.Now)
	logger := loggerOrNop(deps.Logger)

	email = NormalizeEmail(email)

	tx, err := deps.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := tx.UserByEmailForUpdate(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		deps.VerifyDummy(password)
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, deps.Errors.InvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Warn("password verification failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err != nil || !ok {
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, deps.Errors.InvalidCredentials
	}

	now := deps.Now()
	dirty := false

	if user.IsBlocked && deps.AutoUnblock && user.BlockedUntil != nil && !now.Before(*user.BlockedUntil) {
		user.IsBlocked = false
		user.BlockedUntil = nil
		dirty = true
		deps.MetricInc(deps.Metrics.AccountUnblocked)
	}
	if !user.IsActive || user.IsBlocked {
		logger.Info("login rejected",
			zap.String("user_id", user.ID),
			zap.Bool("active", user.IsActive),
			zap.Bool("blocked", user.IsBlocked),
		)
		deps.MetricInc(deps.Metrics.LoginFailure)
		return nil, deps.Errors.UserInactiveOrBlocked
	}

	if deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.NeedsUpgrade(user.PasswordHash) {
		upgraded, err := deps.HashPassword(password)
		if err != nil {
			logger.Warn("password hash upgrade failed", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			user.PasswordHash = upgraded
			dirty = true
			deps.MetricInc(deps.Metrics.PasswordUpgraded)
		}
	}

	if !user.MFAEnabled {
		user.LastLogin = &now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("update last login: %w", err)
		}
		pair, err := deps.IssueTokens(user)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit login: %w", err)
		}
		deps.MetricInc(deps.Metrics.LoginSuccess)
		return &LoginResult{Tokens: &pair}, nil
	}

	if dirty {
		if err := tx.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	err = deps.GenerateChallenge(ctx, tx, user)
	switch {
	case err == nil:
	case errors.Is(err, mfa.ErrChallengePending):
		if err := deps.ResendChallenge(ctx, tx, user); err != nil {
			if errors.Is(err, mfa.ErrResendLimit) {
				deps.MetricInc(deps.Metrics.LoginFailure)
				return nil, deps.Errors.ChallengeResendLimit
			}
			return nil, fmt.Errorf("resend challenge: %w", err)
		}
		deps.MetricInc(deps.Metrics.MFAResent)
	case errors.Is(err, mfa.ErrConcurrentChallenge):
		logger.Info("mfa challenge created by a concurrent login", zap.String("user_id", user.ID))
	default:
		return nil, fmt.Errorf("generate challenge: %w", err)
	}

	deps.MetricInc(deps.Metrics.MFARequired)
	return &LoginResult{MFARequired: true}, nil
}
