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

// MFAMetrics carries metric IDs needed by the MFA verification flow.
type MFAMetrics struct {
	MFASuccess int
	MFAFailure int
	MFAExpired int
	MFALockout int
}

// MFADeps captures MFA verification dependencies.
type MFADeps struct {
	LockoutDuration time.Duration

	Now   func() time.Time
	Begin func(context.Context) (store.Tx, error)

	VerifyChallenge func(ctx context.Context, tx store.Tx, user *store.User, code string) error
	IssueTokens     func(*store.User) (TokenPair, error)

	MetricInc func(int)
	Logger    *zap.Logger

	Metrics MFAMetrics
	Errors  Errors
}

// RunVerifyMFA checks code against the pending challenge of the principal
// with email and issues a token pair on success.
func RunVerifyMFA(ctx context.Context, email, code string, deps MFADeps) (*TokenPair, error) {
	if deps.Begin == nil || deps.VerifyChallenge == nil || deps.IssueTokens == nil || deps.Errors.Lockout == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}
	deps.Now = nowOrDefault(deps.Now)
	logger := loggerOrNop(deps.Logger)

	tx, err := deps.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin mfa verification: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := tx.UserByEmailForUpdate(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		deps.MetricInc(deps.Metrics.MFAFailure)
		return nil, deps.Errors.InvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := deps.VerifyChallenge(ctx, tx, user, code); err != nil {
		switch {
		case errors.Is(err, mfa.ErrNoChallengePending):
			deps.MetricInc(deps.Metrics.MFAFailure)
			return nil, deps.Errors.TokenNotGenerated
		case errors.Is(err, mfa.ErrCodeExpired):
			deps.MetricInc(deps.Metrics.MFAExpired)
			return nil, deps.Errors.TokenExpired
		case errors.Is(err, mfa.ErrInvalidCode):
			deps.MetricInc(deps.Metrics.MFAFailure)
			return nil, deps.Errors.InvalidToken
		case errors.Is(err, mfa.ErrLockedOut):
			deps.MetricInc(deps.Metrics.MFALockout)
			logger.Warn("user blocked after invalid mfa codes", zap.String("user_id", user.ID))
			return nil, deps.Errors.Lockout(deps.LockoutDuration)
		default:
			return nil, fmt.Errorf("verify challenge: %w", err)
		}
	}

	now := deps.Now()
	user.LastLogin = &now
	if err := tx.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	pair, err := deps.IssueTokens(user)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit mfa verification: %w", err)
	}

	deps.MetricInc(deps.Metrics.MFASuccess)
	return &pair, nil
}
