package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// PasswordResetMetrics carries metric IDs needed by the reset flows.
type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	PasswordResetTokenReused    int
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	Begin func(context.Context) (store.Tx, error)

	IssueResetToken func(email string) (string, error)
	VerifyReset     func(token string) (jwt.Claims, error)
	ResetURL        func(token string) (string, error)
	NotifyReset     func(ctx context.Context, to, resetURL string) error

	IsRevokedAuthoritative func(ctx context.Context, tx store.Tx, token string) (bool, error)
	Revoke                 func(ctx context.Context, tx store.Tx, token, revokedBy string) error
	Publish                func(ctx context.Context, token string)
	HashPassword           func(password string) (string, error)

	MetricInc func(int)
	Logger    *zap.Logger

	Metrics PasswordResetMetrics
	Errors  Errors
}

// RunInitResetPassword sends a reset link to the principal with email if one
// exists. The outcome is the same for unknown emails; only infrastructure
// failures are returned.
func RunInitResetPassword(ctx context.Context, email string, deps PasswordResetDeps) error {
	if deps.Begin == nil || deps.IssueResetToken == nil || deps.ResetURL == nil || deps.NotifyReset == nil {
		return deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}
	logger := loggerOrNop(deps.Logger)

	tx, err := deps.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset request: %w", err)
	}
	defer tx.Rollback(ctx)

	deps.MetricInc(deps.Metrics.PasswordResetRequest)

	user, err := tx.UserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	token, err := deps.IssueResetToken(user.Email)
	if err != nil {
		return err
	}
	link, err := deps.ResetURL(token)
	if err != nil {
		return err
	}
	if err := deps.NotifyReset(ctx, user.Email, link); err != nil {
		logger.Error("reset password notification failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// RunResetPassword sets a new password for the principal named by the reset
// token and consumes the token. The principal row stays locked from the
// single-use check to the commit, so concurrent calls with one token
// succeed at most once.
func RunResetPassword(ctx context.Context, token, email, newPassword string, deps PasswordResetDeps) error {
	if deps.Begin == nil ||
		deps.VerifyReset == nil ||
		deps.IsRevokedAuthoritative == nil ||
		deps.Revoke == nil ||
		deps.Publish == nil ||
		deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}

	claims, err := deps.VerifyReset(token)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return err
	}
	email = NormalizeEmail(email)
	if NormalizeEmail(claims.Email()) != email {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return deps.Errors.InvalidOrExpiredToken
	}

	tx, err := deps.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := tx.UserByEmailForUpdate(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return deps.Errors.UserNotFound
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	used, err := deps.IsRevokedAuthoritative(ctx, tx, token)
	if err != nil {
		return fmt.Errorf("check reset token: %w", err)
	}
	if used {
		deps.MetricInc(deps.Metrics.PasswordResetTokenReused)
		return deps.Errors.ResetTokenUsed
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		return err
	}
	user.PasswordHash = hash
	if err := tx.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	err = deps.Revoke(ctx, tx, token, user.ID)
	if errors.Is(err, store.ErrConflict) {
		deps.MetricInc(deps.Metrics.PasswordResetTokenReused)
		return deps.Errors.ResetTokenUsed
	}
	if err != nil {
		return fmt.Errorf("revoke reset token: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			deps.MetricInc(deps.Metrics.PasswordResetTokenReused)
			return deps.Errors.ResetTokenUsed
		}
		return fmt.Errorf("commit reset: %w", err)
	}
	deps.Publish(ctx, token)

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	return nil
}
