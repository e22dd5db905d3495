package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/jobs"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notification"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// Engine is the authentication core. It is safe for concurrent use once
// built by Builder.Build.
type Engine struct {
	config     Config
	store      store.Store
	codec      *jwt.Codec
	hasher     *password.Hasher
	revoker    *revocation.Revoker
	preloader  *revocation.Preloader
	mfa        *mfa.Service
	notifier   *notification.Notifier
	jobs       *jobs.Runner
	authorizer Authorizer
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
	flows      flows.Deps
}

// Close waits for background jobs and drains queued notifications.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.jobs != nil {
		e.jobs.Close()
	}
	if e.notifier != nil {
		e.notifier.Close()
	}
}

// NotificationsDropped returns the number of emails that never reached the
// delivery queue.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil || e.notifier == nil {
		return 0
	}
	return e.notifier.Dropped()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricIncInt(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.codec != nil && e.revoker != nil && e.mfa != nil
}

func (e *Engine) flowErrors() flows.Errors {
	return flows.Errors{
		EngineNotReady:        ErrEngineNotReady,
		InvalidCredentials:    ErrInvalidCredentials,
		UserInactiveOrBlocked: ErrUserInactiveOrBlocked,
		InvalidOrExpiredToken: ErrInvalidOrExpiredToken,
		TokenNotGenerated:     ErrTokenNotGenerated,
		TokenExpired:          ErrTokenExpired,
		ResetTokenUsed:        errResetTokenUsed,
		InvalidToken:          ErrInvalidToken,
		UserNotFound:          ErrUserNotFound,
		ChallengeResendLimit:  ErrChallengeResendLimit,
		AccountExists:         ErrAccountExists,
		AccountInvalid:        ErrAccountCreationInvalid,
		Lockout:               lockoutError,
	}
}

func (e *Engine) buildFlows() flows.Deps {
	errs := e.flowErrors()
	return flows.Deps{
		Login: flows.LoginDeps{
			AutoUnblock:       e.config.MFA.AutoUnblock,
			Now:               e.now,
			Begin:             e.store.Begin,
			VerifyPassword:    e.hasher.Verify,
			VerifyDummy:       e.hasher.VerifyDummy,
			NeedsUpgrade:      e.needsUpgrade,
			HashPassword:      e.hashPassword,
			GenerateChallenge: e.mfa.Generate,
			ResendChallenge:   e.mfa.Resend,
			IssueTokens:       e.issueTokenPair,
			MetricInc:         e.metricIncInt,
			Logger:            e.logger,
			Metrics: flows.LoginMetrics{
				LoginSuccess:     int(MetricLoginSuccess),
				LoginFailure:     int(MetricLoginFailure),
				MFARequired:      int(MetricMFARequired),
				MFAResent:        int(MetricMFAResent),
				PasswordUpgraded: int(MetricPasswordUpgraded),
				AccountUnblocked: int(MetricAccountUnblocked),
			},
			Errors: errs,
		},
		MFA: flows.MFADeps{
			LockoutDuration: e.config.MFA.LockoutDuration,
			Now:             e.now,
			Begin:           e.store.Begin,
			VerifyChallenge: e.mfa.Verify,
			IssueTokens:     e.issueTokenPair,
			MetricInc:       e.metricIncInt,
			Logger:          e.logger,
			Metrics: flows.MFAMetrics{
				MFASuccess: int(MetricMFASuccess),
				MFAFailure: int(MetricMFAFailure),
				MFAExpired: int(MetricMFAExpired),
				MFALockout: int(MetricMFALockout),
			},
			Errors: errs,
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh: e.verifyRefresh,
			IsRevoked:     e.isRefreshRevoked,
			IssueAccess:   e.issueAccess,
			MetricInc:     e.metricIncInt,
			Logger:        e.logger,
			Metrics: flows.RefreshMetrics{
				RefreshSuccess: int(MetricRefreshSuccess),
				RefreshFailure: int(MetricRefreshFailure),
				RefreshRevoked: int(MetricRefreshRevoked),
			},
			Errors: errs,
		},
		Logout: flows.LogoutDeps{
			Begin:         e.store.Begin,
			VerifyRefresh: e.verifyRefresh,
			IsRevoked:     e.isRefreshRevoked,
			Revoke:        e.revokeKind(jwt.KindRefresh),
			Publish:       e.publishKind(jwt.KindRefresh),
			MetricInc:     e.metricIncInt,
			Metrics: flows.LogoutMetrics{
				Logout: int(MetricLogout),
			},
			Errors: errs,
		},
		PasswordReset: flows.PasswordResetDeps{
			Begin:           e.store.Begin,
			IssueResetToken: e.issueResetToken,
			VerifyReset:     e.verifyReset,
			ResetURL:        e.resetURL,
			NotifyReset:     e.notifyReset,
			IsRevokedAuthoritative: func(ctx context.Context, tx store.Tx, token string) (bool, error) {
				return e.revoker.IsRevokedAuthoritative(ctx, tx, jwt.KindResetPassword, token)
			},
			Revoke:       e.revokeKind(jwt.KindResetPassword),
			Publish:      e.publishKind(jwt.KindResetPassword),
			HashPassword: e.hashPassword,
			MetricInc:    e.metricIncInt,
			Logger:       e.logger,
			Metrics: flows.PasswordResetMetrics{
				PasswordResetRequest:        int(MetricPasswordResetRequest),
				PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
				PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
				PasswordResetTokenReused:    int(MetricPasswordResetTokenReused),
			},
			Errors: errs,
		},
		CreateUser: flows.CreateUserDeps{
			Begin:        e.store.Begin,
			HashPassword: e.hashPassword,
			MetricInc:    e.metricIncInt,
			Metrics: flows.CreateUserMetrics{
				AccountCreated:   int(MetricAccountCreated),
				AccountDuplicate: int(MetricAccountDuplicate),
			},
			Errors: errs,
		},
	}
}

/*
====================================
TOKENS
====================================
*/

func (e *Engine) issueTokenPair(user *store.User) (flows.TokenPair, error) {
	access, err := e.issueAccess(user.ID)
	if err != nil {
		return flows.TokenPair{}, err
	}
	refresh, err := e.codec.Issue(jwt.KindRefresh, map[string]any{jwt.ClaimUserID: user.ID}, e.config.JWT.RefreshTTL)
	if err != nil {
		return flows.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return flows.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (e *Engine) issueAccess(userID string) (string, error) {
	token, err := e.codec.Issue(jwt.KindAccess, map[string]any{jwt.ClaimUserID: userID}, e.config.JWT.AccessTTL)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return token, nil
}

func (e *Engine) issueResetToken(email string) (string, error) {
	token, err := e.codec.Issue(jwt.KindResetPassword, map[string]any{jwt.ClaimEmail: email}, e.config.JWT.ResetPasswordTTL)
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}
	return token, nil
}

func (e *Engine) verifyKind(token string, allowed ...jwt.Kind) (jwt.Claims, error) {
	claims, err := e.codec.VerifyKind(token, allowed...)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return claims, nil
}

func (e *Engine) verifyRefresh(token string) (jwt.Claims, error) {
	claims, err := e.verifyKind(token, jwt.KindRefresh)
	if err != nil {
		return nil, err
	}
	if claims.UserID() == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	return claims, nil
}

func (e *Engine) verifyReset(token string) (jwt.Claims, error) {
	return e.verifyKind(token, jwt.KindResetPassword)
}

func (e *Engine) isRefreshRevoked(ctx context.Context, token string) (bool, error) {
	return e.revoker.IsRevoked(ctx, jwt.KindRefresh, token)
}

func (e *Engine) revokeKind(kind jwt.Kind) func(context.Context, store.Tx, string, string) error {
	return func(ctx context.Context, tx store.Tx, token, revokedBy string) error {
		return e.revoker.Record(ctx, tx, kind, token, revokedBy)
	}
}

func (e *Engine) publishKind(kind jwt.Kind) func(context.Context, string) {
	return func(ctx context.Context, token string) {
		e.revoker.Publish(ctx, kind, token)
		e.metricInc(MetricTokenRevoked)
	}
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrInvalidKind):
		return ErrInvalidTokenType
	case errors.Is(err, jwt.ErrInvalidOrExpired):
		return ErrInvalidOrExpiredToken
	default:
		return err
	}
}

/*
====================================
PASSWORDS
====================================
*/

func (e *Engine) hashPassword(plain string) (string, error) {
	hash, err := e.hasher.Hash(plain)
	if errors.Is(err, password.ErrPolicy) {
		return "", ErrPasswordPolicy
	}
	return hash, err
}

func (e *Engine) needsUpgrade(encoded string) bool {
	return e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(encoded)
}

/*
====================================
NOTIFICATIONS
====================================
*/

func (e *Engine) resetURL(token string) (string, error) {
	base, err := url.Parse(e.config.Links.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	trailing := strings.HasSuffix(e.config.Links.ResetPasswordPath, "/")
	base.Path = path.Join("/", base.Path, e.config.Links.APIPrefix, e.config.Links.ResetPasswordPath)
	if trailing && !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	base.RawQuery = url.Values{"token": []string{token}}.Encode()
	return base.String(), nil
}

func (e *Engine) notify(ctx context.Context, to string, kind notification.Kind, data any) error {
	err := e.notifier.Notify(ctx, to, kind, data)
	if errors.Is(err, notification.ErrNotQueued) {
		e.metricInc(MetricNotificationDropped)
	}
	return err
}

func (e *Engine) notifyReset(ctx context.Context, to, resetURL string) error {
	return e.notify(ctx, to, notification.KindResetPassword, notification.ResetPasswordData{
		ResetPasswordURL: resetURL,
	})
}

func (e *Engine) notifyMFACode(ctx context.Context, user *store.User, code string, ttl time.Duration) error {
	data := notification.MFACodeData{
		Code:          code,
		ExpiryMinutes: int(ttl.Minutes()),
	}
	if data.ExpiryMinutes < 1 {
		data.ExpiryMinutes = 1
	}
	if e.config.MFA.FirstLoginResetLink && user.LastLogin == nil {
		token, err := e.issueResetToken(user.Email)
		if err != nil {
			return err
		}
		link, err := e.resetURL(token)
		if err != nil {
			return err
		}
		data.ResetPasswordURL = link
	}
	return e.notify(ctx, user.Email, notification.KindMFACode, data)
}
