package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
)

// RefreshAccessToken issues a new access token for principalID, which the
// caller has already authenticated. The refresh token must belong to the
// same principal; a revoked one fails with ErrTokenExpired.
func (e *Engine) RefreshAccessToken(ctx context.Context, principalID, refreshToken string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return flows.RunRefresh(ctx, principalID, refreshToken, e.flows.Refresh)
}

// Logout revokes refreshToken of principalID.
func (e *Engine) Logout(ctx context.Context, refreshToken, principalID string) (*Notice, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if err := flows.RunLogout(ctx, refreshToken, principalID, e.flows.Logout); err != nil {
		return nil, err
	}
	return &Notice{Message: MessageLoggedOut}, nil
}

// VerifyAccessToken is the request gate for access tokens.
func (e *Engine) VerifyAccessToken(ctx context.Context, raw string) (jwt.Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	claims, err := e.verifyKind(raw, jwt.KindAccess)
	e.observeVerify(start, err)
	return claims, err
}

// VerifyBearerToken accepts access and refresh tokens. It is the gate of the
// refresh route, so a revoked refresh token fails with ErrTokenExpired.
func (e *Engine) VerifyBearerToken(ctx context.Context, raw string) (jwt.Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	claims, err := e.verifyBearer(ctx, raw)
	e.observeVerify(start, err)
	return claims, err
}

func (e *Engine) verifyBearer(ctx context.Context, raw string) (jwt.Claims, error) {
	claims, err := e.verifyKind(raw, jwt.KindAccess, jwt.KindRefresh)
	if err != nil {
		return nil, err
	}
	if claims.Kind() != jwt.KindRefresh {
		return claims, nil
	}
	if claims.UserID() == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	revoked, err := e.isRefreshRevoked(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("check refresh revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// VerifyResetPasswordToken verifies a reset-password token and returns the
// email it was issued for. It does not check whether the token was used.
func (e *Engine) VerifyResetPasswordToken(raw string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	claims, err := e.verifyReset(raw)
	if err != nil {
		return "", err
	}
	return claims.Email(), nil
}

func (e *Engine) observeVerify(start time.Time, err error) {
	if err != nil {
		e.metricInc(MetricBearerVerifyFailure)
	} else {
		e.metricInc(MetricBearerVerifySuccess)
	}
	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
}
