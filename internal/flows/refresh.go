package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authcore/jwt"
	"go.uber.org/zap"
)

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
	RefreshRevoked int
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	VerifyRefresh func(token string) (jwt.Claims, error)
	IsRevoked     func(ctx context.Context, token string) (bool, error)
	IssueAccess   func(userID string) (string, error)

	MetricInc func(int)
	Logger    *zap.Logger

	Metrics RefreshMetrics
	Errors  Errors
}

// RunRefresh issues a new access token for principalID. The refresh token
// must be a valid, unrevoked refresh token of the same principal. No new
// refresh token is issued.
func RunRefresh(ctx context.Context, principalID, refreshToken string, deps RefreshDeps) (string, error) {
	if deps.VerifyRefresh == nil || deps.IsRevoked == nil || deps.IssueAccess == nil {
		return "", deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return "", err
	}
	if principalID == "" || claims.UserID() != principalID {
		loggerOrNop(deps.Logger).Info("refresh token presented by another principal",
			zap.String("principal_id", principalID),
		)
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return "", deps.Errors.InvalidOrExpiredToken
	}

	revoked, err := deps.IsRevoked(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("check refresh revocation: %w", err)
	}
	if revoked {
		deps.MetricInc(deps.Metrics.RefreshRevoked)
		return "", deps.Errors.TokenExpired
	}

	access, err := deps.IssueAccess(principalID)
	if err != nil {
		return "", err
	}
	deps.MetricInc(deps.Metrics.RefreshSuccess)
	return access, nil
}
