package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// LogoutMetrics carries metric IDs needed by the logout flow.
type LogoutMetrics struct {
	Logout int
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Begin func(context.Context) (store.Tx, error)

	VerifyRefresh func(token string) (jwt.Claims, error)
	IsRevoked     func(ctx context.Context, token string) (bool, error)
	Revoke        func(ctx context.Context, tx store.Tx, token, revokedBy string) error
	Publish       func(ctx context.Context, token string)

	MetricInc func(int)

	Metrics LogoutMetrics
	Errors  Errors
}

// RunLogout revokes refreshToken on behalf of principalID. Logging out with a
// token that is already revoked succeeds without a second record.
func RunLogout(ctx context.Context, refreshToken, principalID string, deps LogoutDeps) error {
	if deps.Begin == nil || deps.VerifyRefresh == nil || deps.IsRevoked == nil || deps.Revoke == nil || deps.Publish == nil {
		return deps.Errors.EngineNotReady
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return err
	}
	if principalID == "" || claims.UserID() != principalID {
		return deps.Errors.InvalidOrExpiredToken
	}

	if revoked, err := deps.IsRevoked(ctx, refreshToken); err == nil && revoked {
		return nil
	}

	tx, err := deps.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin logout: %w", err)
	}
	defer tx.Rollback(ctx)

	err = deps.Revoke(ctx, tx, refreshToken, principalID)
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit logout: %w", err)
	}
	deps.Publish(ctx, refreshToken)

	deps.MetricInc(deps.Metrics.Logout)
	return nil
}
