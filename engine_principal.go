package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

// CurrentPrincipal loads the principal named by verified claims.
func (e *Engine) CurrentPrincipal(ctx context.Context, claims jwt.Claims) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	user, err := e.userForClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	return principalFromUser(user), nil
}

// Authorize asks the configured Authorizer whether the principal of claims
// may perform action on its own resource of resourceKind. The resource id is
// "<resourceKind>_<user id>". Without an Authorizer every check is denied.
func (e *Engine) Authorize(ctx context.Context, claims jwt.Claims, resourceKind, action string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	user, err := e.userForClaims(ctx, claims)
	if err != nil {
		return err
	}
	if e.authorizer == nil {
		e.metricInc(MetricPermissionDenied)
		return ErrPermissionDenied
	}

	attrs := PrincipalAttributes{
		ID:    user.ID,
		Roles: append([]string(nil), user.Roles...),
		Attr: map[string]any{
			"email":          user.Email,
			"full_name":      user.FullName,
			"is_active":      user.IsActive,
			"is_mfa_enabled": user.MFAEnabled,
			"email_verified": user.EmailVerified,
			"is_blocked":     user.IsBlocked,
		},
	}
	resource := Resource{Kind: resourceKind, ID: resourceKind + "_" + user.ID}

	allowed, err := e.authorizer.IsAllowed(ctx, attrs, resource, action)
	if err != nil {
		e.logger.Warn("authorizer failed",
			zap.String("user_id", user.ID),
			zap.String("resource", resource.ID),
			zap.String("action", action),
			zap.Error(err),
		)
		e.metricInc(MetricPermissionDenied)
		return ErrPermissionDenied
	}
	if !allowed {
		e.metricInc(MetricPermissionDenied)
		return ErrPermissionDenied
	}
	return nil
}

// CreateUser stores a new principal. Duplicate emails fail with
// ErrAccountExists and weak passwords with ErrPasswordPolicy.
func (e *Engine) CreateUser(ctx context.Context, in CreateUserInput) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	user, err := flows.RunCreateUser(ctx, flows.CreateUserRequest{
		Email:         in.Email,
		Password:      in.Password,
		FullName:      in.FullName,
		Roles:         in.Roles,
		Active:        in.Active,
		MFAEnabled:    in.MFAEnabled,
		EmailVerified: in.EmailVerified,
	}, e.flows.CreateUser)
	if err != nil {
		return nil, err
	}
	return principalFromUser(user), nil
}

func (e *Engine) userForClaims(ctx context.Context, claims jwt.Claims) (*store.User, error) {
	if claims == nil || claims.UserID() == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := tx.UserByID(ctx, claims.UserID())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return user, nil
}

func principalFromUser(u *store.User) *Principal {
	c := u.Clone()
	return &Principal{
		ID:            c.ID,
		Email:         c.Email,
		FullName:      c.FullName,
		Roles:         c.Roles,
		Active:        c.IsActive,
		MFAEnabled:    c.MFAEnabled,
		EmailVerified: c.EmailVerified,
		Blocked:       c.IsBlocked,
		BlockedUntil:  c.BlockedUntil,
		LastLogin:     c.LastLogin,
	}
}
