package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// InitResetPassword emails a reset link when email belongs to a principal.
// The notice is identical whether or not it does.
func (e *Engine) InitResetPassword(ctx context.Context, email string) (*Notice, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if err := flows.RunInitResetPassword(ctx, email, e.flows.PasswordReset); err != nil {
		return nil, err
	}
	return &Notice{Message: MessageResetInitiated}, nil
}

// ResetPassword sets newPassword for the principal with email and consumes
// token. A token that was already used fails with ErrTokenExpired, also when
// the revocation cache has lost the entry.
func (e *Engine) ResetPassword(ctx context.Context, token, email, newPassword string) (*Notice, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if err := flows.RunResetPassword(ctx, token, email, newPassword, e.flows.PasswordReset); err != nil {
		return nil, err
	}
	return &Notice{Message: MessagePasswordReset}, nil
}
