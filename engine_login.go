package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
)

// Login authenticates email and password.
//
// For principals without MFA the result carries an access and refresh token
// and last_login is updated. For principals with MFA a code is sent and the
// result carries only MessageMFARequired. Unknown emails and wrong passwords
// both fail with ErrInvalidCredentials. Inactive or blocked principals fail
// with ErrUserInactiveOrBlocked.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := flows.RunLogin(ctx, email, password, e.flows.Login)
	if err != nil {
		return nil, err
	}
	if res.MFARequired {
		return &LoginResult{Message: MessageMFARequired}, nil
	}
	return &LoginResult{Tokens: toTokenPair(res.Tokens)}, nil
}

// VerifyMFAToken completes an MFA login with the code sent by Login.
//
// It fails with ErrTokenNotGenerated when no code is pending, ErrTokenExpired
// when the code expired (the challenge is cleared and does not count as a
// wrong attempt), ErrInvalidToken for a wrong code and ErrUserBlocked when the
// wrong code exhausted the attempt budget.
func (e *Engine) VerifyMFAToken(ctx context.Context, email, code string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	pair, err := flows.RunVerifyMFA(ctx, email, code, e.flows.MFA)
	if err != nil {
		return nil, err
	}
	return toTokenPair(pair), nil
}

func toTokenPair(p *flows.TokenPair) *TokenPair {
	if p == nil {
		return nil
	}
	return &TokenPair{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
}
