package authcore

import (
	"context"
	"time"
)

const (
	// MessageMFARequired is returned by Login when a code was sent instead of tokens.
	MessageMFARequired = "Login successful. You'll recieve a token on your registered mail id"
	// MessageResetInitiated is returned by InitResetPassword for every email.
	MessageResetInitiated = "If the provided email is associated with an active user, a reset password link will been sent to your email. Please check your email for further instructions."
	// MessagePasswordReset is returned by ResetPassword on success.
	MessagePasswordReset = "Password reset successfully, you can now login with your new password"
	// MessageLoggedOut is returned by Logout on success.
	MessageLoggedOut = "You have been logged out successfully"
)

// TokenPair is an issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult is the outcome of Login or VerifyMFAToken. Exactly one of
// Tokens and Message is set.
type LoginResult struct {
	Tokens  *TokenPair `json:"tokens,omitempty"`
	Message string     `json:"message,omitempty"`
}

// MFARequired reports whether a second factor is pending.
func (r *LoginResult) MFARequired() bool {
	return r != nil && r.Tokens == nil
}

// Notice is a generic user-facing response without tokens.
type Notice struct {
	Message string `json:"message"`
}

// Principal is the public view of an authenticated user.
type Principal struct {
	ID            string
	Email         string
	FullName      string
	Roles         []string
	Active        bool
	MFAEnabled    bool
	EmailVerified bool
	Blocked       bool
	BlockedUntil  *time.Time
	LastLogin     *time.Time
}

// CreateUserInput describes a principal to create.
type CreateUserInput struct {
	Email         string
	Password      string
	FullName      string
	Roles         []string
	Active        bool
	MFAEnabled    bool
	EmailVerified bool
}

// Resource names the object an authorization check is about.
type Resource struct {
	Kind string
	ID   string
}

// PrincipalAttributes is what an Authorizer sees of the caller.
type PrincipalAttributes struct {
	ID    string
	Roles []string
	Attr  map[string]any
}

// Authorizer evaluates an external policy. It only answers allow or deny.
type Authorizer interface {
	IsAllowed(ctx context.Context, principal PrincipalAttributes, resource Resource, action string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, principal PrincipalAttributes, resource Resource, action string) (bool, error)

// IsAllowed calls f.
func (f AuthorizerFunc) IsAllowed(ctx context.Context, principal PrincipalAttributes, resource Resource, action string) (bool, error) {
	return f(ctx, principal, resource, action)
}
