package authcore

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the stable, machine-checkable kind of a domain failure.
type ErrorKind string

const (
	KindInvalidCredentials     ErrorKind = "InvalidCredentials"
	KindUserInactiveOrBlocked  ErrorKind = "UserInactiveOrBlocked"
	KindInvalidOrExpiredToken  ErrorKind = "InvalidOrExpiredToken"
	KindInvalidTokenType       ErrorKind = "InvalidTokenType"
	KindTokenNotGenerated      ErrorKind = "TokenNotGenerated"
	KindTokenExpired           ErrorKind = "TokenExpired"
	KindInvalidToken           ErrorKind = "InvalidToken"
	KindUserNotFound           ErrorKind = "UserNotFound"
	KindUserBlocked            ErrorKind = "UserBlocked"
	KindPermissionDenied       ErrorKind = "PermissionDenied"
	KindPasswordPolicy         ErrorKind = "PasswordPolicy"
	KindAccountExists          ErrorKind = "AccountExists"
	KindAccountCreationInvalid ErrorKind = "AccountCreationInvalid"
	KindChallengeResendLimit   ErrorKind = "ChallengeResendLimit"
	KindEngineNotReady         ErrorKind = "EngineNotReady"
)

// Error is a request-scoped, user-visible failure. Two errors match under
// errors.Is when their kinds are equal, so a message variant still matches
// its sentinel.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = newError(KindInvalidCredentials, "Authentication failed. Please verify your login details.")
	// ErrUserInactiveOrBlocked is returned by login for inactive or blocked principals.
	ErrUserInactiveOrBlocked = newError(KindUserInactiveOrBlocked, "User is inactive or blocked. Please contact support.")
	// ErrInvalidOrExpiredToken is returned when a token fails signature, claim or expiry checks.
	ErrInvalidOrExpiredToken = newError(KindInvalidOrExpiredToken, "The provided token is either invalid or expired.")
	// ErrInvalidTokenType is returned when a valid token has the wrong kind.
	ErrInvalidTokenType = newError(KindInvalidTokenType, "The provided token type is invalid.")
	// ErrTokenNotGenerated is returned by MFA verification with no challenge pending.
	ErrTokenNotGenerated = newError(KindTokenNotGenerated, "Token not generated for the user. Please login again.")
	// ErrNoChallengePending is an alias of ErrTokenNotGenerated.
	ErrNoChallengePending = ErrTokenNotGenerated
	// ErrTokenExpired is returned for an expired MFA code or a revoked token.
	ErrTokenExpired = newError(KindTokenExpired, "Token expired, please login again.")
	// ErrInvalidToken is returned for a wrong MFA code below the lockout threshold.
	ErrInvalidToken = newError(KindInvalidToken, "Invalid token, please check your email and try again")
	// ErrUserNotFound is returned when a principal referenced by a request does not exist.
	ErrUserNotFound = newError(KindUserNotFound, "The requested user was not found.")
	// ErrUserBlocked is returned when a wrong MFA code triggers the lockout.
	ErrUserBlocked = newError(KindUserBlocked, "Maximum invalid attempts reached. User blocked.")
	// ErrPermissionDenied is returned when the authorizer denies a request.
	ErrPermissionDenied = newError(KindPermissionDenied, "You do not have permission to perform this action.")
	// ErrPasswordPolicy is returned when a new password violates the password policy.
	ErrPasswordPolicy = newError(KindPasswordPolicy, "The provided password does not meet the password policy.")
	// ErrAccountExists is returned when creating a principal with a taken email.
	ErrAccountExists = newError(KindAccountExists, "An account with this email already exists.")
	// ErrAccountCreationInvalid is returned for an incomplete create-user request.
	ErrAccountCreationInvalid = newError(KindAccountCreationInvalid, "Invalid account creation request.")
	// ErrChallengeResendLimit is returned by login once the MFA resend budget is spent.
	ErrChallengeResendLimit = newError(KindChallengeResendLimit, "Maximum token requests reached. Please wait for the current token to expire.")
	// ErrEngineNotReady is returned by an Engine that was not built by Builder.
	ErrEngineNotReady = newError(KindEngineNotReady, "engine not initialized")

	errResetTokenUsed = newError(KindTokenExpired, "The provided link has already been used to reset your password. Please request a new link.")
)

func lockoutError(d time.Duration) error {
	return newError(KindUserBlocked, fmt.Sprintf("Maximum invalid attempts reached. User blocked for %d minutes.", int(d.Minutes())))
}
