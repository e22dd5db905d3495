package flows

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login         LoginDeps
	MFA           MFADeps
	Refresh       RefreshDeps
	Logout        LogoutDeps
	PasswordReset PasswordResetDeps
	CreateUser    CreateUserDeps
}

// Errors carries host-level sentinel errors used by every flow.
type Errors struct {
	EngineNotReady        error
	InvalidCredentials    error
	UserInactiveOrBlocked error
	InvalidOrExpiredToken error
	TokenNotGenerated     error
	TokenExpired          error
	ResetTokenUsed        error
	InvalidToken          error
	UserNotFound          error
	ChallengeResendLimit  error
	AccountExists         error
	AccountInvalid        error

	// Lockout builds the user-blocked error for a lockout of the given length.
	Lockout func(time.Duration) error
}

// TokenPair is an issued access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// NormalizeEmail trims and lower-cases an email for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nopMetric(int) {}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
