package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded claim set of a verified token.
type Claims map[string]any

// Kind returns the token kind.
func (c Claims) Kind() Kind {
	v, _ := c[ClaimKind].(string)
	return Kind(v)
}

// ID returns the jti claim.
func (c Claims) ID() string {
	v, _ := c[ClaimID].(string)
	return v
}

// UserID returns the user_id claim, or "" when absent.
func (c Claims) UserID() string {
	v, _ := c[ClaimUserID].(string)
	return v
}

// Email returns the email claim, or "" when absent.
func (c Claims) Email() string {
	v, _ := c[ClaimEmail].(string)
	return v
}

// IssuedAt returns the iat claim as a time, or the zero time when absent.
func (c Claims) IssuedAt() time.Time {
	d, err := jwt.MapClaims(c).GetIssuedAt()
	if err != nil || d == nil {
		return time.Time{}
	}
	return d.Time
}

// ExpiresAt returns the exp claim as a time, or the zero time when absent.
func (c Claims) ExpiresAt() time.Time {
	d, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || d == nil {
		return time.Time{}
	}
	return d.Time
}
