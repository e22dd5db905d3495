package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint:
	// a duplicate email, a second MFA challenge for the same principal or a
	// second revocation of the same token.
	ErrConflict = errors.New("store: conflict")
	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errors.New("store: transaction already closed")
)

// User is a principal as persisted.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	FullName      string
	Roles         []string
	IsActive      bool
	MFAEnabled    bool
	EmailVerified bool
	IsBlocked     bool
	BlockedUntil  *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Roles != nil {
		out.Roles = append([]string(nil), u.Roles...)
	}
	if u.BlockedUntil != nil {
		t := *u.BlockedUntil
		out.BlockedUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	return &out
}

// MFAAttempt is the single pending one-time-code challenge of a principal.
type MFAAttempt struct {
	UserID            string
	Code              string
	ExpiresAt         time.Time
	IncorrectAttempts int
	ResendCount       int
}

// Revocation is one append-only revocation record. TokenDigest is the
// SHA-256 hex digest of the raw token.
type Revocation struct {
	TokenDigest string
	Kind        string
	RevokedAt   time.Time
	RevokedBy   string
}

// Store opens transactions.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a unit of work. Nothing written through a Tx is visible to other
// transactions before Commit. Rollback after Commit is a no-op so callers
// can always defer it.
type Tx interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
	// UserByEmailForUpdate is UserByEmail that also locks the principal
	// until the transaction ends. Concurrent lockers of the same principal
	// wait and then observe the committed writes of the first.
	UserByEmailForUpdate(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error

	MFAAttempt(ctx context.Context, userID string) (*MFAAttempt, error)
	// MFAAttemptForUpdate is MFAAttempt that also locks the challenge until
	// the transaction ends.
	MFAAttemptForUpdate(ctx context.Context, userID string) (*MFAAttempt, error)
	CreateMFAAttempt(ctx context.Context, a *MFAAttempt) error
	UpdateMFAAttempt(ctx context.Context, a *MFAAttempt) error
	DeleteMFAAttempt(ctx context.Context, userID string) error

	// InsertRevocation fails with ErrConflict when the digest of that kind
	// is already recorded.
	InsertRevocation(ctx context.Context, r Revocation) error
	RevocationExists(ctx context.Context, kind, digest string) (bool, error)
	// RevocationsSince streams revocations of kind revoked strictly after
	// since, oldest first, stopping at the first error returned by fn.
	RevocationsSince(ctx context.Context, kind string, since time.Time, fn func(Revocation) error) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
