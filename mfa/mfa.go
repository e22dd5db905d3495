// Package mfa implements the one-time-code challenge that follows a
// successful password check for principals with MFA enabled.
//
// Each principal has at most one challenge. Its lifecycle:
//
//	NONE ──Generate──▶ PENDING ──Verify(ok)────────▶ NONE
//	                      │ ──expired on Verify───▶ NONE
//	                      │ ──max wrong codes─────▶ NONE, principal blocked
//	                      └─Resend (same code, bounded)
//
// Operations run inside the caller's store transaction. Every failing
// transition that changes state commits the transaction itself so that the
// counter increment, the lockout or the expiry cleanup survives the error
// returned to the caller. The successful Verify path leaves the commit to the
// caller so it can update the principal in the same transaction.
//
// Challenge reads go through MFAAttemptForUpdate, so concurrent verifications
// of one principal count every wrong code.
package mfa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

var (
	// ErrNoChallengePending is returned by Verify when no challenge exists.
	ErrNoChallengePending = errors.New("mfa: no challenge pending")
	// ErrCodeExpired is returned by Verify when the challenge expired. The
	// challenge has been cleared.
	ErrCodeExpired = errors.New("mfa: code expired")
	// ErrInvalidCode is returned by Verify on a wrong code below the lockout threshold.
	ErrInvalidCode = errors.New("mfa: invalid code")
	// ErrLockedOut is returned by Verify when the wrong code reached the
	// threshold. The principal is blocked and the challenge cleared.
	ErrLockedOut = errors.New("mfa: too many invalid codes")
	// ErrChallengePending is returned by Generate when an unexpired challenge exists.
	ErrChallengePending = errors.New("mfa: challenge already pending")
	// ErrConcurrentChallenge is returned by Generate when another transaction
	// created a challenge for the same principal first.
	ErrConcurrentChallenge = errors.New("mfa: challenge created concurrently")
	// ErrResendLimit is returned by Resend once the resend budget is spent.
	ErrResendLimit = errors.New("mfa: resend limit reached")
)

// State is the observable challenge state of a principal.
type State int

const (
	StateNone State = iota
	StatePending
	StateExpired
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExpired:
		return "expired"
	default:
		return "none"
	}
}

// Config controls code shape and the attempt budget.
type Config struct {
	CodeLength           int
	CodeTTL              time.Duration
	MaxIncorrectAttempts int
	LockoutDuration      time.Duration
	MaxResends           int
	Now                  func() time.Time
}

// Notifier delivers a generated code to the principal out of band. It is
// expected to return quickly and deliver asynchronously.
type Notifier interface {
	NotifyCode(ctx context.Context, user *store.User, code string, ttl time.Duration) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, user *store.User, code string, ttl time.Duration) error

// NotifyCode calls f.
func (f NotifierFunc) NotifyCode(ctx context.Context, user *store.User, code string, ttl time.Duration) error {
	return f(ctx, user, code, ttl)
}

// Service runs the challenge state machine.
type Service struct {
	cfg      Config
	notifier Notifier
	logger   *zap.Logger
}

// New validates cfg and returns a Service.
func New(cfg Config, notifier Notifier, logger *zap.Logger) (*Service, error) {
	if cfg.CodeLength < 4 || cfg.CodeLength > 32 {
		return nil, errors.New("mfa: code length must be between 4 and 32")
	}
	if cfg.CodeTTL <= 0 {
		return nil, errors.New("mfa: code ttl must be > 0")
	}
	if cfg.MaxIncorrectAttempts <= 0 {
		return nil, errors.New("mfa: max incorrect attempts must be > 0")
	}
	if cfg.LockoutDuration <= 0 {
		return nil, errors.New("mfa: lockout duration must be > 0")
	}
	if cfg.MaxResends < 0 {
		return nil, errors.New("mfa: max resends must be >= 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, notifier: notifier, logger: logger}, nil
}

// State reports the challenge state of userID as seen by tx.
func (s *Service) State(ctx context.Context, tx store.Tx, userID string) (State, error) {
	a, err := tx.MFAAttempt(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, err
	}
	if s.cfg.Now().After(a.ExpiresAt) {
		return StateExpired, nil
	}
	return StatePending, nil
}

// Generate creates a challenge for user, commits tx and dispatches the code.
// An expired challenge is replaced. An unexpired one yields
// ErrChallengePending with tx still open.
func (s *Service) Generate(ctx context.Context, tx store.Tx, user *store.User) error {
	now := s.cfg.Now()

	existing, err := tx.MFAAttemptForUpdate(ctx, user.ID)
	switch {
	case err == nil:
		if !now.After(existing.ExpiresAt) {
			return ErrChallengePending
		}
		if err := tx.DeleteMFAAttempt(ctx, user.ID); err != nil {
			return fmt.Errorf("clear expired challenge: %w", err)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("load challenge: %w", err)
	}

	code, err := internal.NewAlphanumericCode(s.cfg.CodeLength)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	attempt := &store.MFAAttempt{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}
	if err := tx.CreateMFAAttempt(ctx, attempt); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrConcurrentChallenge
		}
		return fmt.Errorf("create challenge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrConcurrentChallenge
		}
		return fmt.Errorf("commit challenge: %w", err)
	}

	s.dispatch(ctx, user, code)
	return nil
}

// Resend re-dispatches the pending code of user and counts the resend. An
// expired challenge is replaced by a fresh one as in Generate.
func (s *Service) Resend(ctx context.Context, tx store.Tx, user *store.User) error {
	attempt, err := tx.MFAAttemptForUpdate(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoChallengePending
	}
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}
	if s.cfg.Now().After(attempt.ExpiresAt) {
		return s.Generate(ctx, tx, user)
	}
	if attempt.ResendCount >= s.cfg.MaxResends {
		return ErrResendLimit
	}

	attempt.ResendCount++
	if err := tx.UpdateMFAAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit challenge: %w", err)
	}

	s.dispatch(ctx, user, attempt.Code)
	return nil
}

// Verify checks code against the pending challenge of user.
//
// Expiry is evaluated before the code, so an expired but correct code is
// ErrCodeExpired and does not count as a wrong attempt. On success the
// challenge is deleted in tx and tx is left open for the caller to commit.
// On ErrLockedOut, user has been updated in place with the block.
func (s *Service) Verify(ctx context.Context, tx store.Tx, user *store.User, code string) error {
	attempt, err := tx.MFAAttemptForUpdate(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoChallengePending
	}
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}

	now := s.cfg.Now()
	if now.After(attempt.ExpiresAt) {
		if err := tx.DeleteMFAAttempt(ctx, user.ID); err != nil {
			return fmt.Errorf("clear expired challenge: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit expired challenge: %w", err)
		}
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(attempt.Code), []byte(code)) == 1 {
		if err := tx.DeleteMFAAttempt(ctx, user.ID); err != nil {
			return fmt.Errorf("clear challenge: %w", err)
		}
		return nil
	}

	attempt.IncorrectAttempts++
	if attempt.IncorrectAttempts >= s.cfg.MaxIncorrectAttempts {
		until := now.Add(s.cfg.LockoutDuration)
		user.IsBlocked = true
		user.BlockedUntil = &until
		if err := tx.UpdateUser(ctx, user); err != nil {
			return fmt.Errorf("block user: %w", err)
		}
		if err := tx.DeleteMFAAttempt(ctx, user.ID); err != nil {
			return fmt.Errorf("clear challenge: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit lockout: %w", err)
		}
		s.logger.Warn("mfa lockout", zap.String("user_id", user.ID), zap.Time("blocked_until", until))
		return ErrLockedOut
	}

	if err := tx.UpdateMFAAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("record invalid code: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit invalid code: %w", err)
	}
	return ErrInvalidCode
}

// LockoutDuration returns the configured lockout duration.
func (s *Service) LockoutDuration() time.Duration {
	return s.cfg.LockoutDuration
}

func (s *Service) dispatch(ctx context.Context, user *store.User, code string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyCode(ctx, user, code, s.cfg.CodeTTL); err != nil {
		s.logger.Error("mfa code notification failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
