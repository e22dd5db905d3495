package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore/notification"
)

func TestInitResetPasswordSameNoticeForUnknownEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "known@example.com", false)
	ctx := context.Background()

	unknown, err := env.engine.InitResetPassword(ctx, "unknown@example.com")
	if err != nil {
		t.Fatalf("init unknown: %v", err)
	}
	known, err := env.engine.InitResetPassword(ctx, "Known@Example.com")
	if err != nil {
		t.Fatalf("init known: %v", err)
	}
	if *unknown != *known || known.Message != MessageResetInitiated {
		t.Fatalf("notices differ: %+v vs %+v", unknown, known)
	}

	msg := env.outbox.next(t)
	if msg.Kind != notification.KindResetPassword || msg.To[0] != "known@example.com" {
		t.Fatalf("unexpected notification %+v", msg)
	}
	if msg.Subject != "Reset password instructions" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "http://localhost:8000/api/v1/auth/set-password/?token=") {
		t.Fatalf("expected reset link in email, got %s", msg.HTML)
	}
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "single@example.com", false)
	ctx := context.Background()

	token, err := env.engine.issueResetToken("single@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	notice, err := env.engine.ResetPassword(ctx, token, "single@example.com", "brand-new-password-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if notice.Message != MessagePasswordReset {
		t.Fatalf("unexpected notice %q", notice.Message)
	}

	if _, err := env.engine.Login(ctx, "single@example.com", "brand-new-password-1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := env.engine.Login(ctx, "single@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}

	_, err = env.engine.ResetPassword(ctx, token, "single@example.com", "another-password-22")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired on reuse, got %v", err)
	}
	if !strings.Contains(err.Error(), "already been used") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestResetPasswordSingleUseSurvivesCacheLoss(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "flushed@example.com", false)
	ctx := context.Background()

	token, err := env.engine.issueResetToken("flushed@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := env.engine.ResetPassword(ctx, token, "flushed@example.com", "brand-new-password-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	env.redis.FlushAll()

	if _, err := env.engine.ResetPassword(ctx, token, "flushed@example.com", "another-password-22"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired with a cold cache, got %v", err)
	}
	if env.counter(MetricPasswordResetTokenReused) != 1 {
		t.Fatal("expected reuse metric")
	}
}

func TestResetPasswordRejects(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createUser(t, "owner@example.com", false)
	ctx := context.Background()

	token, err := env.engine.issueResetToken("owner@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := env.engine.ResetPassword(ctx, token, "someone@example.com", "brand-new-password-1"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken for email mismatch, got %v", err)
	}
	if _, err := env.engine.ResetPassword(ctx, token, "owner@example.com", "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := env.engine.ResetPassword(ctx, "garbage", "owner@example.com", "brand-new-password-1"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}

	ghost, err := env.engine.issueResetToken("ghost@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := env.engine.ResetPassword(ctx, ghost, "ghost@example.com", "brand-new-password-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if _, err := env.engine.ResetPassword(ctx, token, "owner@example.com", "brand-new-password-1"); err != nil {
		t.Fatalf("failed attempts must not consume the token: %v", err)
	}
}
