package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "7b0c5f4e-1a2b-4c3d-9e8f-0a1b2c3d4e5f"

var userCols = []string{
	"id", "email", "password", "full_name", "assigned_roles", "is_active", "is_mfa_enabled",
	"email_verified", "is_blocked", "blocked_until", "last_login", "created_at", "updated_at",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, postgres.New(mock)
}

func TestUserByEmail(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()
	now := time.Now()
	until := now.Add(10 * time.Minute)

	t.Run("success", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM users_user").
			WithArgs("alice@example.com").
			WillReturnRows(pgxmock.NewRows(userCols).AddRow(
				userID, "alice@example.com", "hash", "Alice", []string{"admin"}, true, true,
				false, true, &until, (*time.Time)(nil), now, now,
			))
		mock.ExpectRollback()

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		u, err := tx.UserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NoError(t, tx.Rollback(ctx))

		assert.Equal(t, userID, u.ID)
		assert.Equal(t, []string{"admin"}, u.Roles)
		assert.True(t, u.IsBlocked)
		require.NotNil(t, u.BlockedUntil)
		assert.True(t, u.BlockedUntil.Equal(until))
		assert.Nil(t, u.LastLogin)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM users_user").
			WithArgs("nobody@example.com").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.UserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, store.ErrNotFound)
		require.NoError(t, tx.Rollback(ctx))
	})

	t.Run("database error is not masked", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("FROM users_user").
			WithArgs("alice@example.com").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.UserByEmail(ctx, "alice@example.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, store.ErrNotFound)
		require.NoError(t, tx.Rollback(ctx))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByIDRejectsMalformedID(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.UserByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users_user").
		WithArgs(pgxmock.AnyArg(), "dup@example.com", "hash", "", []string{}, true, true,
			false, false, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_user_email_key"})
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.CreateUser(ctx, &store.User{Email: "dup@example.com", PasswordHash: "hash", IsActive: true, MFAEnabled: true})
	assert.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMFAAttemptLifecycle(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()
	expires := time.Now().Add(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users_mfa_attempt").
		WithArgs(userID, "AB12CD", expires, 0, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM users_mfa_attempt").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "code", "code_expires_at", "incorrect_attempts_count", "resend_count"}).
			AddRow(userID, "AB12CD", expires, 0, 0))
	mock.ExpectExec("UPDATE users_mfa_attempt").
		WithArgs(userID, "AB12CD", expires, 1, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("DELETE FROM users_mfa_attempt").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	require.NoError(t, tx.CreateMFAAttempt(ctx, &store.MFAAttempt{UserID: userID, Code: "AB12CD", ExpiresAt: expires}))
	a, err := tx.MFAAttempt(ctx, userID)
	require.NoError(t, err)
	a.IncorrectAttempts++
	require.NoError(t, tx.UpdateMFAAttempt(ctx, a))
	require.NoError(t, tx.DeleteMFAAttempt(ctx, userID))
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMFAAttemptMissing(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users_mfa_attempt").
		WithArgs(userID, "X", pgxmock.AnyArg(), 2, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.UpdateMFAAttempt(ctx, &store.MFAAttempt{UserID: userID, Code: "X", IncorrectAttempts: 2})
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMFAAttemptConflict(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users_mfa_attempt").
		WithArgs(userID, "AB12CD", pgxmock.AnyArg(), 0, 0).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_mfa_attempt_user_id_key"})
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.CreateMFAAttempt(ctx, &store.MFAAttempt{UserID: userID, Code: "AB12CD", ExpiresAt: time.Now()})
	assert.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRevocations(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()
	revokedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	since := revokedAt.Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users_blacklisted_token").
		WithArgs("digest-1", "refresh", revokedAt, userID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("refresh", "digest-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM users_blacklisted_token").
		WithArgs("refresh", since).
		WillReturnRows(pgxmock.NewRows([]string{"token", "token_type", "blacklisted_on", "created_by_id"}).
			AddRow("digest-1", "refresh", revokedAt, userID).
			AddRow("digest-2", "refresh", revokedAt.Add(time.Minute), userID))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	require.NoError(t, tx.InsertRevocation(ctx, store.Revocation{
		TokenDigest: "digest-1", Kind: "refresh", RevokedAt: revokedAt, RevokedBy: userID,
	}))
	exists, err := tx.RevocationExists(ctx, "refresh", "digest-1")
	require.NoError(t, err)
	assert.True(t, exists)

	var digests []string
	err = tx.RevocationsSince(ctx, "refresh", since, func(r store.Revocation) error {
		digests = append(digests, r.TokenDigest)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"digest-1", "digest-2"}, digests)
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForUpdateReadsLockRows(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()
	now := time.Now()
	expires := now.Add(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM users_user.+FOR UPDATE").
		WithArgs("alice@example.com").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(
			userID, "alice@example.com", "hash", "Alice", []string{}, true, true,
			false, false, (*time.Time)(nil), (*time.Time)(nil), now, now,
		))
	mock.ExpectQuery("FROM users_mfa_attempt.+FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "code", "code_expires_at", "incorrect_attempts_count", "resend_count"}).
			AddRow(userID, "AB12CD", expires, 3, 1))
	mock.ExpectQuery("FROM users_mfa_attempt.+FOR UPDATE").
		WithArgs(userID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	u, err := tx.UserByEmailForUpdate(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)

	a, err := tx.MFAAttemptForUpdate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, a.IncorrectAttempts)
	assert.Equal(t, 1, a.ResendCount)

	_, err = tx.MFAAttemptForUpdate(ctx, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRevocationDuplicate(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()
	revokedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users_blacklisted_token").
		WithArgs("digest-1", "reset_password", revokedAt, userID).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_blacklisted_token_unique_idx"})
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.InsertRevocation(ctx, store.Revocation{
		TokenDigest: "digest-1", Kind: "reset_password", RevokedAt: revokedAt, RevokedBy: userID,
	})
	assert.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	mock, s := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), store.ErrTxDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	mock, s := newMock(t)

	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS users_user.+CREATE UNIQUE INDEX IF NOT EXISTS users_blacklisted_token_unique_idx\s+ON users_blacklisted_token \(token_type, token\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
