package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id::text, email, password, full_name, assigned_roles, is_active, is_mfa_enabled,
		email_verified, is_blocked, blocked_until, last_login, created_at, updated_at`

// forUpdate is appended to a single-row SELECT to hold the row lock until
// commit or rollback.
const forUpdate = `
		FOR UPDATE`

type tx struct {
	tx   pgx.Tx
	done bool
}

func scanUser(row pgx.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Roles, &u.IsActive, &u.MFAEnabled,
		&u.EmailVerified, &u.IsBlocked, &u.BlockedUntil, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func roles(u *store.User) []string {
	if u.Roles == nil {
		return []string{}
	}
	return u.Roles
}

func (t *tx) UserByEmail(ctx context.Context, email string) (*store.User, error) {
	return t.userByEmail(ctx, email, "")
}

func (t *tx) UserByEmailForUpdate(ctx context.Context, email string) (*store.User, error) {
	return t.userByEmail(ctx, email, forUpdate)
}

func (t *tx) userByEmail(ctx context.Context, email, lock string) (*store.User, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	row := t.tx.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users_user
		WHERE email = $1
		LIMIT 1`+lock, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (t *tx) UserByID(ctx context.Context, id string) (*store.User, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("get user by id: %w", store.ErrNotFound)
	}
	row := t.tx.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users_user
		WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (t *tx) CreateUser(ctx context.Context, u *store.User) error {
	if t.done {
		return store.ErrTxDone
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	row := t.tx.QueryRow(ctx, `
		INSERT INTO users_user (
			id, email, password, full_name, assigned_roles, is_active, is_mfa_enabled,
			email_verified, is_blocked, blocked_until, last_login
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.FullName, roles(u), u.IsActive, u.MFAEnabled,
		u.EmailVerified, u.IsBlocked, u.BlockedUntil, u.LastLogin)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	return nil
}

func (t *tx) UpdateUser(ctx context.Context, u *store.User) error {
	if t.done {
		return store.ErrTxDone
	}
	row := t.tx.QueryRow(ctx, `
		UPDATE users_user SET
			email = $2,
			password = $3,
			full_name = $4,
			assigned_roles = $5,
			is_active = $6,
			is_mfa_enabled = $7,
			email_verified = $8,
			is_blocked = $9,
			blocked_until = $10,
			last_login = $11,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Email, u.PasswordHash, u.FullName, roles(u), u.IsActive, u.MFAEnabled,
		u.EmailVerified, u.IsBlocked, u.BlockedUntil, u.LastLogin)
	if err := row.Scan(&u.UpdatedAt); err != nil {
		return fmt.Errorf("update user: %w", mapError(err))
	}
	return nil
}

func (t *tx) MFAAttempt(ctx context.Context, userID string) (*store.MFAAttempt, error) {
	return t.mfaAttempt(ctx, userID, "")
}

func (t *tx) MFAAttemptForUpdate(ctx context.Context, userID string) (*store.MFAAttempt, error) {
	return t.mfaAttempt(ctx, userID, forUpdate)
}

func (t *tx) mfaAttempt(ctx context.Context, userID, lock string) (*store.MFAAttempt, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	var a store.MFAAttempt
	err := t.tx.QueryRow(ctx, `
		SELECT user_id::text, code, code_expires_at, incorrect_attempts_count, resend_count
		FROM users_mfa_attempt
		WHERE user_id = $1`+lock, userID).
		Scan(&a.UserID, &a.Code, &a.ExpiresAt, &a.IncorrectAttempts, &a.ResendCount)
	if err != nil {
		return nil, fmt.Errorf("get mfa attempt: %w", mapError(err))
	}
	return &a, nil
}

func (t *tx) CreateMFAAttempt(ctx context.Context, a *store.MFAAttempt) error {
	if t.done {
		return store.ErrTxDone
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users_mfa_attempt (user_id, code, code_expires_at, incorrect_attempts_count, resend_count)
		VALUES ($1, $2, $3, $4, $5)`,
		a.UserID, a.Code, a.ExpiresAt, a.IncorrectAttempts, a.ResendCount)
	if err != nil {
		return fmt.Errorf("create mfa attempt: %w", mapError(err))
	}
	return nil
}

func (t *tx) UpdateMFAAttempt(ctx context.Context, a *store.MFAAttempt) error {
	if t.done {
		return store.ErrTxDone
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE users_mfa_attempt SET
			code = $2,
			code_expires_at = $3,
			incorrect_attempts_count = $4,
			resend_count = $5
		WHERE user_id = $1`,
		a.UserID, a.Code, a.ExpiresAt, a.IncorrectAttempts, a.ResendCount)
	if err != nil {
		return fmt.Errorf("update mfa attempt: %w", mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update mfa attempt: %w", store.ErrNotFound)
	}
	return nil
}

func (t *tx) DeleteMFAAttempt(ctx context.Context, userID string) error {
	if t.done {
		return store.ErrTxDone
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM users_mfa_attempt WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete mfa attempt: %w", mapError(err))
	}
	return nil
}

func (t *tx) InsertRevocation(ctx context.Context, r store.Revocation) error {
	if t.done {
		return store.ErrTxDone
	}
	if r.RevokedAt.IsZero() {
		r.RevokedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO users_blacklisted_token (token, token_type, blacklisted_on, created_by_id)
		VALUES ($1, $2, $3, $4)`,
		r.TokenDigest, r.Kind, r.RevokedAt, r.RevokedBy)
	if err != nil {
		return fmt.Errorf("insert revocation: %w", mapError(err))
	}
	return nil
}

func (t *tx) RevocationExists(ctx context.Context, kind, digest string) (bool, error) {
	if t.done {
		return false, store.ErrTxDone
	}
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM users_blacklisted_token WHERE token_type = $1 AND token = $2
		)`, kind, digest).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", mapError(err))
	}
	return exists, nil
}

func (t *tx) RevocationsSince(ctx context.Context, kind string, since time.Time, fn func(store.Revocation) error) error {
	if t.done {
		return store.ErrTxDone
	}
	rows, err := t.tx.Query(ctx, `
		SELECT token, token_type, blacklisted_on, created_by_id::text
		FROM users_blacklisted_token
		WHERE token_type = $1 AND blacklisted_on > $2
		ORDER BY blacklisted_on`, kind, since)
	if err != nil {
		return fmt.Errorf("list revocations: %w", mapError(err))
	}
	defer rows.Close()

	for rows.Next() {
		var r store.Revocation
		if err := rows.Scan(&r.TokenDigest, &r.Kind, &r.RevokedAt, &r.RevokedBy); err != nil {
			return fmt.Errorf("scan revocation: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list revocations: %w", mapError(err))
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapError(err))
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
