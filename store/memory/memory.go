// Package memory is an in-process implementation of store.Store.
//
// Transactions are serialized: Begin blocks until the previous transaction
// has committed or rolled back. Writes are buffered in the transaction and
// applied atomically on Commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/store"
	"github.com/google/uuid"
)

// Store is a mutex-guarded store.Store.
type Store struct {
	txLock sync.Mutex

	mu          sync.RWMutex
	users       map[string]*store.User
	emails      map[string]string
	attempts    map[string]*store.MFAAttempt
	revocations []store.Revocation

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]*store.User),
		emails:   make(map[string]string),
		attempts: make(map[string]*store.MFAAttempt),
		now:      time.Now,
	}
}

// SetClock overrides the clock used for created/updated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Begin starts a serialized transaction.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	s.txLock.Lock()
	if err := ctx.Err(); err != nil {
		s.txLock.Unlock()
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t := &tx{
		s:        s,
		users:    make(map[string]*store.User, len(s.users)),
		emails:   make(map[string]string, len(s.emails)),
		attempts: make(map[string]*store.MFAAttempt, len(s.attempts)),
	}
	for id, u := range s.users {
		t.users[id] = u.Clone()
	}
	for email, id := range s.emails {
		t.emails[email] = id
	}
	for id, a := range s.attempts {
		cp := *a
		t.attempts[id] = &cp
	}
	return t, nil
}

// User returns a copy of the stored user, for assertions in tests.
func (s *Store) User(id string) (*store.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u.Clone(), ok
}

// Attempt returns a copy of the stored MFA attempt of userID.
func (s *Store) Attempt(userID string) (*store.MFAAttempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[userID]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// Revocations returns a copy of the revocation log.
func (s *Store) Revocations() []store.Revocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.Revocation(nil), s.revocations...)
}

type tx struct {
	s    *Store
	done bool

	users    map[string]*store.User
	emails   map[string]string
	attempts map[string]*store.MFAAttempt
	pending  []store.Revocation
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserByEmailForUpdate is UserByEmail; transactions are already serialized.
func (t *tx) UserByEmailForUpdate(ctx context.Context, email string) (*store.User, error) {
	return t.UserByEmail(ctx, email)
}

func (t *tx) UserByEmail(_ context.Context, email string) (*store.User, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	id, ok := t.emails[normalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t.users[id].Clone(), nil
}

func (t *tx) UserByID(_ context.Context, id string) (*store.User, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	u, ok := t.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

func (t *tx) CreateUser(_ context.Context, u *store.User) error {
	if t.done {
		return store.ErrTxDone
	}
	email := normalizeEmail(u.Email)
	if _, exists := t.emails[email]; exists {
		return store.ErrConflict
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := t.users[u.ID]; exists {
		return store.ErrConflict
	}
	now := t.s.now()
	u.Email = email
	u.CreatedAt = now
	u.UpdatedAt = now
	t.users[u.ID] = u.Clone()
	t.emails[email] = u.ID
	return nil
}

func (t *tx) UpdateUser(_ context.Context, u *store.User) error {
	if t.done {
		return store.ErrTxDone
	}
	current, ok := t.users[u.ID]
	if !ok {
		return store.ErrNotFound
	}
	email := normalizeEmail(u.Email)
	if email != current.Email {
		if _, taken := t.emails[email]; taken {
			return store.ErrConflict
		}
		delete(t.emails, current.Email)
		t.emails[email] = u.ID
	}
	u.Email = email
	u.UpdatedAt = t.s.now()
	t.users[u.ID] = u.Clone()
	return nil
}

// MFAAttemptForUpdate is MFAAttempt; transactions are already serialized.
func (t *tx) MFAAttemptForUpdate(ctx context.Context, userID string) (*store.MFAAttempt, error) {
	return t.MFAAttempt(ctx, userID)
}

func (t *tx) MFAAttempt(_ context.Context, userID string) (*store.MFAAttempt, error) {
	if t.done {
		return nil, store.ErrTxDone
	}
	a, ok := t.attempts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *tx) CreateMFAAttempt(_ context.Context, a *store.MFAAttempt) error {
	if t.done {
		return store.ErrTxDone
	}
	if _, ok := t.users[a.UserID]; !ok {
		return store.ErrNotFound
	}
	if _, exists := t.attempts[a.UserID]; exists {
		return store.ErrConflict
	}
	cp := *a
	t.attempts[a.UserID] = &cp
	return nil
}

func (t *tx) UpdateMFAAttempt(_ context.Context, a *store.MFAAttempt) error {
	if t.done {
		return store.ErrTxDone
	}
	if _, ok := t.attempts[a.UserID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	t.attempts[a.UserID] = &cp
	return nil
}

func (t *tx) DeleteMFAAttempt(_ context.Context, userID string) error {
	if t.done {
		return store.ErrTxDone
	}
	delete(t.attempts, userID)
	return nil
}

func (t *tx) InsertRevocation(ctx context.Context, r store.Revocation) error {
	if t.done {
		return store.ErrTxDone
	}
	exists, err := t.RevocationExists(ctx, r.Kind, r.TokenDigest)
	if err != nil {
		return err
	}
	if exists {
		return store.ErrConflict
	}
	t.pending = append(t.pending, r)
	return nil
}

func (t *tx) RevocationExists(_ context.Context, kind, digest string) (bool, error) {
	if t.done {
		return false, store.ErrTxDone
	}
	for _, r := range t.pending {
		if r.Kind == kind && r.TokenDigest == digest {
			return true, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, r := range t.s.revocations {
		if r.Kind == kind && r.TokenDigest == digest {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) RevocationsSince(_ context.Context, kind string, since time.Time, fn func(store.Revocation) error) error {
	if t.done {
		return store.ErrTxDone
	}
	t.s.mu.RLock()
	matched := make([]store.Revocation, 0)
	for _, r := range t.s.revocations {
		if r.Kind == kind && r.RevokedAt.After(since) {
			matched = append(matched, r)
		}
	}
	t.s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RevokedAt.Before(matched[j].RevokedAt)
	})
	for _, r := range matched {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		t.finish()
		return err
	}

	t.s.mu.Lock()
	t.s.users = t.users
	t.s.emails = t.emails
	t.s.attempts = t.attempts
	t.s.revocations = append(t.s.revocations, t.pending...)
	t.s.mu.Unlock()

	t.finish()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.s.txLock.Unlock()
}
