package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memory"
)

var (
	errNotReady     = errors.New("not ready")
	errCredentials  = errors.New("invalid credentials")
	errInactive     = errors.New("inactive or blocked")
	errBadToken     = errors.New("invalid or expired token")
	errNotGenerated = errors.New("token not generated")
	errExpired      = errors.New("token expired")
	errResetUsed    = errors.New("reset token used")
	errInvalidCode  = errors.New("invalid token")
	errNoUser       = errors.New("user not found")
	errResendLimit  = errors.New("resend limit")
	errExists       = errors.New("account exists")
	errInvalid      = errors.New("account invalid")
)

func testErrors() Errors {
	return Errors{
		EngineNotReady:        errNotReady,
		InvalidCredentials:    errCredentials,
		UserInactiveOrBlocked: errInactive,
		InvalidOrExpiredToken: errBadToken,
		TokenNotGenerated:     errNotGenerated,
		TokenExpired:          errExpired,
		ResetTokenUsed:        errResetUsed,
		InvalidToken:          errInvalidCode,
		UserNotFound:          errNoUser,
		ChallengeResendLimit:  errResendLimit,
		AccountExists:         errExists,
		AccountInvalid:        errInvalid,
		Lockout: func(d time.Duration) error {
			return fmt.Errorf("blocked for %s", d)
		},
	}
}

const (
	metricResetSuccess = iota + 1
	metricResetFailure
	metricResetReused
	metricLogout
	metricMFARequired
	metricMFAResent
)

type metricCounter struct {
	mu sync.Mutex
	n  map[int]int
}

func (c *metricCounter) inc(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == nil {
		c.n = make(map[int]int)
	}
	c.n[id]++
}

func (c *metricCounter) get(id int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n[id]
}

// rcStore behaves like a read-committed database: reads see only committed
// rows, writes are applied at commit, ForUpdate reads hold a per-row lock
// until the transaction ends and revocations are unique per kind and digest.
type rcStore struct {
	mu          sync.Mutex
	users       map[string]*store.User
	revocations map[string]store.Revocation
	rows        map[string]*sync.Mutex
}

func newRCStore(users ...*store.User) *rcStore {
	s := &rcStore{
		users:       make(map[string]*store.User),
		revocations: make(map[string]store.Revocation),
		rows:        make(map[string]*sync.Mutex),
	}
	for _, u := range users {
		s.users[u.Email] = u.Clone()
	}
	return s
}

func (s *rcStore) Begin(context.Context) (store.Tx, error) {
	return &rcTx{s: s}, nil
}

func (s *rcStore) row(email string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[email]
	if !ok {
		m = &sync.Mutex{}
		s.rows[email] = m
	}
	return m
}

func (s *rcStore) user(email string) *store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[email].Clone()
}

func (s *rcStore) revocationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revocations)
}

type rcTx struct {
	store.Tx

	s      *rcStore
	done   bool
	locked []*sync.Mutex

	users       []*store.User
	revocations []store.Revocation
}

func (t *rcTx) UserByEmail(_ context.Context, email string) (*store.User, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

func (t *rcTx) UserByEmailForUpdate(ctx context.Context, email string) (*store.User, error) {
	m := t.s.row(email)
	m.Lock()
	t.locked = append(t.locked, m)
	return t.UserByEmail(ctx, email)
}

func (t *rcTx) UpdateUser(_ context.Context, u *store.User) error {
	t.users = append(t.users, u.Clone())
	return nil
}

func (t *rcTx) InsertRevocation(_ context.Context, r store.Revocation) error {
	t.revocations = append(t.revocations, r)
	return nil
}

func (t *rcTx) RevocationExists(_ context.Context, kind, digest string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.revocations[kind+"/"+digest]
	return ok, nil
}

func (t *rcTx) Commit(context.Context) error {
	defer t.release()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, r := range t.revocations {
		if _, ok := t.s.revocations[r.Kind+"/"+r.TokenDigest]; ok {
			return fmt.Errorf("insert revocation: %w", store.ErrConflict)
		}
	}
	for _, r := range t.revocations {
		t.s.revocations[r.Kind+"/"+r.TokenDigest] = r
	}
	for _, u := range t.users {
		t.s.users[u.Email] = u
	}
	return nil
}

func (t *rcTx) Rollback(context.Context) error {
	t.release()
	return nil
}

func (t *rcTx) release() {
	if t.done {
		return
	}
	t.done = true
	for _, m := range t.locked {
		m.Unlock()
	}
}

func resetDeps(begin func(context.Context) (store.Tx, error), metrics *metricCounter) PasswordResetDeps {
	return PasswordResetDeps{
		Begin: begin,
		VerifyReset: func(string) (jwt.Claims, error) {
			return jwt.Claims{jwt.ClaimEmail: "reset@example.com"}, nil
		},
		IsRevokedAuthoritative: func(ctx context.Context, tx store.Tx, token string) (bool, error) {
			return tx.RevocationExists(ctx, string(jwt.KindResetPassword), token)
		},
		Revoke: func(ctx context.Context, tx store.Tx, token, by string) error {
			return tx.InsertRevocation(ctx, store.Revocation{
				TokenDigest: token,
				Kind:        string(jwt.KindResetPassword),
				RevokedBy:   by,
			})
		},
		Publish:      func(context.Context, string) {},
		HashPassword: func(p string) (string, error) { return "hash:" + p, nil },
		MetricInc:    metrics.inc,
		Metrics: PasswordResetMetrics{
			PasswordResetConfirmSuccess: metricResetSuccess,
			PasswordResetConfirmFailure: metricResetFailure,
			PasswordResetTokenReused:    metricResetReused,
		},
		Errors: testErrors(),
	}
}

func TestResetPasswordConcurrentUseSucceedsOnce(t *testing.T) {
	db := newRCStore(&store.User{ID: "u1", Email: "reset@example.com", PasswordHash: "hash:old", IsActive: true})
	metrics := &metricCounter{}
	deps := resetDeps(db.Begin, metrics)

	var published atomic.Int32
	deps.Publish = func(context.Context, string) { published.Add(1) }

	// Both callers meet here if nothing serializes them; otherwise the first
	// gives up waiting and the second arrives after the first committed.
	var arrived atomic.Int32
	both := make(chan struct{})
	var seenMu sync.Mutex
	var seen []bool
	check := deps.IsRevokedAuthoritative
	deps.IsRevokedAuthoritative = func(ctx context.Context, tx store.Tx, token string) (bool, error) {
		if arrived.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
		case <-time.After(100 * time.Millisecond):
		}
		used, err := check(ctx, tx, token)
		seenMu.Lock()
		seen = append(seen, used)
		seenMu.Unlock()
		return used, err
	}

	passwords := []string{"first-new-password", "second-new-password"}
	results := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i, pw := range passwords {
		wg.Add(1)
		go func(i int, pw string) {
			defer wg.Done()
			results[i] = RunResetPassword(context.Background(), "reset-token", "reset@example.com", pw, deps)
		}(i, pw)
	}
	wg.Wait()

	winner := -1
	for i, err := range results {
		switch {
		case err == nil:
			if winner != -1 {
				t.Fatal("expected a single successful reset")
			}
			winner = i
		case errors.Is(err, errResetUsed):
		default:
			t.Fatalf("unexpected reset error %v", err)
		}
	}
	if winner == -1 {
		t.Fatalf("expected one successful reset, got %v", results)
	}
	if n := db.revocationCount(); n != 1 {
		t.Fatalf("expected one revocation record, got %d", n)
	}
	if got := db.user("reset@example.com").PasswordHash; got != "hash:"+passwords[winner] {
		t.Fatalf("expected the winner's password, got %q", got)
	}
	if len(seen) != 2 || seen[0] || !seen[1] {
		t.Fatalf("expected the second check to observe the first commit, got %v", seen)
	}
	if published.Load() != 1 {
		t.Fatalf("expected one publish, got %d", published.Load())
	}
	if metrics.get(metricResetSuccess) != 1 || metrics.get(metricResetReused) != 1 {
		t.Fatalf("unexpected reset counters %v", metrics.n)
	}
}

func TestResetPasswordUniqueRecordRejectsLateWriter(t *testing.T) {
	db := newRCStore(&store.User{ID: "u1", Email: "reset@example.com", PasswordHash: "hash:old", IsActive: true})
	metrics := &metricCounter{}
	deps := resetDeps(db.Begin, metrics)

	// The single-use check misses, as it would for a writer that read before
	// the other transaction committed; the commit must still refuse it.
	deps.IsRevokedAuthoritative = func(context.Context, store.Tx, string) (bool, error) {
		return false, nil
	}
	var published atomic.Int32
	deps.Publish = func(context.Context, string) { published.Add(1) }

	ctx := context.Background()
	if err := RunResetPassword(ctx, "reset-token", "reset@example.com", "first-new-password", deps); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	if err := RunResetPassword(ctx, "reset-token", "reset@example.com", "second-new-password", deps); !errors.Is(err, errResetUsed) {
		t.Fatalf("expected reset token used, got %v", err)
	}

	if got := db.user("reset@example.com").PasswordHash; got != "hash:first-new-password" {
		t.Fatalf("expected first password kept, got %q", got)
	}
	if n := db.revocationCount(); n != 1 {
		t.Fatalf("expected one revocation record, got %d", n)
	}
	if published.Load() != 1 || metrics.get(metricResetReused) != 1 {
		t.Fatalf("expected one publish and one reuse, got %d and %d", published.Load(), metrics.get(metricResetReused))
	}
}

func seedUser(t *testing.T, s *memory.Store, u *store.User) *store.User {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return u
}

func seedRevocation(t *testing.T, s *memory.Store, kind jwt.Kind, token string) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.InsertRevocation(ctx, store.Revocation{TokenDigest: token, Kind: string(kind)}); err != nil {
		t.Fatalf("insert revocation: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestResetPasswordRecordedTokenIsUsed(t *testing.T) {
	s := memory.New()
	u := seedUser(t, s, &store.User{Email: "reset@example.com", PasswordHash: "hash:old", IsActive: true})
	seedRevocation(t, s, jwt.KindResetPassword, "reset-token")

	metrics := &metricCounter{}
	deps := resetDeps(s.Begin, metrics)
	deps.IsRevokedAuthoritative = func(context.Context, store.Tx, string) (bool, error) {
		return false, nil
	}
	deps.Publish = func(context.Context, string) {
		t.Fatal("publish must not run for a used token")
	}

	err := RunResetPassword(context.Background(), "reset-token", "reset@example.com", "new-password", deps)
	if !errors.Is(err, errResetUsed) {
		t.Fatalf("expected reset token used, got %v", err)
	}
	if got, _ := s.User(u.ID); got.PasswordHash != "hash:old" {
		t.Fatalf("expected password unchanged, got %q", got.PasswordHash)
	}
	if n := len(s.Revocations()); n != 1 {
		t.Fatalf("expected one revocation record, got %d", n)
	}
}

type failingCommitTx struct {
	store.Tx
}

func (t failingCommitTx) Commit(ctx context.Context) error {
	_ = t.Tx.Rollback(ctx)
	return errors.New("connection reset")
}

func TestResetPasswordCommitFailureDoesNotPublish(t *testing.T) {
	s := memory.New()
	u := seedUser(t, s, &store.User{Email: "reset@example.com", PasswordHash: "hash:old", IsActive: true})

	metrics := &metricCounter{}
	deps := resetDeps(func(ctx context.Context) (store.Tx, error) {
		tx, err := s.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return failingCommitTx{tx}, nil
	}, metrics)
	deps.Publish = func(context.Context, string) {
		t.Fatal("publish must not run when the commit fails")
	}

	err := RunResetPassword(context.Background(), "reset-token", "reset@example.com", "new-password", deps)
	if err == nil || errors.Is(err, errResetUsed) {
		t.Fatalf("expected commit failure, got %v", err)
	}
	if got, _ := s.User(u.ID); got.PasswordHash != "hash:old" {
		t.Fatalf("expected password unchanged, got %q", got.PasswordHash)
	}
	if n := len(s.Revocations()); n != 0 {
		t.Fatalf("expected no revocation record, got %d", n)
	}
	if metrics.get(metricResetSuccess) != 0 {
		t.Fatal("expected no success count")
	}
}

func TestLogoutAlreadyRecordedSucceeds(t *testing.T) {
	s := memory.New()
	seedRevocation(t, s, jwt.KindRefresh, "refresh-token")

	metrics := &metricCounter{}
	deps := LogoutDeps{
		Begin: s.Begin,
		VerifyRefresh: func(string) (jwt.Claims, error) {
			return jwt.Claims{jwt.ClaimUserID: "u1"}, nil
		},
		IsRevoked: func(context.Context, string) (bool, error) { return false, nil },
		Revoke: func(ctx context.Context, tx store.Tx, token, by string) error {
			return tx.InsertRevocation(ctx, store.Revocation{TokenDigest: token, Kind: string(jwt.KindRefresh), RevokedBy: by})
		},
		Publish: func(context.Context, string) {
			t.Fatal("publish must not run for a recorded token")
		},
		MetricInc: metrics.inc,
		Metrics:   LogoutMetrics{Logout: metricLogout},
		Errors:    testErrors(),
	}

	if err := RunLogout(context.Background(), "refresh-token", "u1", deps); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if n := len(s.Revocations()); n != 1 {
		t.Fatalf("expected one revocation record, got %d", n)
	}
	if metrics.get(metricLogout) != 0 {
		t.Fatal("expected no logout count for a recorded token")
	}
}

func TestLogoutRequiresPublish(t *testing.T) {
	deps := LogoutDeps{
		Begin:         memory.New().Begin,
		VerifyRefresh: func(string) (jwt.Claims, error) { return jwt.Claims{}, nil },
		IsRevoked:     func(context.Context, string) (bool, error) { return false, nil },
		Revoke:        func(context.Context, store.Tx, string, string) error { return nil },
		Errors:        testErrors(),
	}
	if err := RunLogout(context.Background(), "t", "u1", deps); !errors.Is(err, errNotReady) {
		t.Fatalf("expected engine not ready, got %v", err)
	}
}

func TestLoginConcurrentChallengeReturnsNotice(t *testing.T) {
	s := memory.New()
	seedUser(t, s, &store.User{Email: "mfa@example.com", PasswordHash: "hash:pw", IsActive: true, MFAEnabled: true})

	metrics := &metricCounter{}
	deps := LoginDeps{
		Begin:          s.Begin,
		VerifyPassword: func(password, encoded string) (bool, error) { return encoded == "hash:"+password, nil },
		GenerateChallenge: func(context.Context, store.Tx, *store.User) error {
			return fmt.Errorf("create challenge: %w", mfa.ErrConcurrentChallenge)
		},
		ResendChallenge: func(context.Context, store.Tx, *store.User) error {
			t.Fatal("resend must not run after a concurrent challenge")
			return nil
		},
		IssueTokens: func(*store.User) (TokenPair, error) {
			t.Fatal("tokens must not be issued while mfa is pending")
			return TokenPair{}, nil
		},
		MetricInc: metrics.inc,
		Metrics: LoginMetrics{
			MFARequired: metricMFARequired,
			MFAResent:   metricMFAResent,
		},
		Errors: testErrors(),
	}

	res, err := RunLogin(context.Background(), "MFA@example.com ", "pw", deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.MFARequired || res.Tokens != nil {
		t.Fatalf("expected mfa notice, got %+v", res)
	}
	if metrics.get(metricMFARequired) != 1 || metrics.get(metricMFAResent) != 0 {
		t.Fatalf("unexpected login counters %v", metrics.n)
	}
}
