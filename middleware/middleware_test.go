package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
)

type stubVerifier struct {
	claims jwt.Claims
	err    error
	seen   string
}

func (s *stubVerifier) VerifyAccessToken(_ context.Context, raw string) (jwt.Claims, error) {
	s.seen = raw
	return s.claims, s.err
}

func (s *stubVerifier) VerifyBearerToken(_ context.Context, raw string) (jwt.Claims, error) {
	s.seen = raw
	return s.claims, s.err
}

type stubChecker struct {
	err          error
	resourceKind string
	action       string
}

func (s *stubChecker) Authorize(_ context.Context, _ jwt.Claims, resourceKind, action string) error {
	s.resourceKind = resourceKind
	s.action = action
	return s.err
}

func claimsEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authcore.ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		_, _ = w.Write([]byte(claims.UserID()))
	})
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuardInjectsClaims(t *testing.T) {
	v := &stubVerifier{claims: jwt.Claims{jwt.ClaimUserID: "user-1"}}
	rec := serve(Guard(v)(claimsEcho(t)), "Bearer abc.def.ghi")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "user-1" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if v.seen != "abc.def.ghi" {
		t.Fatalf("verifier saw %q", v.seen)
	}
}

func TestGuardRejectsMissingOrMalformedHeader(t *testing.T) {
	v := &stubVerifier{claims: jwt.Claims{jwt.ClaimUserID: "user-1"}}
	h := Guard(v)(claimsEcho(t))

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer"} {
		if rec := serve(h, header); rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestGuardMapsVerificationErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{authcore.ErrInvalidOrExpiredToken, http.StatusUnauthorized},
		{authcore.ErrInvalidTokenType, http.StatusUnauthorized},
		{authcore.ErrEngineNotReady, http.StatusServiceUnavailable},
		{errors.New("redis down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		v := &stubVerifier{err: tc.err}
		rec := serve(Guard(v)(claimsEcho(t)), "Bearer token")
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
	}
}

func TestRefreshGuardRejectsRevokedRefresh(t *testing.T) {
	v := &stubVerifier{err: authcore.ErrTokenExpired}
	rec := serve(RefreshGuard(v)(claimsEcho(t)), "Bearer refresh")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestNilEngineIsUnauthorized(t *testing.T) {
	rec := serve(Guard(nil)(claimsEcho(t)), "Bearer token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	v := &stubVerifier{claims: jwt.Claims{jwt.ClaimUserID: "user-1"}}

	allow := &stubChecker{}
	h := Guard(v)(RequirePermission(allow, "profile", "read")(claimsEcho(t)))
	if rec := serve(h, "Bearer token"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if allow.resourceKind != "profile" || allow.action != "read" {
		t.Fatalf("unexpected check %q/%q", allow.resourceKind, allow.action)
	}

	deny := &stubChecker{err: authcore.ErrPermissionDenied}
	h = Guard(v)(RequirePermission(deny, "profile", "write")(claimsEcho(t)))
	if rec := serve(h, "Bearer token"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	gone := &stubChecker{err: authcore.ErrUserNotFound}
	h = Guard(v)(RequirePermission(gone, "profile", "read")(claimsEcho(t)))
	if rec := serve(h, "Bearer token"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequirePermissionWithoutGuard(t *testing.T) {
	h := RequirePermission(&stubChecker{}, "profile", "read")(claimsEcho(t))
	if rec := serve(h, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
