package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
)

// AccessVerifier is satisfied by *authcore.Engine.
type AccessVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (jwt.Claims, error)
}

// BearerVerifier is satisfied by *authcore.Engine.
type BearerVerifier interface {
	VerifyBearerToken(ctx context.Context, raw string) (jwt.Claims, error)
}

// Guard rejects requests without a valid access token with 401.
func Guard(engine AccessVerifier) func(http.Handler) http.Handler {
	if engine == nil {
		return guard(nil)
	}
	return guard(engine.VerifyAccessToken)
}

// RefreshGuard accepts access and refresh tokens. A revoked refresh token is
// rejected with 401.
func RefreshGuard(engine BearerVerifier) func(http.Handler) http.Handler {
	if engine == nil {
		return guard(nil)
	}
	return guard(engine.VerifyBearerToken)
}

func guard(verify func(context.Context, string) (jwt.Claims, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verify == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				writeError(w, err, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// writeError answers with the domain message of err and status, or 500 for
// errors outside the taxonomy.
func writeError(w http.ResponseWriter, err error, status int) {
	var authErr *authcore.Error
	if errors.As(err, &authErr) {
		if authErr.Kind == authcore.KindEngineNotReady {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, authErr.Message, status)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
