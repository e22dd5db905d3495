package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
)

// PermissionChecker is satisfied by *authcore.Engine.
type PermissionChecker interface {
	Authorize(ctx context.Context, claims jwt.Claims, resourceKind, action string) error
}

// RequirePermission must run behind Guard. It answers 403 when the caller
// may not perform action on resourceKind and 401 when the request carries no
// claims or the principal no longer exists.
func RequirePermission(engine PermissionChecker, resourceKind, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := authcore.ClaimsFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			err := engine.Authorize(r.Context(), claims, resourceKind, action)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, authcore.ErrPermissionDenied):
				writeError(w, err, http.StatusForbidden)
			default:
				writeError(w, err, http.StatusUnauthorized)
			}
		})
	}
}
