package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"idhub.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth runs the identification stage for every request carrying a bearer
// token. It never rejects on its own: tokens that fail verification leave the
// caller anonymous, and each operation decides whether that is acceptable.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get(authHeader))
		identity, err := a.gate.Identify(r.Context(), token)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole guards a subtree behind a required role set. 401 when the
// caller is anonymous, 403 when authenticated but lacking every listed role.
func RequireRole(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := auth.IdentityFromContext(r.Context())
			switch err := auth.Authorize(identity, required...); {
			case errors.Is(err, auth.ErrUnauthenticated):
				writeUnauthenticated(w, r)
			case errors.Is(err, auth.ErrForbidden):
				writeError(w, r, http.StatusForbidden, "insufficient role")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// extractBearerToken returns the token from an Authorization header, or ""
// when the header is absent or not bearer-shaped.
func extractBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}
