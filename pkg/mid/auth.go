package mid

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/stayhub/stayhub/pkg/auth"
)

// RequestVerifier resolves the caller of a request.
type RequestVerifier interface {
	VerifyRequest(r *http.Request) (auth.User, error)
}

// Authenticate stores the verified caller in the request context. Requests
// without a token pass through anonymously; a token that fails verification
// is rejected with 401.
func Authenticate(v RequestVerifier, log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := v.VerifyRequest(r)
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				next.ServeHTTP(w, r)
			case err != nil:
				log.Debug("token rejected", "path", r.URL.Path, "err", err)
				Error(w, http.StatusUnauthorized, "Unauthorized")
			default:
				next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
			}
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := auth.FromContext(r.Context())
		if !ok {
			Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !u.IsAdmin() {
			Error(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
