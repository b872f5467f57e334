package auth

import "net/http"

const CookieName = "session_token"

// RequireSession protects a handler chain; requests are let through
// untouched if no password has been configured (auth is opt-in), per
// require_auth in the original.
func RequireSession(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			cookie, err := r.Cookie(CookieName)
			if err != nil || !m.VerifyToken(cookie.Value) {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
