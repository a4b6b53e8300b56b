package httpapi

import (
	"crypto/subtle"
	"net/http"
)

// NewBasicAuthMiddleware enforces HTTP Basic credentials on the routes it wraps.
func NewBasicAuthMiddleware(username, password string) func(http.Handler) http.Handler {
	wantUser := []byte(username)
	wantPass := []byte(password)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="transitclock"`)
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing basic credentials", nil)
				return
			}
			// Both compares always run so timing does not reveal which one failed.
			userOK := subtle.ConstantTimeCompare([]byte(user), wantUser)
			passOK := subtle.ConstantTimeCompare([]byte(pass), wantPass)
			if userOK&passOK != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="transitclock"`)
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
