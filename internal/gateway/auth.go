package gateway

import (
	"net/http"

	"github.com/pquerna/otp/totp"
)

// TOTPHeader carries the one-time code on mutating requests.
const TOTPHeader = "X-TOTP"

// RequireTOTP rejects POST, PATCH and DELETE requests that lack a valid
// code for secret. Reads pass through. An empty secret disables the check.
func RequireTOTP(secret string, next http.Handler) http.Handler {
	if secret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodDelete:
			code := r.Header.Get(TOTPHeader)
			if code == "" || !totp.Validate(code, secret) {
				writeError(w, http.StatusUnauthorized, "missing or invalid "+TOTPHeader)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
