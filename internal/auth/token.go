package auth

import (
	"net/http"
	"strings"
)

const accessTokenCookie = "finna_payment_token"

// ExtractAccessToken reads the patron token from the session cookie, falling
// back to a bearer Authorization header.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}
