// Package auth holds the session-token extraction and comparison helpers
// shared by the HTTP handlers and the WebSocket upgrade.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SessionCookie carries the session token for browser clients that
// cannot set headers on a WebSocket upgrade.
const SessionCookie = "tabled_session"

// HeaderSessionToken is the legacy token header, kept for clients that
// predate bearer auth.
const HeaderSessionToken = "X-Session-Token"

// ExtractToken retrieves the session token from the request, in
// precedence order:
//  1. Authorization: Bearer <token>
//  2. Cookie: tabled_session
//  3. Header: X-Session-Token (legacy)
//
// Query-parameter tokens are deliberately not supported: they end up in
// proxy and browser logs.
func ExtractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if t := r.Header.Get(HeaderSessionToken); t != "" {
		return t
	}
	return ""
}

// TokensEqual compares two tokens in constant time. Empty tokens never
// match.
func TokensEqual(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}
