package httputil

import (
	"crypto/subtle"
	"maps"
	"net/http"
	"strings"
)

// MergeHeaders merges override headers into base, returning a new map.
func MergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]string)
	}
	maps.Copy(out, override)
	return out
}

// BearerHeaders returns an Authorization header for token, or nil when the
// token is empty.
func BearerHeaders(token string) map[string]string {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// BearerToken extracts the credential from an Authorization header using
// the Bearer or Token scheme, falling back to the access_token query
// parameter used by websocket clients that cannot set headers.
func BearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !(strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "Token")) {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authorized reports whether r carries expected. An empty expected token
// disables the check.
func Authorized(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	token := BearerToken(r)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}
