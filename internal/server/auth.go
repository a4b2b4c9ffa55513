package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ragstack/ragserve/internal/logging"
)

// authMiddleware guards the API with a static Bearer token:
//
//	Authorization: Bearer <apiKey>
//
// An empty apiKey disables the check entirely; serve logs a startup warning
// in that case so an open API is a deliberate choice, not an accident.
// Rejections carry a WWW-Authenticate challenge. The presented token is
// never echoed or logged, only whether one was present.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			logging.FromContext(r.Context()).Warn("auth: no bearer token", "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="ragserve"`)
			writeError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		// Constant-time comparison so response timing reveals nothing
		// about how much of the key matched.
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logging.FromContext(r.Context()).Warn("auth: token rejected", "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="ragserve" error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken pulls the credential out of an "Authorization: Bearer <token>"
// header. The scheme matches case-insensitively; a missing header, a
// different scheme, or a bare scheme with no credential all yield "".
func bearerToken(r *http.Request) string {
	scheme, rest, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}
