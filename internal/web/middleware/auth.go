package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/equipstat/internal/core"
)

// LocalOwner owns every dataset uploaded without an API key when keys are
// not required.
const LocalOwner = "local"

// APIKeyAuth resolves the X-API-Key header to an owner and stores it in the
// request context. owners maps key to owner ID.
//
// A missing key is rejected with 401 when required is true and served as
// LocalOwner otherwise. A key that is present but unknown is always rejected.
func APIKeyAuth(owners map[string]string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if required {
					slog.Warn("auth: missing API key",
						"path", r.URL.Path,
						"method", r.Method,
						"remote_addr", r.RemoteAddr,
					)
					writeJSONError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
					return
				}
				next.ServeHTTP(w, r.WithContext(core.ContextWithOwner(r.Context(), LocalOwner)))
				return
			}

			owner, ok := lookupOwner(apiKey, owners)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeJSONError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r.WithContext(core.ContextWithOwner(r.Context(), owner)))
		})
	}
}

// lookupOwner compares key against every configured key in constant time,
// so timing does not reveal which key (if any) matched.
func lookupOwner(key string, owners map[string]string) (string, bool) {
	var owner string
	found := 0
	for candidate, id := range owners {
		if subtle.ConstantTimeCompare([]byte(key), []byte(candidate)) == 1 {
			owner = id
			found = 1
		}
	}
	return owner, found == 1
}

// writeJSONError writes the same error shape the API handlers use.
func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"message": message,
		"code":    code,
	})
}
