package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Davincible/llm-bridge/internal/config"
	"github.com/Davincible/llm-bridge/internal/models"
)

var (
	ErrMissingProxyKey = errors.New("no proxy key provided")
	ErrInvalidProxyKey = errors.New("invalid proxy key")
)

// paths that never require the proxy key
var openPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// NewAuthMiddleware checks the gateway's own api_key, read from cfg on every
// request so a reloaded config takes effect. Without a configured key all
// requests pass.
func NewAuthMiddleware(cfg *config.Manager, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			want := cfg.Get().APIKey

			if want == "" || openPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if err := checkProxyKey(proxyKey(r), want); err != nil {
				logger.Warn("Rejected request", "error", err, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(models.ErrorPayload("Proxy API key not authorized", "authentication_error"))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// proxyKey reads the key from "Authorization: Bearer" as OpenAI clients send
// it, or from X-API-Key as Claude clients do.
func proxyKey(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}

	return r.Header.Get("X-API-Key")
}

func checkProxyKey(got, want string) error {
	if got == "" {
		return ErrMissingProxyKey
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrInvalidProxyKey
	}

	return nil
}
