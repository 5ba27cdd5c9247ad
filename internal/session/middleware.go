package session

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey int

const tokenKey contextKey = iota

// TokenFromContext extracts the session token from the request context.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

// WithToken returns a context carrying token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// Paths that must not trigger conversation binding.
var unboundPaths = map[string]bool{
	"/login":  true,
	"/signup": true,
}

// Middleware resolves or creates the session behind the request cookie and
// binds a conversation to it. A store failure while binding is logged and
// the request continues unbound; handlers that need a conversation retry
// the binding themselves.
func Middleware(m *Manager, codec *CookieCodec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, stale, ok := codec.tokenFromRequest(r)
			if ok {
				_, ok = m.Get(token)
			}
			if !ok {
				token = m.Start().Token
				stale = true
			}
			if stale {
				if err := codec.Write(w, token); err != nil {
					slog.Error("Failed to write session cookie", "error", err)
					http.Error(w, `{"error":"failed to establish session"}`, http.StatusInternalServerError)
					return
				}
			}

			if !unboundPaths[r.URL.Path] {
				if _, err := m.EnsureConversation(r.Context(), token); err != nil {
					slog.Warn("Continuing without a bound conversation", "error", err, "path", r.URL.Path)
				}
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}
