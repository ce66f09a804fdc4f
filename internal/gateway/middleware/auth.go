package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuppid-coder/connect/internal/identity"
)

// HandshakeAuthenticator verifies a handshake credential and resolves it
// to a user record. Satisfied by *auth.Authenticator.
type HandshakeAuthenticator interface {
	Authenticate(ctx context.Context, token string) (identity.User, error)
}

// NewAuthMiddleware gates the WebSocket upgrade behind handshake
// authentication. A refused handshake is an HTTP 401 before the upgrade,
// so the client sees an explicit connection refusal rather than a
// connection with no identity.
func NewAuthMiddleware(logger *slog.Logger, authenticator HandshakeAuthenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// metadata middleware did not run; broken chain order
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			user, err := authenticator.Authenticate(r.Context(), extractToken(r))
			if err != nil {
				logger.Warn("Handshake authentication refused",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.User = user
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken pulls the bearer token from the Authorization header or,
// because browser WebSocket clients cannot set headers, from the "token"
// query parameter.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
