package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuppid-coder/connect/internal/auth"
	"github.com/cuppid-coder/connect/internal/gateway/middleware"
	"github.com/cuppid-coder/connect/internal/identity"
	"github.com/cuppid-coder/connect/pkg/config"
)

const testSecret = "unit-test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type staticDirectory map[string]identity.User

func (d staticDirectory) FindByID(_ context.Context, id string) (identity.User, error) {
	u, ok := d[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (d staticDirectory) SetStatus(context.Context, string, identity.Status, time.Time) error {
	return nil
}

func signToken(t *testing.T, subject string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// handshakeChain mirrors the server's /ws chain: metadata, then auth, then
// the duplicate-login limiter.
func handshakeChain(t *testing.T, directory identity.Directory, isOnline middleware.OnlineChecker, mode string, final http.Handler) http.Handler {
	t.Helper()
	logger := testLogger()
	authenticator := auth.New(logger, testSecret, directory, time.Second)
	return middleware.Chain(final,
		middleware.RequestMetadataMiddleware(),
		middleware.NewAuthMiddleware(logger, authenticator),
		middleware.NewDuplicateLoginLimiter(logger, isOnline, config.DuplicateLoginConfig{Mode: mode}),
	)
}

func nobodyOnline(string) bool { return false }

func TestAuthMiddleware(t *testing.T) {
	directory := staticDirectory{
		"u1": {ID: "u1", Name: "Alice", Avatar: "a.png"},
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"expired token", signToken(t, "u1", -time.Minute), http.StatusUnauthorized},
		{"unknown user", signToken(t, "ghost", time.Minute), http.StatusUnauthorized},
		{"valid token", signToken(t, "u1", time.Minute), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser identity.User
			handler := handshakeChain(t, directory, nobodyOnline, config.DuplicateLoginReplace,
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
					require.True(t, ok)
					gotUser = reqMeta.User
				}))

			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u1", gotUser.ID)
				assert.Equal(t, "Alice", gotUser.Name)
			}
		})
	}
}

func TestAuthMiddlewareQueryParamToken(t *testing.T) {
	directory := staticDirectory{"u1": {ID: "u1", Name: "Alice"}}
	reached := false
	handler := handshakeChain(t, directory, nobodyOnline, config.DuplicateLoginReplace,
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+signToken(t, "u1", time.Minute), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached, "valid query-param token did not reach the handler")
}

func TestDuplicateLoginLimiter(t *testing.T) {
	directory := staticDirectory{"u1": {ID: "u1", Name: "Alice"}}
	alreadyOnline := func(userID string) bool { return userID == "u1" }
	token := signToken(t, "u1", time.Minute)

	t.Run("reject mode refuses the second login", func(t *testing.T) {
		handler := handshakeChain(t, directory, alreadyOnline, config.DuplicateLoginReject,
			http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler reached despite reject mode")
			}))
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("replace mode lets the second login through", func(t *testing.T) {
		reached := false
		handler := handshakeChain(t, directory, alreadyOnline, config.DuplicateLoginReplace,
			http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, reached)
	})

	t.Run("first login is never limited", func(t *testing.T) {
		reached := false
		handler := handshakeChain(t, directory, nobodyOnline, config.DuplicateLoginReject,
			http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, reached)
	})
}

func TestRequestMetadataCapturesIP(t *testing.T) {
	var gotIP string
	handler := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
			require.True(t, ok)
			gotIP = reqMeta.IP
		}),
		middleware.RequestMetadataMiddleware(),
	)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", gotIP)
}
