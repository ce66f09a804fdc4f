// Package auth implements the connection-handshake authenticator: it
// verifies the bearer token presented during the WebSocket upgrade and
// resolves it to a full user record before the connection is accepted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cuppid-coder/connect/internal/identity"
)

// ErrAuthentication is the root of the authentication error taxonomy.
// Every failure returned by Authenticate matches it via errors.Is.
var ErrAuthentication = errors.New("authentication failed")

var (
	ErrMissingToken = fmt.Errorf("%w: missing token", ErrAuthentication)
	ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", ErrAuthentication)
	ErrUnknownUser  = fmt.Errorf("%w: user not found", ErrAuthentication)
)

type Authenticator struct {
	secret    []byte
	directory identity.Directory
	timeout   time.Duration
	logger    *slog.Logger
}

func New(logger *slog.Logger, jwtSecret string, directory identity.Directory, timeout time.Duration) *Authenticator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Authenticator{
		secret:    []byte(jwtSecret),
		directory: directory,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "authenticator")),
	}
}

// Authenticate verifies the handshake token and resolves the subject to a
// user record. The directory lookup is bounded by the configured timeout;
// a hung lookup behaves like any other authentication failure.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (identity.User, error) {
	if tokenString == "" {
		return identity.User{}, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		a.logger.Warn("Invalid JWT token presented", slog.Any("error", err))
		return identity.User{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		a.logger.Warn("Valid token missing 'sub' claim")
		return identity.User{}, ErrInvalidToken
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	user, err := a.directory.FindByID(lookupCtx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, ErrUnknownUser
		}
		a.logger.Error("Identity lookup failed", slog.String("userID", claims.Subject), slog.Any("error", err))
		return identity.User{}, fmt.Errorf("%w: identity lookup: %v", ErrAuthentication, err)
	}
	return user, nil
}
