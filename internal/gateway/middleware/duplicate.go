package middleware

import (
	"log/slog"
	"net/http"

	"github.com/cuppid-coder/connect/pkg/config"
)

// OnlineChecker reports whether a user already has a live connection in
// this process.
type OnlineChecker func(userID string) bool

// NewDuplicateLoginLimiter enforces the duplicate-login policy at
// handshake time. In "replace" mode the request proceeds and the registry
// supersedes (and force-closes) the older connection; in "reject" mode
// the second login is refused outright.
func NewDuplicateLoginLimiter(logger *slog.Logger, isOnline OnlineChecker, cfg config.DuplicateLoginConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				logger.Error("Duplicate-login limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if reqMeta.User.ID == "" || !isOnline(reqMeta.User.ID) {
				next.ServeHTTP(w, r)
				return
			}

			switch cfg.Mode {
			case config.DuplicateLoginReject:
				logger.Warn("Rejecting duplicate login", slog.String("userID", reqMeta.User.ID))
				http.Error(w, "Already Connected", http.StatusConflict)
			default:
				// replace: let the connect sequence supersede the old handle
				next.ServeHTTP(w, r)
			}
		})
	}
}
