package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/auth"
	"github.com/vyrodovalexey/storefront/internal/model"
)

// publicPaths are health and scrape endpoints. They never require
// credentials and are logged at debug level.
var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Auth rejects requests that need credentials and carry no valid ones.
// The resolved identity is stored in the request context.
func Auth(
	authenticator auth.Authenticator,
	logger *zap.Logger,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(
			w http.ResponseWriter,
			r *http.Request,
		) {
			if !requiresAuth(r) {
				next.ServeHTTP(w, r)
				return
			}

			info, err := authenticator.Authenticate(r)
			if err != nil {
				logger.Warn("authentication failed",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeAuthError(w, err)
				return
			}

			logger.Debug("authentication successful",
				zap.String("subject", info.Subject),
				zap.String("method", string(info.Method)),
				zap.String("path", r.URL.Path),
			)

			ctx := auth.WithAuthInfo(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requiresAuth reports whether r can change state. Health checks,
// preflights and plain reads are open; the WebSocket upgrade is not, since
// the channel accepts create and delete events.
func requiresAuth(r *http.Request) bool {
	switch {
	case isPublicPath(r.URL.Path), r.Method == http.MethodOptions:
		return false
	case isReadOnly(r.Method):
		return isWebSocketUpgrade(r)
	default:
		return true
	}
}

// isPublicPath checks whether the given path is a public path that
// does not require authentication. Matches exact public paths and
// their sub-paths (e.g. /health and /health/live), but rejects
// paths that merely share a prefix without a path separator
// (e.g. /healthXXX is not public).
func isPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}

	for p := range publicPaths {
		if strings.HasPrefix(path, p+"/") {
			return true
		}
	}

	return false
}

// isReadOnly reports whether the method cannot change server state.
func isReadOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// isWebSocketUpgrade checks whether the request is a WebSocket
// upgrade request.
func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// writeAuthError writes an appropriate HTTP 401 response with
// WWW-Authenticate header based on the error type.
func writeAuthError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	setWWWAuthenticateHeader(w, err)

	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: err.Error()})
}

// setWWWAuthenticateHeader sets the WWW-Authenticate header based on
// the authentication error type.
func setWWWAuthenticateHeader(
	w http.ResponseWriter,
	err error,
) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		w.Header().Set(
			"WWW-Authenticate", "Basic, API-Key",
		)
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set(
			"WWW-Authenticate", `Basic realm="storefront"`,
		)
	case errors.Is(err, auth.ErrInvalidAPIKey):
		w.Header().Set("WWW-Authenticate", "API-Key")
	}
}
