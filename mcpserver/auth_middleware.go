package mcpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/VDIOps/CitrixMonMCP/db"
	"github.com/VDIOps/CitrixMonMCP/global"
)

// AuthMiddleware validates bearer tokens on the network transports
// against the access token store.
type AuthMiddleware struct {
	store     db.Store
	logger    global.Logger
	skipPaths []string
}

// AuthMiddlewareOption defines a configuration option for AuthMiddleware
type AuthMiddlewareOption func(*AuthMiddleware)

// WithSkipPaths sets paths that bypass authentication
func WithSkipPaths(paths ...string) AuthMiddlewareOption {
	return func(am *AuthMiddleware) {
		am.skipPaths = paths
	}
}

// WithAuthLogger sets the logger for the middleware
func WithAuthLogger(logger global.Logger) AuthMiddlewareOption {
	return func(am *AuthMiddleware) {
		am.logger = logger
	}
}

// NewAuthMiddleware creates the middleware backed by the token store
func NewAuthMiddleware(store db.Store, options ...AuthMiddlewareOption) *AuthMiddleware {
	am := &AuthMiddleware{
		store:     store,
		skipPaths: []string{"/health", "/status"},
	}
	for _, option := range options {
		option(am)
	}
	return am
}

// Middleware returns the HTTP middleware function
func (am *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if am.shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := am.extractBearerToken(r)
		if token == "" {
			if am.logger != nil {
				am.logger.Warningf("Missing bearer token for request to %s", r.URL.Path)
			}
			am.writeErrorResponse(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		valid, _, err := am.store.ValidateAccessToken(token)
		if err != nil {
			if am.logger != nil {
				am.logger.Errorf("Token validation failed: %v", err)
			}
			am.writeErrorResponse(w, http.StatusInternalServerError, "Authentication error")
			return
		}
		if !valid {
			if am.logger != nil {
				am.logger.Warningf("Rejected invalid bearer token for request to %s", r.URL.Path)
			}
			am.writeErrorResponse(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// shouldSkipAuth reports whether the path bypasses authentication
func (am *AuthMiddleware) shouldSkipAuth(path string) bool {
	for _, skip := range am.skipPaths {
		if path == skip || strings.HasPrefix(path, skip+"/") {
			return true
		}
	}
	return false
}

// extractBearerToken pulls the token out of the Authorization header
func (am *AuthMiddleware) extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// writeErrorResponse writes a JSON error body
func (am *AuthMiddleware) writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
