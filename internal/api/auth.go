package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/leasectl/leasectl/internal/config"
)

// AuthMiddleware handles Bearer token and basic authentication. With
// neither configured every request is allowed.
type AuthMiddleware struct {
	bearerToken string
	users       []config.UserConfig
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(token string, users []config.UserConfig, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		bearerToken: token,
		users:       users,
		logger:      logger,
	}
}

// RequireAuth wraps a handler to require authentication.
func (a *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="leasectl"`)
			JSONError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next(w, r)
	}
}

// AuthRequired returns true if auth is configured (users or bearer token set).
func (a *AuthMiddleware) AuthRequired() bool {
	return a.bearerToken != "" || len(a.users) > 0
}

// authenticate checks if the request has valid credentials.
func (a *AuthMiddleware) authenticate(r *http.Request) bool {
	if !a.AuthRequired() {
		return true
	}

	authHeader := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(authHeader, "Bearer "):
		token := strings.TrimPrefix(authHeader, "Bearer ")
		return a.bearerToken != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(a.bearerToken)) == 1
	case strings.HasPrefix(authHeader, "Basic "):
		username, password, ok := r.BasicAuth()
		if !ok {
			return false
		}
		if a.checkUserCredentials(username, password) {
			return true
		}
		a.logger.Warn("failed API login", "username", username, "remote", r.RemoteAddr)
	}
	return false
}

// checkUserCredentials validates username/password against configured users.
func (a *AuthMiddleware) checkUserCredentials(username, password string) bool {
	for _, user := range a.users {
		if user.Username == username {
			return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
		}
	}
	return false
}
