package handler

import (
	"net/http"
	"strings"

	"walldraft/internal/domain"
	apperrors "walldraft/pkg/errors"
)

// AuthMiddleware validates Supabase JWT tokens and loads the application user.
type AuthMiddleware struct {
	authService domain.AuthService
	userService domain.UserService
	logger      domain.Logger
}

func NewAuthMiddleware(authService domain.AuthService, userService domain.UserService, logger domain.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		userService: userService,
		logger:      logger,
	}
}

// Middleware rejects requests without a valid bearer token.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, msg := bearerToken(r)
		if msg != "" {
			writeUnauthorized(w, msg)
			return
		}
		m.authenticate(w, r, token, next)
	})
}

// Optional lets anonymous requests through so share-link holders can reach the
// handler. A token that is present must still be valid.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" && r.URL.Query().Get("access_token") == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, msg := bearerToken(r)
		if msg != "" {
			writeUnauthorized(w, msg)
			return
		}
		m.authenticate(w, r, token, next)
	})
}

// RequireAdmin must run after Middleware.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetAppUserFromContext(r)
		if !ok {
			writeUnauthorized(w, "User not found in context")
			return
		}
		if !user.IsAdmin() {
			writeJSON(w, http.StatusForbidden, apperrors.NewForbiddenError("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request, token string, next http.Handler) {
	authUser, err := m.authService.ValidateToken(token)
	if err != nil {
		m.logger.Warn("Token validation failed", "token", redactToken(token), "error", err)
		writeUnauthorized(w, "Invalid token")
		return
	}

	user, err := m.userService.EnsureUser(r.Context(), authUser)
	if err != nil {
		writeAppError(w, m.logger, err, "user_id", authUser.ID)
		return
	}

	next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), authUser, user)))
}

// bearerToken reads "Authorization: Bearer <token>". Browsers cannot set headers on a
// websocket upgrade, so access_token in the query is accepted as well.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, ""
		}
		return "", "Authorization header required"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Invalid authorization header format"
	}
	if parts[1] == "" {
		return "", "Token required"
	}
	return parts[1], ""
}

func redactToken(token string) string {
	if len(token) <= 10 {
		return "..."
	}
	return token[:10] + "..."
}
