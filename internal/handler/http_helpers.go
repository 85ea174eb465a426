package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"walldraft/internal/domain"
	apperrors "walldraft/pkg/errors"
)

type contextKey string

const (
	userContextKey    contextKey = "user"
	appUserContextKey contextKey = "app_user"
)

// maxJSONBody bounds request bodies. Wall data is the largest payload.
const maxJSONBody = 4 << 20

// GetUserFromContext extracts the authenticated user from request context
func GetUserFromContext(r *http.Request) (*domain.SupabaseUser, bool) {
	user, ok := r.Context().Value(userContextKey).(*domain.SupabaseUser)
	return user, ok
}

// GetAppUserFromContext returns the application user record loaded by the auth middleware.
func GetAppUserFromContext(r *http.Request) (*domain.User, bool) {
	user, ok := r.Context().Value(appUserContextKey).(*domain.User)
	return user, ok && user != nil
}

func withIdentity(ctx context.Context, authUser *domain.SupabaseUser, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, authUser)
	return context.WithValue(ctx, appUserContextKey, user)
}

// requesterFromRequest combines the signed-in user, if any, with a share token taken
// from the query string or the X-Share-Token header.
func requesterFromRequest(r *http.Request) domain.Requester {
	var requester domain.Requester
	if user, ok := GetAppUserFromContext(r); ok {
		requester.UserID = user.ID
	}
	requester.Token = strings.TrimSpace(r.URL.Query().Get("token"))
	if requester.Token == "" {
		requester.Token = strings.TrimSpace(r.Header.Get("X-Share-Token"))
	}
	return requester
}

func currentUserID(r *http.Request) string {
	if user, ok := GetAppUserFromContext(r); ok {
		return user.ID
	}
	return ""
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &domain.ValidationError{Message: "request body is required"}
		}
		return &domain.ValidationError{Message: "invalid request body"}
	}
	return nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (helper function)
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, apperrors.NewUnauthorizedError(message))
}

// writeAppError maps a service error onto its HTTP response. Unexpected errors are
// logged; the client only sees a generic message.
func writeAppError(w http.ResponseWriter, logger domain.Logger, err error, fields ...interface{}) {
	appErr := apperrors.FromDomain(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("Request failed", err, fields...)
	}
	writeJSON(w, appErr.StatusCode, appErr)
}
