package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"walldraft/internal/domain"
)

type mockAuthService struct {
	user      *domain.SupabaseUser
	err       error
	lastToken string
}

func (m *mockAuthService) ValidateToken(token string) (*domain.SupabaseUser, error) {
	m.lastToken = token
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

type mockUserService struct {
	userType domain.UserType
	err      error
	ensured  int
}

func (m *mockUserService) EnsureUser(ctx context.Context, authUser *domain.SupabaseUser) (*domain.User, error) {
	m.ensured++
	if m.err != nil {
		return nil, m.err
	}
	userType := m.userType
	if userType == "" {
		userType = domain.UserTypeRegular
	}
	return &domain.User{ID: authUser.ID, Email: authUser.Email, UserType: userType}, nil
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return &domain.UserProfile{User: &domain.User{ID: userID}}, nil
}

func (m *mockUserService) SearchUsers(ctx context.Context, query string) ([]*domain.User, error) {
	return nil, nil
}

func newTestMiddleware(auth *mockAuthService, users *mockUserService) *AuthMiddleware {
	return NewAuthMiddleware(auth, users, NewMockHandlerLogger())
}

func rejectingHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("expected handler not to be called")
	})
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	h := newTestMiddleware(&mockAuthService{}, &mockUserService{}).Middleware(rejectingHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Authorization header required") {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
}

func TestAuthMiddleware_InvalidFormat(t *testing.T) {
	h := newTestMiddleware(&mockAuthService{}, &mockUserService{}).Middleware(rejectingHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Invalid authorization header format") {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
}

func TestAuthMiddleware_EmptyToken(t *testing.T) {
	h := newTestMiddleware(&mockAuthService{}, &mockUserService{}).Middleware(rejectingHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Token required") {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	users := &mockUserService{}
	h := newTestMiddleware(&mockAuthService{err: errors.New("invalid token")}, users).Middleware(rejectingHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Invalid token") {
		t.Fatalf("unexpected response body: %s", rr.Body.String())
	}
	if users.ensured != 0 {
		t.Fatalf("expected no user provisioning for an invalid token")
	}
}

func TestAuthMiddleware_Success(t *testing.T) {
	auth := &mockAuthService{user: &domain.SupabaseUser{ID: "user-1", Email: "test@example.com"}}
	users := &mockUserService{}

	called := false
	h := newTestMiddleware(auth, users).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		user, ok := GetUserFromContext(r)
		if !ok || user.ID != "user-1" {
			t.Fatalf("expected user in context")
		}
		appUser, ok := GetAppUserFromContext(r)
		if !ok || appUser.ID != "user-1" {
			t.Fatalf("expected app user in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !called {
		t.Fatalf("expected next handler to be called")
	}
	if users.ensured != 1 {
		t.Fatalf("expected user to be provisioned once, got %d", users.ensured)
	}
	if auth.lastToken != "good" {
		t.Fatalf("expected token good to be validated, got %q", auth.lastToken)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	auth := &mockAuthService{user: &domain.SupabaseUser{ID: "user-1"}}
	h := newTestMiddleware(auth, &mockUserService{}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/?access_token=from-query", nil)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
	if auth.lastToken != "from-query" {
		t.Fatalf("expected query token to be validated, got %q", auth.lastToken)
	}
}

func TestAuthMiddleware_ProvisioningFailure(t *testing.T) {
	auth := &mockAuthService{user: &domain.SupabaseUser{ID: "user-1"}}
	h := newTestMiddleware(auth, &mockUserService{err: errors.New("db down")}).Middleware(rejectingHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}

func TestAuthMiddleware_Optional(t *testing.T) {
	auth := &mockAuthService{user: &domain.SupabaseUser{ID: "user-1"}}
	m := newTestMiddleware(auth, &mockUserService{})

	var requester domain.Requester
	h := m.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requester = requesterFromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/?token=link-token", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !requester.IsAnonymous() || requester.Token != "link-token" {
		t.Fatalf("unexpected anonymous requester: %+v", requester)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("X-Share-Token", "header-token")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if requester.UserID != "user-1" || requester.Token != "header-token" {
		t.Fatalf("unexpected signed-in requester: %+v", requester)
	}

	// A present but broken credential is still rejected.
	auth.err = errors.New("expired")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestAuthMiddleware_RequireAdmin(t *testing.T) {
	auth := &mockAuthService{user: &domain.SupabaseUser{ID: "user-1"}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		userType domain.UserType
		want     int
	}{
		{name: "regular user", userType: domain.UserTypeRegular, want: http.StatusForbidden},
		{name: "admin", userType: domain.UserTypeAdmin, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMiddleware(auth, &mockUserService{userType: tt.userType})
			h := m.Middleware(m.RequireAdmin(ok))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer good")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
		})
	}
}
