package handler

import (
	"net/http"

	"walldraft/internal/domain"
)

// AuthHandler handles requests about the signed-in user: profile, user search and
// the user side of the plan upgrade workflow.
type AuthHandler struct {
	userService    domain.UserService
	upgradeService domain.UpgradeService
	logger         domain.Logger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(userService domain.UserService, upgradeService domain.UpgradeService, logger domain.Logger) *AuthHandler {
	return &AuthHandler{
		userService:    userService,
		upgradeService: upgradeService,
		logger:         logger,
	}
}

type choosePlanRequest struct {
	Plan string `json:"plan"`
}

// GetProfile returns the current user's profile and effective plan
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := GetAppUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}

	profile, err := h.userService.GetProfile(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, h.logger, err, "user_id", user.ID)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SearchUsers handles GET /users/search?q=
func (h *AuthHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	type result struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	out := make([]result, 0, len(users))
	for _, u := range users {
		out = append(out, result{ID: u.ID, Email: u.Email, Name: u.Name})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": out})
}

// ChoosePlan handles POST /user/choose-plan. The change takes effect once an admin
// approves the request.
func (h *AuthHandler) ChoosePlan(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	var req choosePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	upgrade, err := h.upgradeService.Request(r.Context(), userID, req.Plan)
	if err != nil {
		writeAppError(w, h.logger, err, "user_id", userID)
		return
	}
	writeJSON(w, http.StatusAccepted, upgrade)
}

// GetUpgradeRequest handles GET /user/plan-upgrade-request. Clients poll it until
// the request leaves pending.
func (h *AuthHandler) GetUpgradeRequest(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	upgrade, err := h.upgradeService.GetStatus(r.Context(), userID)
	if err != nil {
		writeAppError(w, h.logger, err, "user_id", userID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"request": upgrade})
}
