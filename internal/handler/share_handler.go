package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"walldraft/internal/domain"
)

// ShareHandler handles public links and direct grants. Every route is owner-only
// except grantee self-removal.
type ShareHandler struct {
	shareService domain.ShareService
	logger       domain.Logger
}

func NewShareHandler(shareService domain.ShareService, logger domain.Logger) *ShareHandler {
	return &ShareHandler{
		shareService: shareService,
		logger:       logger,
	}
}

type publicLinkRequest struct {
	IsPublic       *bool                 `json:"isPublic"`
	LinkPermission domain.LinkPermission `json:"linkPermission"`
	TTLSeconds     *int64                `json:"ttlSeconds"`
	Rotate         bool                  `json:"rotate"`
}

type shareUsersRequest struct {
	UserIDs []string `json:"userIds"`
}

// SetPublic handles PUT /drafts/{id}/public. isPublic=false revokes the link.
func (h *ShareHandler) SetPublic(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]
	ownerID := currentUserID(r)

	var req publicLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	if req.IsPublic != nil && !*req.IsPublic {
		if err := h.shareService.Revoke(r.Context(), draftID, ownerID); err != nil {
			writeAppError(w, h.logger, err, "draft_id", draftID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"draftId": draftID, "isPublic": false})
		return
	}

	opts := domain.ShareLinkOptions{
		Permission: req.LinkPermission,
		Rotate:     req.Rotate,
	}
	if req.TTLSeconds != nil {
		if *req.TTLSeconds > int64(domain.MaxShareLinkTTL/time.Second) {
			writeAppError(w, h.logger, &domain.ValidationError{Field: "ttlSeconds", Message: "must be at most ten years"})
			return
		}
		ttl := time.Duration(*req.TTLSeconds) * time.Second
		opts.TTL = &ttl
	}

	link, err := h.shareService.IssueOrRotate(r.Context(), draftID, ownerID, opts)
	if err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// RevokeShare handles PUT /drafts/{id}/revoke-share
func (h *ShareHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]

	if err := h.shareService.Revoke(r.Context(), draftID, currentUserID(r)); err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"draftId": draftID, "isPublic": false})
}

// ShareWithUsers handles POST /drafts/{id}/share
func (h *ShareHandler) ShareWithUsers(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]

	var req shareUsersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	draft, err := h.shareService.ShareWithUsers(r.Context(), draftID, currentUserID(r), req.UserIDs)
	if err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// RemoveShare handles DELETE /drafts/{id}/share/{userId}
func (h *ShareHandler) RemoveShare(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	draftID, userID := vars["id"], vars["userId"]

	if err := h.shareService.RemoveShare(r.Context(), draftID, currentUserID(r), userID); err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
