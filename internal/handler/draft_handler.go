package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"walldraft/internal/domain"
)

// DraftHandler handles draft CRUD, image uploads and quota snapshots.
type DraftHandler struct {
	draftService  domain.DraftService
	quotaService  domain.QuotaService
	maxUploadSize int64
	logger        domain.Logger
}

func NewDraftHandler(draftService domain.DraftService, quotaService domain.QuotaService, maxUploadSize int64, logger domain.Logger) *DraftHandler {
	return &DraftHandler{
		draftService:  draftService,
		quotaService:  quotaService,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// CreateDraft handles POST /drafts
func (h *DraftHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var input domain.DraftInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	draft, err := h.draftService.CreateDraft(r.Context(), currentUserID(r), input)
	if err != nil {
		writeAppError(w, h.logger, err, "user_id", currentUserID(r))
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

// ListDrafts handles GET /drafts
func (h *DraftHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.draftService.ListOwnDrafts(r.Context(), currentUserID(r))
	if err != nil {
		writeAppError(w, h.logger, err, "user_id", currentUserID(r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drafts": drafts})
}

// ListSharedDrafts handles GET /drafts/shared
func (h *DraftHandler) ListSharedDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.draftService.ListSharedDrafts(r.Context(), currentUserID(r))
	if err != nil {
		writeAppError(w, h.logger, err, "user_id", currentUserID(r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drafts": drafts})
}

// GetDraft handles GET /drafts/{id}, for signed-in users and share-link holders.
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]

	view, err := h.draftService.GetDraft(r.Context(), draftID, requesterFromRequest(r))
	if err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateDraft handles PUT /drafts/{id}
func (h *DraftHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]

	var update domain.DraftUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	draft, err := h.draftService.UpdateDraft(r.Context(), draftID, requesterFromRequest(r), update)
	if err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// DeleteDraft handles DELETE /drafts/{id}
func (h *DraftHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]

	if err := h.draftService.DeleteDraft(r.Context(), draftID, currentUserID(r)); err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /drafts/status
func (h *DraftHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.draftService.Status(r.Context(), currentUserID(r))
	if err != nil {
		writeAppError(w, h.logger, err, "user_id", currentUserID(r))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ImageUploadStatus handles GET /drafts/image-upload-status?draftId=
func (h *DraftHandler) ImageUploadStatus(w http.ResponseWriter, r *http.Request) {
	draftID := r.URL.Query().Get("draftId")
	if draftID == "" {
		writeError(w, http.StatusBadRequest, "draftId is required")
		return
	}

	decision, err := h.draftService.ImageUploadStatus(r.Context(), draftID, requesterFromRequest(r))
	if err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"currentUploads": decision.Current,
		"limit":          decision.Limit,
		"canUploadMore":  decision.Allowed,
		"unlimited":      decision.Unlimited,
		"planName":       decision.PlanName,
	})
}

// UploadImage handles POST /drafts/{id}/images (multipart field "file").
func (h *DraftHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	draftID := mux.Vars(r)["id"]

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	image, err := h.draftService.UploadImage(r.Context(), draftID, requesterFromRequest(r), header.Filename, contentType, file)
	if err != nil {
		writeAppError(w, h.logger, err, "draft_id", draftID)
		return
	}
	writeJSON(w, http.StatusCreated, image)
}

// DecorAllowed handles GET /decors/{decorId}/allowed
func (h *DraftHandler) DecorAllowed(w http.ResponseWriter, r *http.Request) {
	decorID := mux.Vars(r)["decorId"]

	allowed, err := h.quotaService.IsDecorAllowed(r.Context(), currentUserID(r), decorID)
	if err != nil {
		writeAppError(w, h.logger, err, "decor_id", decorID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decorId": decorID, "allowed": allowed})
}
