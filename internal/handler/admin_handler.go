package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"walldraft/internal/domain"
)

// AdminHandler exposes the plan registry and upgrade approvals to administrators.
// Routes are mounted behind AuthMiddleware.RequireAdmin; the services check the
// admin role again where it guards a state change.
type AdminHandler struct {
	planService    domain.PlanService
	upgradeService domain.UpgradeService
	logger         domain.Logger
}

func NewAdminHandler(planService domain.PlanService, upgradeService domain.UpgradeService, logger domain.Logger) *AdminHandler {
	return &AdminHandler{
		planService:    planService,
		upgradeService: upgradeService,
		logger:         logger,
	}
}

// ListPlans handles GET /admin/plans, inactive plans included.
func (h *AdminHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.planService.ListPlans(r.Context(), true)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

func (h *AdminHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var input domain.PlanInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	plan, err := h.planService.CreatePlan(r.Context(), input)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (h *AdminHandler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]

	var input domain.PlanInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeAppError(w, h.logger, err)
		return
	}

	plan, err := h.planService.UpdatePlan(r.Context(), planID, input)
	if err != nil {
		writeAppError(w, h.logger, err, "plan_id", planID)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *AdminHandler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]

	if err := h.planService.DeletePlan(r.Context(), planID); err != nil {
		writeAppError(w, h.logger, err, "plan_id", planID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUpgradeRequests handles GET /admin/plan-upgrade-requests?status=
func (h *AdminHandler) ListUpgradeRequests(w http.ResponseWriter, r *http.Request) {
	var status *domain.UpgradeStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.UpgradeStatus(raw)
		status = &s
	}

	requests, err := h.upgradeService.ListRequests(r.Context(), status)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *AdminHandler) ApproveUpgrade(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	if err := h.upgradeService.Approve(r.Context(), requestID, currentUserID(r)); err != nil {
		writeAppError(w, h.logger, err, "request_id", requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": requestID, "status": string(domain.UpgradeStatusApproved)})
}

func (h *AdminHandler) RejectUpgrade(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]

	if err := h.upgradeService.Reject(r.Context(), requestID, currentUserID(r)); err != nil {
		writeAppError(w, h.logger, err, "request_id", requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": requestID, "status": string(domain.UpgradeStatusRejected)})
}
