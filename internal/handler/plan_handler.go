package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"walldraft/internal/domain"
)

// PlanHandler serves the public view of the plan registry.
type PlanHandler struct {
	planService domain.PlanService
	logger      domain.Logger
}

func NewPlanHandler(planService domain.PlanService, logger domain.Logger) *PlanHandler {
	return &PlanHandler{
		planService: planService,
		logger:      logger,
	}
}

// ListPlans handles GET /plans. Only active plans are offered.
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.planService.ListPlans(r.Context(), false)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID := mux.Vars(r)["id"]

	plan, err := h.planService.GetPlan(r.Context(), planID)
	if err != nil {
		writeAppError(w, h.logger, err, "plan_id", planID)
		return
	}
	if !plan.IsActive {
		writeAppError(w, h.logger, domain.ErrPlanNotFound)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
