package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Handlers groups everything NewRouter mounts.
type Handlers struct {
	Auth   *AuthHandler
	Admin  *AdminHandler
	Draft  *DraftHandler
	Share  *ShareHandler
	Plan   *PlanHandler
	Collab *CollabHandler
}

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	AllowedOrigins []string
	// PublicRateLimit is the per-IP request budget per minute on routes reachable
	// without an account. Zero disables the limit.
	PublicRateLimit int
	// Gatherer backs /metrics. Nil leaves the endpoint unmounted.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(h Handlers, auth *AuthMiddleware, opts RouterOptions) http.Handler {
	router := mux.NewRouter()

	// Health check endpoint (no auth required)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"walldraft"}`))
	}).Methods("GET")

	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	required := func(fn http.HandlerFunc) http.Handler {
		return auth.Middleware(fn)
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return auth.Middleware(auth.RequireAdmin(fn))
	}
	limit := func(next http.Handler) http.Handler { return next }
	if opts.PublicRateLimit > 0 {
		limit = httprate.LimitByIP(opts.PublicRateLimit, time.Minute)
	}
	// public routes accept share-link holders as well as signed-in users.
	public := func(fn http.HandlerFunc) http.Handler {
		return limit(auth.Optional(fn))
	}

	// Static draft paths are registered before /drafts/{id}.
	api.Handle("/drafts", required(h.Draft.CreateDraft)).Methods("POST")
	api.Handle("/drafts", required(h.Draft.ListDrafts)).Methods("GET")
	api.Handle("/drafts/shared", required(h.Draft.ListSharedDrafts)).Methods("GET")
	api.Handle("/drafts/status", required(h.Draft.Status)).Methods("GET")
	api.Handle("/drafts/image-upload-status", public(h.Draft.ImageUploadStatus)).Methods("GET")

	api.Handle("/drafts/{id}", public(h.Draft.GetDraft)).Methods("GET")
	api.Handle("/drafts/{id}", public(h.Draft.UpdateDraft)).Methods("PUT")
	api.Handle("/drafts/{id}", required(h.Draft.DeleteDraft)).Methods("DELETE")
	api.Handle("/drafts/{id}/images", public(h.Draft.UploadImage)).Methods("POST")
	api.Handle("/drafts/{id}/live", public(h.Collab.Live)).Methods("GET")

	api.Handle("/drafts/{id}/share", required(h.Share.ShareWithUsers)).Methods("POST")
	api.Handle("/drafts/{id}/share/{userId}", required(h.Share.RemoveShare)).Methods("DELETE")
	api.Handle("/drafts/{id}/public", required(h.Share.SetPublic)).Methods("PUT")
	api.Handle("/drafts/{id}/revoke-share", required(h.Share.RevokeShare)).Methods("PUT")

	api.Handle("/decors/{decorId}/allowed", public(h.Draft.DecorAllowed)).Methods("GET")

	api.Handle("/plans", limit(http.HandlerFunc(h.Plan.ListPlans))).Methods("GET")
	api.Handle("/plans/{id}", limit(http.HandlerFunc(h.Plan.GetPlan))).Methods("GET")

	api.Handle("/auth/validate", required(h.Auth.ValidateToken)).Methods("GET")
	api.Handle("/user/profile", required(h.Auth.GetProfile)).Methods("GET")
	api.Handle("/user/choose-plan", required(h.Auth.ChoosePlan)).Methods("POST")
	api.Handle("/user/plan-upgrade-request", required(h.Auth.GetUpgradeRequest)).Methods("GET")
	api.Handle("/users/search", required(h.Auth.SearchUsers)).Methods("GET")

	api.Handle("/admin/plans", admin(h.Admin.ListPlans)).Methods("GET")
	api.Handle("/admin/plans", admin(h.Admin.CreatePlan)).Methods("POST")
	api.Handle("/admin/plans/{id}", admin(h.Admin.UpdatePlan)).Methods("PUT")
	api.Handle("/admin/plans/{id}", admin(h.Admin.DeletePlan)).Methods("DELETE")
	api.Handle("/admin/plan-upgrade-requests", admin(h.Admin.ListUpgradeRequests)).Methods("GET")
	api.Handle("/admin/plan-upgrade-requests/{id}/approve", admin(h.Admin.ApproveUpgrade)).Methods("POST")
	api.Handle("/admin/plan-upgrade-requests/{id}/reject", admin(h.Admin.RejectUpgrade)).Methods("POST")

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-CSRF-Token",
			"X-Share-Token",
		},
		ExposedHeaders: []string{
			"Link",
		},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	return c.Handler(router)
}
