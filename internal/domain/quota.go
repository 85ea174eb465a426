package domain

import "context"

// ResourceKind names a countable resource gated by plan limits.
type ResourceKind string

const (
	ResourceDraft       ResourceKind = "draft"
	ResourceImageUpload ResourceKind = "imageUpload"
)

// QuotaContext scopes a quota check. DraftID is required for image uploads.
type QuotaContext struct {
	DraftID string
}

// QuotaDecision is the result of a quota check.
type QuotaDecision struct {
	Allowed   bool   `json:"allowed"`
	Limit     int    `json:"limit"`
	Current   int    `json:"current"`
	Unlimited bool   `json:"unlimited"`
	PlanName  string `json:"planName"`
}

// QuotaService evaluates plan limits and entitlements. An empty userID means guest.
type QuotaService interface {
	CanCreate(ctx context.Context, userID string, kind ResourceKind, qctx QuotaContext) (*QuotaDecision, error)
	Enforce(ctx context.Context, userID string, kind ResourceKind, qctx QuotaContext) (*QuotaDecision, error)
	EffectivePlan(ctx context.Context, userID string) (*Plan, error)
	IsDecorAllowed(ctx context.Context, userID string, decorID string) (bool, error)
	CanExport(ctx context.Context, userID string) (bool, error)
}
