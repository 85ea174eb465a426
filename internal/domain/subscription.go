package domain

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Unlimited is the quota value that disables a limit.
const Unlimited = -1

// Identifiers of the pseudo plans that never live in the registry.
const (
	GuestPlanID      = "guest"
	UnassignedPlanID = "unassigned"
)

// PlanLimits holds the numeric quotas of a plan. Each value is Unlimited or >= 0.
type PlanLimits struct {
	DesignsPerMonth       int `json:"designsPerMonth" yaml:"designsPerMonth" validate:"min=-1"`
	ImageUploadsPerDesign int `json:"imageUploadsPerDesign" yaml:"imageUploadsPerDesign" validate:"min=-1"`
}

// Validate rejects limits below Unlimited.
func (l PlanLimits) Validate() error {
	if l.DesignsPerMonth < Unlimited {
		return &ValidationError{Field: "limits.designsPerMonth", Message: "must be -1 or a non-negative integer"}
	}
	if l.ImageUploadsPerDesign < Unlimited {
		return &ValidationError{Field: "limits.imageUploadsPerDesign", Message: "must be -1 or a non-negative integer"}
	}
	return nil
}

// Plan is a named bundle of quotas and entitlements. Users reference plans by ID;
// Name is display-only and may be renamed freely.
type Plan struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Limits       PlanLimits `json:"limits"`
	ExportDrafts bool       `json:"exportDrafts"`
	// Decors is the decor allow-list. Empty means every decor is allowed.
	Decors    []string  `json:"decors"`
	IsActive  bool      `json:"isActive"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AllowsDecor reports whether the decor is usable on this plan.
func (p *Plan) AllowsDecor(decorID string) bool {
	if len(p.Decors) == 0 {
		return true
	}
	return slices.Contains(p.Decors, decorID)
}

// GuestPlan is the pseudo plan applied to unauthenticated callers.
func GuestPlan(uploadLimit int) *Plan {
	return &Plan{
		ID:   GuestPlanID,
		Name: "Guest",
		Limits: PlanLimits{
			DesignsPerMonth:       0,
			ImageUploadsPerDesign: uploadLimit,
		},
		IsActive: true,
	}
}

// UnassignedPlan is used when a user has no usable plan and the registry has no default.
func UnassignedPlan() *Plan {
	return &Plan{
		ID:       UnassignedPlanID,
		Name:     "No plan",
		IsActive: true,
	}
}

// PlanInput is the admin payload for creating or editing a plan.
type PlanInput struct {
	Name         string     `json:"name" yaml:"name" validate:"required,max=64"`
	Limits       PlanLimits `json:"limits" yaml:"limits"`
	ExportDrafts bool       `json:"exportDrafts" yaml:"exportDrafts"`
	Decors       []string   `json:"decors" yaml:"decors" validate:"omitempty,dive,required"`
	IsActive     *bool      `json:"isActive,omitempty" yaml:"isActive"`
	IsDefault    bool       `json:"isDefault" yaml:"isDefault"`
}

func (in PlanInput) String() string {
	return fmt.Sprintf("plan %q (designs=%d uploads=%d)", in.Name, in.Limits.DesignsPerMonth, in.Limits.ImageUploadsPerDesign)
}

// PlanRepository persists the plan registry.
type PlanRepository interface {
	Create(ctx context.Context, plan *Plan) error
	GetByID(ctx context.Context, id string) (*Plan, error)
	GetByName(ctx context.Context, name string) (*Plan, error)
	GetDefault(ctx context.Context) (*Plan, error)
	List(ctx context.Context, activeOnly bool) ([]*Plan, error)
	Update(ctx context.Context, plan *Plan) error
	ClearDefault(ctx context.Context, exceptID string) error
	Delete(ctx context.Context, id string) error
}

// PlanService manages the plan registry.
type PlanService interface {
	ListPlans(ctx context.Context, includeInactive bool) ([]*Plan, error)
	GetPlan(ctx context.Context, id string) (*Plan, error)
	CreatePlan(ctx context.Context, input PlanInput) (*Plan, error)
	UpdatePlan(ctx context.Context, id string, input PlanInput) (*Plan, error)
	DeletePlan(ctx context.Context, id string) error
}
