package domain

import (
	"context"
	"time"
)

// UpgradeStatus is the state of a plan upgrade request.
type UpgradeStatus string

const (
	UpgradeStatusPending  UpgradeStatus = "pending"
	UpgradeStatusApproved UpgradeStatus = "approved"
	UpgradeStatusRejected UpgradeStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s UpgradeStatus) IsTerminal() bool {
	return s == UpgradeStatusApproved || s == UpgradeStatusRejected
}

// Valid reports whether s is a known status.
func (s UpgradeStatus) Valid() bool {
	return s == UpgradeStatusPending || s.IsTerminal()
}

// PlanUpgradeRequest is a user's request to move to another plan.
type PlanUpgradeRequest struct {
	ID                string        `json:"id"`
	UserID            string        `json:"userId"`
	RequestedPlanID   string        `json:"requestedPlanId"`
	RequestedPlanName string        `json:"requestedPlan"`
	Status            UpgradeStatus `json:"status"`
	ResolvedBy        *string       `json:"resolvedBy,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	ResolvedAt        *time.Time    `json:"resolvedAt,omitempty"`
}

// UpgradeRequestRepository persists upgrade requests. ListByUser returns newest first.
// Resolve moves a pending request to a terminal status and fails with ErrConflict when
// the request is no longer pending.
type UpgradeRequestRepository interface {
	Create(ctx context.Context, req *PlanUpgradeRequest) error
	GetByID(ctx context.Context, id string) (*PlanUpgradeRequest, error)
	ListByUser(ctx context.Context, userID string) ([]*PlanUpgradeRequest, error)
	List(ctx context.Context, status *UpgradeStatus) ([]*PlanUpgradeRequest, error)
	Resolve(ctx context.Context, id string, status UpgradeStatus, adminID string, at time.Time) error
}

// UpgradeService is the plan upgrade approval workflow.
type UpgradeService interface {
	Request(ctx context.Context, userID string, planRef string) (*PlanUpgradeRequest, error)
	Approve(ctx context.Context, requestID string, adminID string) error
	Reject(ctx context.Context, requestID string, adminID string) error
	GetStatus(ctx context.Context, userID string) (*PlanUpgradeRequest, error)
	ListRequests(ctx context.Context, status *UpgradeStatus) ([]*PlanUpgradeRequest, error)
}
