package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"walldraft/internal/domain"
	"walldraft/internal/metrics"
)

// upgradeService runs the plan change approval workflow:
// pending -> approved | rejected, with no way back out of a terminal state.
type upgradeService struct {
	requests domain.UpgradeRequestRepository
	users    domain.UserRepository
	plans    domain.PlanRepository
	clock    quartz.Clock
	metrics  *metrics.Metrics
	logger   domain.Logger

	// resolveMu serializes approve and reject within this process. The store
	// compare-and-swap still decides between processes.
	resolveMu sync.Mutex
}

func NewUpgradeService(
	requests domain.UpgradeRequestRepository,
	users domain.UserRepository,
	plans domain.PlanRepository,
	clock quartz.Clock,
	m *metrics.Metrics,
	logger domain.Logger,
) *upgradeService {
	return &upgradeService{
		requests: requests,
		users:    users,
		plans:    plans,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// Request records a pending plan change. planRef is a plan ID or name. Earlier
// pending requests from the same user are left in place; GetStatus reports the newest.
func (s *upgradeService) Request(ctx context.Context, userID string, planRef string) (*domain.PlanUpgradeRequest, error) {
	planRef = strings.TrimSpace(planRef)
	if planRef == "" {
		return nil, &domain.ValidationError{Field: "plan", Message: "is required"}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan, err := s.lookupPlan(ctx, planRef)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, &domain.ValidationError{Field: "plan", Message: fmt.Sprintf("plan %q is not available", plan.Name)}
	}
	if user.PlanID == plan.ID {
		return nil, &domain.ValidationError{Field: "plan", Message: fmt.Sprintf("already on plan %q", plan.Name)}
	}

	req := &domain.PlanUpgradeRequest{
		ID:                uuid.NewString(),
		UserID:            userID,
		RequestedPlanID:   plan.ID,
		RequestedPlanName: plan.Name,
		Status:            domain.UpgradeStatusPending,
		CreatedAt:         s.clock.Now().UTC(),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info("Plan upgrade requested", "request_id", req.ID, "user_id", userID, "plan", plan.Name)
	return req, nil
}

// Approve moves the user onto the requested plan and then marks the request approved,
// so a poller never sees approved before the plan has changed. If the request was
// resolved elsewhere in between, the user's previous plan is restored unless that
// resolution was also an approval.
func (s *upgradeService) Approve(ctx context.Context, requestID string, adminID string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}

	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	req, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return err
	}

	plan, err := s.plans.GetByID(ctx, req.RequestedPlanID)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return err
	}
	previousPlanID := user.PlanID

	if err := s.users.UpdatePlan(ctx, req.UserID, plan.ID); err != nil {
		return fmt.Errorf("assign plan: %w", err)
	}
	if err := s.requests.Resolve(ctx, requestID, domain.UpgradeStatusApproved, adminID, s.clock.Now().UTC()); err != nil {
		s.logger.Warn("Upgrade request resolved concurrently", "request_id", requestID, "error", err)
		s.rollbackPlan(ctx, req, previousPlanID)
		return err
	}

	s.metrics.UpgradeResolved(string(domain.UpgradeStatusApproved))
	s.logger.Info("Plan upgrade approved", "request_id", requestID, "user_id", req.UserID, "plan", plan.Name, "admin_id", adminID)
	return nil
}

// rollbackPlan puts the user back on previousPlanID after a lost approval, unless
// the request ended up approved anyway.
func (s *upgradeService) rollbackPlan(ctx context.Context, req *domain.PlanUpgradeRequest, previousPlanID string) {
	final, err := s.requests.GetByID(ctx, req.ID)
	if err == nil && final.Status == domain.UpgradeStatusApproved {
		return
	}
	if err := s.users.UpdatePlan(ctx, req.UserID, previousPlanID); err != nil {
		s.logger.Error("Failed to restore plan after lost approval", err,
			"request_id", req.ID, "user_id", req.UserID, "plan_id", previousPlanID)
		return
	}
	s.logger.Info("Plan restored after lost approval", "request_id", req.ID, "user_id", req.UserID, "plan_id", previousPlanID)
}

func (s *upgradeService) Reject(ctx context.Context, requestID string, adminID string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}

	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	req, err := s.pendingRequest(ctx, requestID)
	if err != nil {
		return err
	}

	if err := s.requests.Resolve(ctx, requestID, domain.UpgradeStatusRejected, adminID, s.clock.Now().UTC()); err != nil {
		return err
	}

	s.metrics.UpgradeResolved(string(domain.UpgradeStatusRejected))
	s.logger.Info("Plan upgrade rejected", "request_id", requestID, "user_id", req.UserID, "admin_id", adminID)
	return nil
}

// GetStatus returns the newest pending request, else the newest request of any
// status, else nil.
func (s *upgradeService) GetStatus(ctx context.Context, userID string) (*domain.PlanUpgradeRequest, error) {
	reqs, err := s.requests.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	for _, r := range reqs {
		if r.Status == domain.UpgradeStatusPending {
			return r, nil
		}
	}
	return reqs[0], nil
}

// ListRequests lists requests newest first. Pending listings keep only the newest
// pending request per user.
func (s *upgradeService) ListRequests(ctx context.Context, status *domain.UpgradeStatus) ([]*domain.PlanUpgradeRequest, error) {
	if status != nil && !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: "must be pending, approved or rejected"}
	}
	reqs, err := s.requests.List(ctx, status)
	if err != nil {
		return nil, err
	}
	if status == nil || *status != domain.UpgradeStatusPending {
		return reqs, nil
	}

	seen := make(map[string]bool, len(reqs))
	out := make([]*domain.PlanUpgradeRequest, 0, len(reqs))
	for _, r := range reqs {
		if seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		out = append(out, r)
	}
	return out, nil
}

func (s *upgradeService) requireAdmin(ctx context.Context, adminID string) error {
	if adminID == "" {
		return domain.ErrForbidden
	}
	admin, err := s.users.GetByID(ctx, adminID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrForbidden
	}
	if err != nil {
		return err
	}
	if !admin.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

func (s *upgradeService) pendingRequest(ctx context.Context, requestID string) (*domain.PlanUpgradeRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.UpgradeStatusPending {
		return nil, fmt.Errorf("upgrade request %s is already %s: %w", requestID, req.Status, domain.ErrConflict)
	}
	return req, nil
}

func (s *upgradeService) lookupPlan(ctx context.Context, ref string) (*domain.Plan, error) {
	plan, err := s.plans.GetByID(ctx, ref)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, domain.ErrPlanNotFound) {
		return nil, err
	}
	return s.plans.GetByName(ctx, ref)
}
