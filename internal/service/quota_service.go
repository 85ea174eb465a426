package service

import (
	"context"
	"errors"
	"fmt"

	"walldraft/internal/domain"
	"walldraft/internal/metrics"
)

// quotaService evaluates plan limits. Plans and counts are read from the store on
// every call; nothing is cached between evaluations.
type quotaService struct {
	plans            domain.PlanRepository
	users            domain.UserRepository
	drafts           domain.DraftRepository
	images           domain.ImageRepository
	guestUploadLimit int
	metrics          *metrics.Metrics
	logger           domain.Logger
}

func NewQuotaService(
	plans domain.PlanRepository,
	users domain.UserRepository,
	drafts domain.DraftRepository,
	images domain.ImageRepository,
	guestUploadLimit int,
	m *metrics.Metrics,
	logger domain.Logger,
) *quotaService {
	return &quotaService{
		plans:            plans,
		users:            users,
		drafts:           drafts,
		images:           images,
		guestUploadLimit: guestUploadLimit,
		metrics:          m,
		logger:           logger,
	}
}

// EffectivePlan returns the plan that governs userID. Guests get the guest pseudo
// plan; users whose plan is missing or inactive fall back to the default plan.
func (s *quotaService) EffectivePlan(ctx context.Context, userID string) (*domain.Plan, error) {
	if userID == "" {
		return domain.GuestPlan(s.guestUploadLimit), nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	if user != nil && user.PlanID != "" {
		plan, err := s.plans.GetByID(ctx, user.PlanID)
		switch {
		case err == nil && plan.IsActive:
			return plan, nil
		case err == nil:
			s.logger.Warn("User plan is inactive, using default", "user_id", userID, "plan_id", user.PlanID)
		case errors.Is(err, domain.ErrPlanNotFound):
			s.logger.Warn("User plan no longer exists, using default", "user_id", userID, "plan_id", user.PlanID)
		default:
			return nil, err
		}
	}

	plan, err := s.plans.GetDefault(ctx)
	if errors.Is(err, domain.ErrPlanNotFound) {
		return domain.UnassignedPlan(), nil
	}
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return domain.UnassignedPlan(), nil
	}
	return plan, nil
}

func (s *quotaService) CanCreate(ctx context.Context, userID string, kind domain.ResourceKind, qctx domain.QuotaContext) (*domain.QuotaDecision, error) {
	plan, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	var limit, current int
	switch kind {
	case domain.ResourceDraft:
		limit = plan.Limits.DesignsPerMonth
		if userID != "" {
			current, err = s.drafts.CountByOwner(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("count drafts: %w", err)
			}
		}
	case domain.ResourceImageUpload:
		if qctx.DraftID == "" {
			return nil, &domain.ValidationError{Field: "draftId", Message: "is required for image uploads"}
		}
		limit = plan.Limits.ImageUploadsPerDesign
		current, err = s.images.CountByDraft(ctx, qctx.DraftID)
		if err != nil {
			return nil, fmt.Errorf("count draft images: %w", err)
		}
	default:
		return nil, &domain.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown resource kind %q", kind)}
	}

	unlimited := limit == domain.Unlimited
	return &domain.QuotaDecision{
		Allowed:   unlimited || current < limit,
		Limit:     limit,
		Current:   current,
		Unlimited: unlimited,
		PlanName:  plan.Name,
	}, nil
}

// Enforce is CanCreate that turns a denial into a *domain.QuotaExceededError.
func (s *quotaService) Enforce(ctx context.Context, userID string, kind domain.ResourceKind, qctx domain.QuotaContext) (*domain.QuotaDecision, error) {
	decision, err := s.CanCreate(ctx, userID, kind, qctx)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		s.metrics.QuotaDenied(string(kind))
		s.logger.Info("Quota denied", "user_id", userID, "kind", kind, "limit", decision.Limit, "current", decision.Current, "plan", decision.PlanName)
		return decision, &domain.QuotaExceededError{
			Kind:     kind,
			Limit:    decision.Limit,
			Current:  decision.Current,
			PlanName: decision.PlanName,
		}
	}
	return decision, nil
}

func (s *quotaService) IsDecorAllowed(ctx context.Context, userID string, decorID string) (bool, error) {
	plan, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return false, err
	}
	return plan.AllowsDecor(decorID), nil
}

func (s *quotaService) CanExport(ctx context.Context, userID string) (bool, error) {
	plan, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return false, err
	}
	return plan.ExportDrafts, nil
}
