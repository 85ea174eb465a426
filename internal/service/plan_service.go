package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"walldraft/internal/domain"
)

type planService struct {
	plans  domain.PlanRepository
	clock  quartz.Clock
	logger domain.Logger
}

func NewPlanService(plans domain.PlanRepository, clock quartz.Clock, logger domain.Logger) *planService {
	return &planService{
		plans:  plans,
		clock:  clock,
		logger: logger,
	}
}

func (s *planService) ListPlans(ctx context.Context, includeInactive bool) ([]*domain.Plan, error) {
	return s.plans.List(ctx, !includeInactive)
}

func (s *planService) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	return s.plans.GetByID(ctx, id)
}

func (s *planService) CreatePlan(ctx context.Context, input domain.PlanInput) (*domain.Plan, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validatePlanInput(input); err != nil {
		return nil, err
	}

	if _, err := s.plans.GetByName(ctx, input.Name); err == nil {
		return nil, fmt.Errorf("plan name %q already exists: %w", input.Name, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrPlanNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC()
	plan := &domain.Plan{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}
	applyPlanInput(plan, input, now)

	if plan.IsDefault {
		if err := s.plans.ClearDefault(ctx, plan.ID); err != nil {
			return nil, err
		}
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("Plan created", "plan_id", plan.ID, "plan", input)
	return plan, nil
}

// UpdatePlan replaces the editable fields. Users reference plans by ID, so a rename
// keeps every assignment intact.
func (s *planService) UpdatePlan(ctx context.Context, id string, input domain.PlanInput) (*domain.Plan, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validatePlanInput(input); err != nil {
		return nil, err
	}

	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != plan.Name {
		other, err := s.plans.GetByName(ctx, input.Name)
		if err == nil && other.ID != id {
			return nil, fmt.Errorf("plan name %q already exists: %w", input.Name, domain.ErrConflict)
		}
		if err != nil && !errors.Is(err, domain.ErrPlanNotFound) {
			return nil, err
		}
	}

	if input.IsActive == nil {
		active := plan.IsActive
		input.IsActive = &active
	}
	applyPlanInput(plan, input, s.clock.Now().UTC())

	if plan.IsDefault {
		if err := s.plans.ClearDefault(ctx, plan.ID); err != nil {
			return nil, err
		}
	}
	if err := s.plans.Update(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("Plan updated", "plan_id", plan.ID, "plan", input)
	return plan, nil
}

// DeletePlan removes a plan. Users still assigned to it fall back to the default
// plan on their next evaluation. The default plan itself cannot be deleted.
func (s *planService) DeletePlan(ctx context.Context, id string) error {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if plan.IsDefault {
		return fmt.Errorf("plan %q is the default plan: %w", plan.Name, domain.ErrConflict)
	}
	if err := s.plans.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Plan deleted", "plan_id", id, "name", plan.Name)
	return nil
}

// SeedPlans creates every plan whose name is not registered yet. Existing plans are
// left as they are so admin edits survive restarts.
func (s *planService) SeedPlans(ctx context.Context, inputs []domain.PlanInput) (int, error) {
	created := 0
	for _, input := range inputs {
		_, err := s.plans.GetByName(ctx, strings.TrimSpace(input.Name))
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrPlanNotFound) {
			return created, err
		}
		if _, err := s.CreatePlan(ctx, input); err != nil {
			return created, fmt.Errorf("seed plan %q: %w", input.Name, err)
		}
		created++
	}
	return created, nil
}

func validatePlanInput(input domain.PlanInput) error {
	if err := validateStruct(input); err != nil {
		return err
	}
	if err := input.Limits.Validate(); err != nil {
		return err
	}
	if input.IsDefault && input.IsActive != nil && !*input.IsActive {
		return &domain.ValidationError{Field: "isDefault", Message: "the default plan must be active"}
	}
	return nil
}

func applyPlanInput(plan *domain.Plan, input domain.PlanInput, now time.Time) {
	plan.Name = input.Name
	plan.Limits = input.Limits
	plan.ExportDrafts = input.ExportDrafts
	plan.Decors = append([]string{}, input.Decors...)
	plan.IsActive = input.IsActive == nil || *input.IsActive
	plan.IsDefault = input.IsDefault
	plan.UpdatedAt = now
}
