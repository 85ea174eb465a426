package service

import (
	"context"
	"errors"
	"strings"

	"github.com/coder/quartz"

	"walldraft/internal/domain"
)

const (
	minSearchLength = 2
	searchLimit     = 10
)

type userService struct {
	users  domain.UserRepository
	plans  domain.PlanRepository
	quota  domain.QuotaService
	clock  quartz.Clock
	logger domain.Logger
}

func NewUserService(
	users domain.UserRepository,
	plans domain.PlanRepository,
	quota domain.QuotaService,
	clock quartz.Clock,
	logger domain.Logger,
) *userService {
	return &userService{
		users:  users,
		plans:  plans,
		quota:  quota,
		clock:  clock,
		logger: logger,
	}
}

// EnsureUser returns the application user for an authenticated identity, creating it
// on the default plan the first time the identity is seen.
func (s *userService) EnsureUser(ctx context.Context, authUser *domain.SupabaseUser) (*domain.User, error) {
	if authUser == nil || authUser.ID == "" {
		return nil, domain.ErrUserNotFound
	}

	user, err := s.users.GetByID(ctx, authUser.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	planID := ""
	if def, err := s.plans.GetDefault(ctx); err == nil {
		planID = def.ID
	} else if !errors.Is(err, domain.ErrPlanNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC()
	user = &domain.User{
		ID:        authUser.ID,
		Email:     authUser.Email,
		Name:      displayName(authUser),
		PlanID:    planID,
		UserType:  domain.UserTypeRegular,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", "user_id", user.ID, "plan_id", planID)
	return s.users.GetByID(ctx, user.ID)
}

func (s *userService) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan, err := s.quota.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.UserProfile{User: user, Plan: plan}, nil
}

func (s *userService) SearchUsers(ctx context.Context, query string) ([]*domain.User, error) {
	query = strings.TrimSpace(query)
	if len(query) < minSearchLength {
		return nil, &domain.ValidationError{Field: "q", Message: "must be at least 2 characters"}
	}
	return s.users.Search(ctx, query, searchLimit)
}

func displayName(u *domain.SupabaseUser) string {
	for _, key := range []string{"full_name", "name"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}
