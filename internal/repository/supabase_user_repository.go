package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"walldraft/internal/domain"
)

// SupabaseUserRepository implements domain.UserRepository on the public users table.
type SupabaseUserRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

func NewSupabaseUserRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabaseUserRepository {
	return &SupabaseUserRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *SupabaseUserRepository) Create(ctx context.Context, user *domain.User) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	row := map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"plan_id":    nullableString(user.PlanID),
		"user_type":  string(user.UserType),
		"created_at": formatTimestamp(user.CreatedAt),
		"updated_at": formatTimestamp(user.UpdatedAt),
	}

	// Upsert keeps concurrent first requests of the same user from failing.
	if _, _, err := client.From(tableUsers).Insert(row, true, "id", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SupabaseUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(tableUsers).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	users, err := decodeUsers(data)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return users[0], nil
}

func (r *SupabaseUserRepository) UpdatePlan(ctx context.Context, userID string, planID string) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	data, _, err := client.From(tableUsers).
		Update(map[string]interface{}{
			"plan_id":    planID,
			"updated_at": formatTimestamp(time.Now()),
		}, "representation", "").
		Eq("id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update user plan: %w", err)
	}
	users, err := decodeUsers(data)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *SupabaseUserRepository) Search(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	q := sanitizeSearch(query)
	if q == "" {
		return []*domain.User{}, nil
	}

	data, _, err := client.From(tableUsers).
		Select("*", "", false).
		Or(fmt.Sprintf("email.ilike.*%s*,name.ilike.*%s*", q, q), "").
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return decodeUsers(data)
}

func decodeUsers(data []byte) ([]*domain.User, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	out := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapToUser(row))
	}
	return out, nil
}

func mapToUser(data map[string]interface{}) *domain.User {
	u := &domain.User{
		ID:        getString(data, "id"),
		Email:     getString(data, "email"),
		Name:      getString(data, "name"),
		PlanID:    getString(data, "plan_id"),
		UserType:  domain.UserType(getString(data, "user_type")),
		CreatedAt: getTime(data, "created_at"),
		UpdatedAt: getTime(data, "updated_at"),
	}
	if u.UserType == "" {
		u.UserType = domain.UserTypeRegular
	}
	return u
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
