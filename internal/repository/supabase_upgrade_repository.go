package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"walldraft/internal/domain"

	"github.com/supabase-community/postgrest-go"
)

// SupabaseUpgradeRepository implements domain.UpgradeRequestRepository.
type SupabaseUpgradeRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

func NewSupabaseUpgradeRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabaseUpgradeRepository {
	return &SupabaseUpgradeRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *SupabaseUpgradeRepository) Create(ctx context.Context, req *domain.PlanUpgradeRequest) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	row := map[string]interface{}{
		"id":                  req.ID,
		"user_id":             req.UserID,
		"requested_plan_id":   req.RequestedPlanID,
		"requested_plan_name": req.RequestedPlanName,
		"status":              string(req.Status),
		"created_at":          formatTimestamp(req.CreatedAt),
	}
	if _, _, err := client.From(tableUpgradeRequests).Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to create upgrade request: %w", err)
	}
	return nil
}

func (r *SupabaseUpgradeRepository) GetByID(ctx context.Context, id string) (*domain.PlanUpgradeRequest, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(tableUpgradeRequests).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get upgrade request: %w", err)
	}
	reqs, err := decodeUpgradeRequests(data)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, domain.ErrRequestNotFound
	}
	return reqs[0], nil
}

func (r *SupabaseUpgradeRepository) ListByUser(ctx context.Context, userID string) ([]*domain.PlanUpgradeRequest, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(tableUpgradeRequests).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list upgrade requests: %w", err)
	}
	return decodeUpgradeRequests(data)
}

func (r *SupabaseUpgradeRepository) List(ctx context.Context, status *domain.UpgradeStatus) ([]*domain.PlanUpgradeRequest, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	query := client.From(tableUpgradeRequests).Select("*", "", false)
	if status != nil {
		query = query.Eq("status", string(*status))
	}
	data, _, err := query.Order("created_at", &postgrest.OrderOpts{Ascending: false}).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list upgrade requests: %w", err)
	}
	return decodeUpgradeRequests(data)
}

// Resolve only matches rows still pending, so two admins racing on one request
// produce exactly one transition.
func (r *SupabaseUpgradeRepository) Resolve(ctx context.Context, id string, status domain.UpgradeStatus, adminID string, at time.Time) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	data, _, err := client.From(tableUpgradeRequests).
		Update(map[string]interface{}{
			"status":      string(status),
			"resolved_by": nullableString(adminID),
			"resolved_at": formatTimestamp(at),
		}, "representation", "").
		Eq("id", id).
		Eq("status", string(domain.UpgradeStatusPending)).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to resolve upgrade request: %w", err)
	}
	reqs, err := decodeUpgradeRequests(data)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("upgrade request %s is not pending: %w", id, domain.ErrConflict)
	}
	return nil
}

func decodeUpgradeRequests(data []byte) ([]*domain.PlanUpgradeRequest, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	out := make([]*domain.PlanUpgradeRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapToUpgradeRequest(row))
	}
	return out, nil
}

func mapToUpgradeRequest(data map[string]interface{}) *domain.PlanUpgradeRequest {
	return &domain.PlanUpgradeRequest{
		ID:                getString(data, "id"),
		UserID:            getString(data, "user_id"),
		RequestedPlanID:   getString(data, "requested_plan_id"),
		RequestedPlanName: getString(data, "requested_plan_name"),
		Status:            domain.UpgradeStatus(getString(data, "status")),
		ResolvedBy:        getStringPointer(data, "resolved_by"),
		CreatedAt:         getTime(data, "created_at"),
		ResolvedAt:        getTimePointer(data, "resolved_at"),
	}
}
