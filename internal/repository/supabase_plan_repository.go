package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"walldraft/internal/domain"

	"github.com/supabase-community/postgrest-go"
)

// SupabasePlanRepository implements domain.PlanRepository on the plans table.
type SupabasePlanRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

func NewSupabasePlanRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabasePlanRepository {
	return &SupabasePlanRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *SupabasePlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	row := planToRow(plan)
	row["id"] = plan.ID
	row["created_at"] = formatTimestamp(plan.CreatedAt)

	if _, _, err := client.From(tablePlans).Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *SupabasePlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	return r.getOne("id", id)
}

func (r *SupabasePlanRepository) GetByName(ctx context.Context, name string) (*domain.Plan, error) {
	return r.getOne("name", name)
}

func (r *SupabasePlanRepository) GetDefault(ctx context.Context) (*domain.Plan, error) {
	return r.getOne("is_default", "true")
}

func (r *SupabasePlanRepository) getOne(column, value string) (*domain.Plan, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(tablePlans).
		Select("*", "", false).
		Eq(column, value).
		Limit(1, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	plans, err := decodePlans(data)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, domain.ErrPlanNotFound
	}
	return plans[0], nil
}

func (r *SupabasePlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	query := client.From(tablePlans).Select("*", "", false)
	if activeOnly {
		query = query.Eq("is_active", "true")
	}
	data, _, err := query.Order("created_at", &postgrest.OrderOpts{Ascending: true}).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return decodePlans(data)
}

func (r *SupabasePlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	data, _, err := client.From(tablePlans).
		Update(planToRow(plan), "representation", "").
		Eq("id", plan.ID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	plans, err := decodePlans(data)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

func (r *SupabasePlanRepository) ClearDefault(ctx context.Context, exceptID string) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	query := client.From(tablePlans).
		Update(map[string]interface{}{"is_default": false}, "", "").
		Eq("is_default", "true")
	if exceptID != "" {
		query = query.Neq("id", exceptID)
	}
	if _, _, err := query.Execute(); err != nil {
		return fmt.Errorf("failed to clear default plan: %w", err)
	}
	return nil
}

func (r *SupabasePlanRepository) Delete(ctx context.Context, id string) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	data, _, err := client.From(tablePlans).Delete("representation", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	plans, err := decodePlans(data)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

func planToRow(plan *domain.Plan) map[string]interface{} {
	return map[string]interface{}{
		"name":                     plan.Name,
		"designs_per_month":        plan.Limits.DesignsPerMonth,
		"image_uploads_per_design": plan.Limits.ImageUploadsPerDesign,
		"export_drafts":            plan.ExportDrafts,
		"decors":                   nonNilIDs(plan.Decors),
		"is_active":                plan.IsActive,
		"is_default":               plan.IsDefault,
		"updated_at":               formatTimestamp(plan.UpdatedAt),
	}
}

func decodePlans(data []byte) ([]*domain.Plan, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	out := make([]*domain.Plan, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapToPlan(row))
	}
	return out, nil
}

func mapToPlan(data map[string]interface{}) *domain.Plan {
	return &domain.Plan{
		ID:   getString(data, "id"),
		Name: getString(data, "name"),
		Limits: domain.PlanLimits{
			DesignsPerMonth:       getInt(data, "designs_per_month"),
			ImageUploadsPerDesign: getInt(data, "image_uploads_per_design"),
		},
		ExportDrafts: getBool(data, "export_drafts"),
		Decors:       getStringArray(data, "decors"),
		IsActive:     getBool(data, "is_active"),
		IsDefault:    getBool(data, "is_default"),
		CreatedAt:    getTime(data, "created_at"),
		UpdatedAt:    getTime(data, "updated_at"),
	}
}
