package repository

import (
	"context"
	"fmt"

	"walldraft/internal/domain"
)

// SupabaseImageRepository implements domain.ImageRepository on draft_images.
type SupabaseImageRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

func NewSupabaseImageRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabaseImageRepository {
	return &SupabaseImageRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *SupabaseImageRepository) Create(ctx context.Context, image *domain.DraftImage) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	row := map[string]interface{}{
		"id":          image.ID,
		"draft_id":    image.DraftID,
		"uploader_id": stringPointerValue(image.UploaderID),
		"url":         image.URL,
		"created_at":  formatTimestamp(image.CreatedAt),
	}
	if _, _, err := client.From(tableDraftImages).Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to record draft image: %w", err)
	}
	return nil
}

func (r *SupabaseImageRepository) CountByDraft(ctx context.Context, draftID string) (int, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return 0, err
	}

	_, count, err := client.From(tableDraftImages).
		Select("id", "exact", true).
		Eq("draft_id", draftID).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to count draft images: %w", err)
	}
	return int(count), nil
}

func (r *SupabaseImageRepository) DeleteByDraft(ctx context.Context, draftID string) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	if _, _, err := client.From(tableDraftImages).Delete("", "").Eq("draft_id", draftID).Execute(); err != nil {
		return fmt.Errorf("failed to delete draft images: %w", err)
	}
	return nil
}
