package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"walldraft/internal/domain"

	"github.com/supabase-community/postgrest-go"
)

// maxCASAttempts bounds optimistic-concurrency retries on the shared_with set.
const maxCASAttempts = 5

// SupabaseDraftRepository implements domain.DraftRepository on the drafts table.
// The version column is bumped by a trigger on every UPDATE.
type SupabaseDraftRepository struct {
	supabaseClient domain.SupabaseClient
	logger         domain.Logger
}

// NewSupabaseDraftRepository creates a new Supabase draft repository
func NewSupabaseDraftRepository(supabaseClient domain.SupabaseClient, logger domain.Logger) *SupabaseDraftRepository {
	return &SupabaseDraftRepository{
		supabaseClient: supabaseClient,
		logger:         logger,
	}
}

func (r *SupabaseDraftRepository) Create(ctx context.Context, draft *domain.Draft) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	row := map[string]interface{}{
		"id":                  draft.ID,
		"user_id":             draft.UserID,
		"name":                draft.Name,
		"wall_data":           wallDataValue(draft.WallData),
		"preview_url":         draft.PreviewURL,
		"is_public":           draft.IsPublic,
		"share_token":         stringPointerValue(draft.ShareToken),
		"share_token_expires": formatTimestampPointer(draft.ShareTokenExpires),
		"link_permission":     string(draft.LinkPermission),
		"shared_with":         nonNilIDs(draft.SharedWith),
		"created_at":          formatTimestamp(draft.CreatedAt),
		"updated_at":          formatTimestamp(draft.UpdatedAt),
	}

	if _, _, err := client.From(tableDrafts).Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	r.logger.Debug("Draft row inserted", "draft_id", draft.ID, "user_id", draft.UserID)
	return nil
}

func (r *SupabaseDraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(tableDrafts).
		Select("*", "", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	drafts, err := decodeDrafts(data)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, domain.ErrDraftNotFound
	}
	return drafts[0], nil
}

func (r *SupabaseDraftRepository) ListByOwner(ctx context.Context, userID string) ([]*domain.Draft, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(tableDrafts).
		Select("*", "", false).
		Eq("user_id", userID).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return decodeDrafts(data)
}

func (r *SupabaseDraftRepository) ListSharedWith(ctx context.Context, userID string) ([]*domain.Draft, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	data, _, err := client.From(tableDrafts).
		Select("*", "", false).
		Filter("shared_with", "cs", "{"+userID+"}").
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list shared drafts: %w", err)
	}
	return decodeDrafts(data)
}

func (r *SupabaseDraftRepository) CountByOwner(ctx context.Context, userID string) (int, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return 0, err
	}

	_, count, err := client.From(tableDrafts).
		Select("id", "exact", true).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	return int(count), nil
}

func (r *SupabaseDraftRepository) UpdateContent(ctx context.Context, id string, update domain.DraftUpdate) (*domain.Draft, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	patch := map[string]interface{}{
		"updated_at": formatTimestamp(time.Now()),
	}
	if update.Name != nil {
		patch["name"] = *update.Name
	}
	if update.WallData != nil {
		patch["wall_data"] = wallDataValue(update.WallData)
	}
	if update.PreviewURL != nil {
		patch["preview_url"] = *update.PreviewURL
	}

	data, _, err := client.From(tableDrafts).
		Update(patch, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	drafts, err := decodeDrafts(data)
	if err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, domain.ErrDraftNotFound
	}
	return drafts[0], nil
}

// UpdateShareState writes every public-link field in one PATCH so readers never see a
// half-updated link.
func (r *SupabaseDraftRepository) UpdateShareState(ctx context.Context, id string, state domain.ShareState) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	patch := map[string]interface{}{
		"is_public":           state.IsPublic,
		"share_token":         stringPointerValue(state.ShareToken),
		"share_token_expires": formatTimestampPointer(state.ShareTokenExpires),
		"link_permission":     string(state.LinkPermission),
		"updated_at":          formatTimestamp(time.Now()),
	}

	data, _, err := client.From(tableDrafts).
		Update(patch, "representation", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update share state: %w", err)
	}
	drafts, err := decodeDrafts(data)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}

func (r *SupabaseDraftRepository) AddSharedUsers(ctx context.Context, id string, userIDs []string) (*domain.Draft, error) {
	return r.mutateSharedWith(ctx, id, func(existing []string) ([]string, bool) {
		return mergeIDs(existing, userIDs)
	})
}

func (r *SupabaseDraftRepository) RemoveSharedUser(ctx context.Context, id string, userID string) error {
	_, err := r.mutateSharedWith(ctx, id, func(existing []string) ([]string, bool) {
		return removeID(existing, userID)
	})
	return err
}

// mutateSharedWith applies fn with compare-and-swap on the version column.
func (r *SupabaseDraftRepository) mutateSharedWith(ctx context.Context, id string, fn func([]string) ([]string, bool)) (*domain.Draft, error) {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next, changed := fn(current.SharedWith)
		if !changed {
			return current, nil
		}

		data, _, err := client.From(tableDrafts).
			Update(map[string]interface{}{
				"shared_with": nonNilIDs(next),
				"updated_at":  formatTimestamp(time.Now()),
			}, "representation", "").
			Eq("id", id).
			Eq("version", strconv.FormatInt(current.Version, 10)).
			Execute()
		if err != nil {
			return nil, fmt.Errorf("failed to update shared_with: %w", err)
		}
		drafts, err := decodeDrafts(data)
		if err != nil {
			return nil, err
		}
		if len(drafts) > 0 {
			return drafts[0], nil
		}
		r.logger.Debug("shared_with version moved, retrying", "draft_id", id, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("update shared_with on draft %s: %w", id, domain.ErrConflict)
}

func (r *SupabaseDraftRepository) Delete(ctx context.Context, id string) error {
	client, err := supabaseDB(r.supabaseClient)
	if err != nil {
		return err
	}

	if _, _, err := client.From(tableDrafts).Delete("", "").Eq("id", id).Execute(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func decodeDrafts(data []byte) ([]*domain.Draft, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	out := make([]*domain.Draft, 0, len(rows))
	for _, row := range rows {
		out = append(out, mapToDraft(row))
	}
	return out, nil
}

func mapToDraft(data map[string]interface{}) *domain.Draft {
	d := &domain.Draft{
		ID:                getString(data, "id"),
		UserID:            getString(data, "user_id"),
		Name:              getString(data, "name"),
		WallData:          getRawJSON(data, "wall_data"),
		PreviewURL:        getString(data, "preview_url"),
		IsPublic:          getBool(data, "is_public"),
		ShareToken:        getStringPointer(data, "share_token"),
		ShareTokenExpires: getTimePointer(data, "share_token_expires"),
		LinkPermission:    domain.LinkPermission(getString(data, "link_permission")),
		SharedWith:        getStringArray(data, "shared_with"),
		Version:           getInt64(data, "version"),
		CreatedAt:         getTime(data, "created_at"),
		UpdatedAt:         getTime(data, "updated_at"),
	}
	if !d.LinkPermission.Valid() {
		d.LinkPermission = domain.LinkPermissionView
	}
	return d
}

// wallDataValue passes wall data through as a JSON value so PostgREST stores jsonb,
// not a JSON-encoded string.
func wallDataValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	return raw
}

func nonNilIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
