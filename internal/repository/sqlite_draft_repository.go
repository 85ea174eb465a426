package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"walldraft/internal/domain"
)

const draftColumns = `id, user_id, name, wall_data, preview_url, is_public, share_token,
	share_token_expires, link_permission, shared_with, version, created_at, updated_at`

// SQLiteDraftRepository implements domain.DraftRepository on the embedded store.
type SQLiteDraftRepository struct {
	db     *sql.DB
	logger domain.Logger
}

func NewSQLiteDraftRepository(db *sql.DB, logger domain.Logger) *SQLiteDraftRepository {
	return &SQLiteDraftRepository{db: db, logger: logger}
}

func (r *SQLiteDraftRepository) Create(ctx context.Context, draft *domain.Draft) error {
	if draft.Version == 0 {
		draft.Version = 1
	}
	wallData := string(draft.WallData)
	if wallData == "" {
		wallData = "{}"
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO drafts (`+draftColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.ID, draft.UserID, draft.Name, wallData, draft.PreviewURL, draft.IsPublic,
		nullString(draft.ShareToken), nullTime(draft.ShareTokenExpires), string(draft.LinkPermission),
		encodeIDs(draft.SharedWith), draft.Version,
		formatTimestamp(draft.CreatedAt), formatTimestamp(draft.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

func (r *SQLiteDraftRepository) GetByID(ctx context.Context, id string) (*domain.Draft, error) {
	return getDraft(ctx, r.db, id)
}

func (r *SQLiteDraftRepository) ListByOwner(ctx context.Context, userID string) ([]*domain.Draft, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+draftColumns+` FROM drafts
		WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return collectDrafts(rows)
}

func (r *SQLiteDraftRepository) ListSharedWith(ctx context.Context, userID string) ([]*domain.Draft, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+draftColumns+` FROM drafts
		WHERE EXISTS (SELECT 1 FROM json_each(drafts.shared_with) WHERE json_each.value = ?)
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared drafts: %w", err)
	}
	return collectDrafts(rows)
}

func (r *SQLiteDraftRepository) CountByOwner(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drafts WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count drafts: %w", err)
	}
	return n, nil
}

func (r *SQLiteDraftRepository) UpdateContent(ctx context.Context, id string, update domain.DraftUpdate) (*domain.Draft, error) {
	sets := []string{"updated_at = ?", "version = version + 1"}
	args := []any{formatTimestamp(time.Now())}
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.WallData != nil {
		sets = append(sets, "wall_data = ?")
		args = append(args, string(update.WallData))
	}
	if update.PreviewURL != nil {
		sets = append(sets, "preview_url = ?")
		args = append(args, *update.PreviewURL)
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, `UPDATE drafts SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrDraftNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *SQLiteDraftRepository) UpdateShareState(ctx context.Context, id string, state domain.ShareState) error {
	res, err := r.db.ExecContext(ctx, `UPDATE drafts SET is_public = ?, share_token = ?,
		share_token_expires = ?, link_permission = ?, updated_at = ?, version = version + 1
		WHERE id = ?`,
		state.IsPublic, nullString(state.ShareToken), nullTime(state.ShareTokenExpires),
		string(state.LinkPermission), formatTimestamp(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update share state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDraftNotFound
	}
	return nil
}

func (r *SQLiteDraftRepository) AddSharedUsers(ctx context.Context, id string, userIDs []string) (*domain.Draft, error) {
	return r.mutateSharedWith(ctx, id, func(existing []string) ([]string, bool) {
		return mergeIDs(existing, userIDs)
	})
}

func (r *SQLiteDraftRepository) RemoveSharedUser(ctx context.Context, id string, userID string) error {
	_, err := r.mutateSharedWith(ctx, id, func(existing []string) ([]string, bool) {
		return removeID(existing, userID)
	})
	return err
}

func (r *SQLiteDraftRepository) mutateSharedWith(ctx context.Context, id string, fn func([]string) ([]string, bool)) (*domain.Draft, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := getDraft(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	next, changed := fn(current.SharedWith)
	if !changed {
		return current, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE drafts SET shared_with = ?, updated_at = ?,
		version = version + 1 WHERE id = ?`,
		encodeIDs(next), formatTimestamp(time.Now()), id); err != nil {
		return nil, fmt.Errorf("failed to update shared_with: %w", err)
	}
	updated, err := getDraft(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (r *SQLiteDraftRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDraft(ctx context.Context, q queryer, id string) (*domain.Draft, error) {
	row := q.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

func collectDrafts(rows *sql.Rows) ([]*domain.Draft, error) {
	defer rows.Close()
	out := []*domain.Draft{}
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDraft(s rowScanner) (*domain.Draft, error) {
	var (
		d          domain.Draft
		wallData   string
		token      sql.NullString
		expires    sql.NullString
		permission string
		sharedWith string
		createdAt  string
		updatedAt  string
	)
	if err := s.Scan(&d.ID, &d.UserID, &d.Name, &wallData, &d.PreviewURL, &d.IsPublic, &token,
		&expires, &permission, &sharedWith, &d.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.WallData = []byte(wallData)
	d.ShareToken = stringFromNull(token)
	if expires.Valid {
		d.ShareTokenExpires = parseTimestamp(expires.String)
	}
	d.LinkPermission = domain.LinkPermission(permission)
	if !d.LinkPermission.Valid() {
		d.LinkPermission = domain.LinkPermissionView
	}
	d.SharedWith = decodeIDs(sharedWith)
	if t := parseTimestamp(createdAt); t != nil {
		d.CreatedAt = *t
	}
	if t := parseTimestamp(updatedAt); t != nil {
		d.UpdatedAt = *t
	}
	return &d, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*t), Valid: true}
}
