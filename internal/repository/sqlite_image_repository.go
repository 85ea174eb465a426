package repository

import (
	"context"
	"database/sql"
	"fmt"

	"walldraft/internal/domain"
)

// SQLiteImageRepository implements domain.ImageRepository on the embedded store.
type SQLiteImageRepository struct {
	db     *sql.DB
	logger domain.Logger
}

func NewSQLiteImageRepository(db *sql.DB, logger domain.Logger) *SQLiteImageRepository {
	return &SQLiteImageRepository{db: db, logger: logger}
}

func (r *SQLiteImageRepository) Create(ctx context.Context, image *domain.DraftImage) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO draft_images (id, draft_id, uploader_id, url, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		image.ID, image.DraftID, nullString(image.UploaderID), image.URL, formatTimestamp(image.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record draft image: %w", err)
	}
	return nil
}

func (r *SQLiteImageRepository) CountByDraft(ctx context.Context, draftID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM draft_images WHERE draft_id = ?`, draftID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count draft images: %w", err)
	}
	return n, nil
}

func (r *SQLiteImageRepository) DeleteByDraft(ctx context.Context, draftID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM draft_images WHERE draft_id = ?`, draftID); err != nil {
		return fmt.Errorf("failed to delete draft images: %w", err)
	}
	return nil
}
