package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"walldraft/internal/domain"
)

const planColumns = `id, name, designs_per_month, image_uploads_per_design, export_drafts,
	decors, is_active, is_default, created_at, updated_at`

// SQLitePlanRepository implements domain.PlanRepository on the embedded store.
type SQLitePlanRepository struct {
	db     *sql.DB
	logger domain.Logger
}

func NewSQLitePlanRepository(db *sql.DB, logger domain.Logger) *SQLitePlanRepository {
	return &SQLitePlanRepository{db: db, logger: logger}
}

func (r *SQLitePlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Name, plan.Limits.DesignsPerMonth, plan.Limits.ImageUploadsPerDesign,
		plan.ExportDrafts, encodeIDs(plan.Decors), plan.IsActive, plan.IsDefault,
		formatTimestamp(plan.CreatedAt), formatTimestamp(plan.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("plan name %q already exists: %w", plan.Name, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *SQLitePlanRepository) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *SQLitePlanRepository) GetByName(ctx context.Context, name string) (*domain.Plan, error) {
	return r.getOne(ctx, `name = ?`, name)
}

func (r *SQLitePlanRepository) GetDefault(ctx context.Context) (*domain.Plan, error) {
	return r.getOne(ctx, `is_default = 1 ORDER BY updated_at DESC LIMIT 1`)
}

func (r *SQLitePlanRepository) getOne(ctx context.Context, where string, args ...any) (*domain.Plan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE `+where, args...)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

func (r *SQLitePlanRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	out := []*domain.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLitePlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	res, err := r.db.ExecContext(ctx, `UPDATE plans SET name = ?, designs_per_month = ?,
		image_uploads_per_design = ?, export_drafts = ?, decors = ?, is_active = ?,
		is_default = ?, updated_at = ? WHERE id = ?`,
		plan.Name, plan.Limits.DesignsPerMonth, plan.Limits.ImageUploadsPerDesign,
		plan.ExportDrafts, encodeIDs(plan.Decors), plan.IsActive, plan.IsDefault,
		formatTimestamp(plan.UpdatedAt), plan.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("plan name %q already exists: %w", plan.Name, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

func (r *SQLitePlanRepository) ClearDefault(ctx context.Context, exceptID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE plans SET is_default = 0 WHERE is_default = 1 AND id <> ?`, exceptID); err != nil {
		return fmt.Errorf("failed to clear default plan: %w", err)
	}
	return nil
}

func (r *SQLitePlanRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPlanNotFound
	}
	return nil
}

func scanPlan(s rowScanner) (*domain.Plan, error) {
	var (
		p         domain.Plan
		decors    string
		createdAt string
		updatedAt string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Limits.DesignsPerMonth, &p.Limits.ImageUploadsPerDesign,
		&p.ExportDrafts, &decors, &p.IsActive, &p.IsDefault, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(decors), &p.Decors); err != nil || p.Decors == nil {
		p.Decors = []string{}
	}
	if t := parseTimestamp(createdAt); t != nil {
		p.CreatedAt = *t
	}
	if t := parseTimestamp(updatedAt); t != nil {
		p.UpdatedAt = *t
	}
	return &p, nil
}
