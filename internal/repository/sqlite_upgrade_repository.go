package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"walldraft/internal/domain"
)

const upgradeColumns = `id, user_id, requested_plan_id, requested_plan_name, status,
	resolved_by, created_at, resolved_at`

// SQLiteUpgradeRepository implements domain.UpgradeRequestRepository on the embedded store.
type SQLiteUpgradeRepository struct {
	db     *sql.DB
	logger domain.Logger
}

func NewSQLiteUpgradeRepository(db *sql.DB, logger domain.Logger) *SQLiteUpgradeRepository {
	return &SQLiteUpgradeRepository{db: db, logger: logger}
}

func (r *SQLiteUpgradeRepository) Create(ctx context.Context, req *domain.PlanUpgradeRequest) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO plan_upgrade_requests (`+upgradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.UserID, req.RequestedPlanID, req.RequestedPlanName, string(req.Status),
		nullString(req.ResolvedBy), formatTimestamp(req.CreatedAt), nullTime(req.ResolvedAt))
	if err != nil {
		return fmt.Errorf("failed to create upgrade request: %w", err)
	}
	return nil
}

func (r *SQLiteUpgradeRepository) GetByID(ctx context.Context, id string) (*domain.PlanUpgradeRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+upgradeColumns+` FROM plan_upgrade_requests WHERE id = ?`, id)
	req, err := scanUpgradeRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upgrade request: %w", err)
	}
	return req, nil
}

func (r *SQLiteUpgradeRepository) ListByUser(ctx context.Context, userID string) ([]*domain.PlanUpgradeRequest, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+upgradeColumns+` FROM plan_upgrade_requests
		WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list upgrade requests: %w", err)
	}
	return collectUpgradeRequests(rows)
}

func (r *SQLiteUpgradeRepository) List(ctx context.Context, status *domain.UpgradeStatus) ([]*domain.PlanUpgradeRequest, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		rows, err = r.db.QueryContext(ctx, `SELECT `+upgradeColumns+` FROM plan_upgrade_requests
			WHERE status = ? ORDER BY created_at DESC, rowid DESC`, string(*status))
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+upgradeColumns+` FROM plan_upgrade_requests
			ORDER BY created_at DESC, rowid DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list upgrade requests: %w", err)
	}
	return collectUpgradeRequests(rows)
}

func (r *SQLiteUpgradeRepository) Resolve(ctx context.Context, id string, status domain.UpgradeStatus, adminID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE plan_upgrade_requests
		SET status = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		string(status), nullStringValue(adminID), formatTimestamp(at), id, string(domain.UpgradeStatusPending))
	if err != nil {
		return fmt.Errorf("failed to resolve upgrade request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("upgrade request %s is not pending: %w", id, domain.ErrConflict)
	}
	return nil
}

func collectUpgradeRequests(rows *sql.Rows) ([]*domain.PlanUpgradeRequest, error) {
	defer rows.Close()
	out := []*domain.PlanUpgradeRequest{}
	for rows.Next() {
		req, err := scanUpgradeRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upgrade request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanUpgradeRequest(s rowScanner) (*domain.PlanUpgradeRequest, error) {
	var (
		req        domain.PlanUpgradeRequest
		status     string
		resolvedBy sql.NullString
		createdAt  string
		resolvedAt sql.NullString
	)
	if err := s.Scan(&req.ID, &req.UserID, &req.RequestedPlanID, &req.RequestedPlanName, &status,
		&resolvedBy, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	req.Status = domain.UpgradeStatus(status)
	req.ResolvedBy = stringFromNull(resolvedBy)
	if t := parseTimestamp(createdAt); t != nil {
		req.CreatedAt = *t
	}
	if resolvedAt.Valid {
		req.ResolvedAt = parseTimestamp(resolvedAt.String)
	}
	return &req, nil
}
