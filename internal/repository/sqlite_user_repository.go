package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"walldraft/internal/domain"
)

const userColumns = `id, email, name, plan_id, user_type, created_at, updated_at`

// SQLiteUserRepository implements domain.UserRepository on the embedded store.
type SQLiteUserRepository struct {
	db     *sql.DB
	logger domain.Logger
}

func NewSQLiteUserRepository(db *sql.DB, logger domain.Logger) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db, logger: logger}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name,
			updated_at = excluded.updated_at`,
		user.ID, user.Email, user.Name, nullStringValue(user.PlanID), string(user.UserType),
		formatTimestamp(user.CreatedAt), formatTimestamp(user.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *SQLiteUserRepository) UpdatePlan(ctx context.Context, userID string, planID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET plan_id = ?, updated_at = ? WHERE id = ?`,
		planID, formatTimestamp(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("failed to update user plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *SQLiteUserRepository) Search(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	q := sanitizeSearch(query)
	if q == "" {
		return []*domain.User{}, nil
	}
	pattern := "%" + q + "%"

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users
		WHERE email LIKE ? OR name LIKE ? ORDER BY email LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	out := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u         domain.User
		planID    sql.NullString
		userType  string
		createdAt string
		updatedAt string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &planID, &userType, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.PlanID = planID.String
	u.UserType = domain.UserType(userType)
	if u.UserType == "" {
		u.UserType = domain.UserTypeRegular
	}
	if t := parseTimestamp(createdAt); t != nil {
		u.CreatedAt = *t
	}
	if t := parseTimestamp(updatedAt); t != nil {
		u.UpdatedAt = *t
	}
	return &u, nil
}
