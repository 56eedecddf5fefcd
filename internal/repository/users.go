package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sapls/staff-shift/backend/internal/domain"
)

func (r *Repository) GetUserByID(id string) (*domain.User, error) {
	query := `
		SELECT email, password_hash, full_name, role, admin_role, is_active, created_at, version
		FROM users WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	user := &domain.User{
		ID: id,
	}

	var adminRole sql.NullString
	dst := []any{&user.Email, &user.PasswordHash, &user.FullName, &user.Role, &adminRole, &user.IsActive, &user.CreatedAt, &user.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}
	user.AdminRole = adminRole.String

	return user, nil
}

func (r *Repository) GetUserByEmail(email string) (*domain.User, error) {
	query := `
		SELECT id, password_hash, full_name, role, admin_role, is_active, created_at, version
		FROM users WHERE email = $1
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	user := &domain.User{
		Email: email,
	}

	var adminRole sql.NullString
	dst := []any{&user.ID, &user.PasswordHash, &user.FullName, &user.Role, &adminRole, &user.IsActive, &user.CreatedAt, &user.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, email).Scan(dst...); err != nil {
		return nil, err
	}
	user.AdminRole = adminRole.String

	return user, nil
}

// GetUsersByIDs 返回存在的用户，不存在的 id 会被忽略
func (r *Repository) GetUsersByIDs(ids []string) ([]*domain.User, error) {
	query := `
		SELECT id, email, full_name, role, is_active
		FROM users WHERE id = ANY($1)
		ORDER BY email
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*domain.User, 0, len(ids))
	for rows.Next() {
		user := &domain.User{}
		if err := rows.Scan(&user.ID, &user.Email, &user.FullName, &user.Role, &user.IsActive); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

// GetAllStaff 返回所有在职的停车场员工
func (r *Repository) GetAllStaff() ([]*domain.User, error) {
	query := `
		SELECT id, email, full_name, role, is_active, created_at, version
		FROM users WHERE role = $1 AND is_active
		ORDER BY created_at
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, domain.RoleStaff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		user := &domain.User{}
		dst := []any{&user.ID, &user.Email, &user.FullName, &user.Role, &user.IsActive, &user.CreatedAt, &user.Version}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *Repository) CreateUser(user *domain.User) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		INSERT INTO users (id, email, password_hash, full_name, role, admin_role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING is_active, created_at, version
	`

	args := []any{user.ID, user.Email, user.PasswordHash, user.FullName, user.Role, nullString(user.AdminRole)}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&user.IsActive, &user.CreatedAt, &user.Version); err != nil {
		return err
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
