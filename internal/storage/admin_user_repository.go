package storage

import (
	"context"
	"fmt"

	"github.com/usdt-market/internal/models"
)

// AdminUserRepository handles admin account persistence
type AdminUserRepository struct {
	db *PostgresDB
}

// NewAdminUserRepository creates a new admin user repository
func NewAdminUserRepository(db *PostgresDB) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

// GetByUsername retrieves an admin by username
func (r *AdminUserRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var u models.AdminUser
	query := `SELECT id, username, password_hash, created_at FROM admin_users WHERE username = $1`
	if err := r.db.Pool().QueryRow(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, notFound(err, "admin user")
	}
	return &u, nil
}

// CreateIfMissing inserts the admin unless the username is taken.
// It reports whether a row was created.
func (r *AdminUserRepository) CreateIfMissing(ctx context.Context, username, passwordHash string) (bool, error) {
	query := `
		INSERT INTO admin_users (username, password_hash, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (username) DO NOTHING
	`
	tag, err := r.db.Pool().Exec(ctx, query, username, passwordHash)
	if err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
