package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/afterschool-roster-api/internal/models"
)

// PortalUserRepository reads the allow-list of staff who may use the portal.
type PortalUserRepository struct {
	db *sqlx.DB
}

// NewPortalUserRepository constructs a new portal user repository.
func NewPortalUserRepository(db *sqlx.DB) *PortalUserRepository {
	return &PortalUserRepository{db: db}
}

// FindByEmail returns an allow-listed user by case-insensitive email.
func (r *PortalUserRepository) FindByEmail(ctx context.Context, email string) (*models.PortalUser, error) {
	const query = `SELECT id, email, full_name, role, active, receives_digest, created_at, updated_at FROM portal_users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var user models.PortalUser
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find portal user by email: %w", err)
	}
	return &user, nil
}

// ListDigestEmails returns the emails of active users subscribed to the daily digest.
func (r *PortalUserRepository) ListDigestEmails(ctx context.Context) ([]string, error) {
	const query = `SELECT email FROM portal_users WHERE active = TRUE AND receives_digest = TRUE ORDER BY email`
	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("list digest recipients: %w", err)
	}
	return emails, nil
}
