package auth

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/database"
)

const userColumns = `id, email, name, image, email_verified, extension_enabled, role, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.EmailVerified, &u.ExtensionEnabled, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, database.Translate(err)
	}
	u.Role = models.GlobalRole(role)
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// List returns all users ordered by name then email.
func (r *Repository) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}

// UpsertFromSession mirrors the provider's view of a user. The global role is never touched.
func (r *Repository) UpsertFromSession(ctx context.Context, s *authprovider.Session) (*models.User, error) {
	const q = `INSERT INTO users (id, email, name, image, email_verified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			email_verified = EXCLUDED.email_verified,
			updated_at = NOW()
		RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, s.UserID, s.Email, s.Name, s.Image, s.EmailVerified))
}

// SetRole sets the global role of the user with the given email.
func (r *Repository) SetRole(ctx context.Context, email string, role models.GlobalRole) (*models.User, error) {
	const q = `UPDATE users SET role = $2, updated_at = NOW() WHERE lower(email) = lower($1) RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, email, string(role)))
}

// ToggleExtension flips the user's extension flag in a single statement and returns the updated row.
func (r *Repository) ToggleExtension(ctx context.Context, id string) (*models.User, error) {
	const q = `UPDATE users SET extension_enabled = NOT extension_enabled, updated_at = NOW()
		WHERE id = $1 RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, id))
}
