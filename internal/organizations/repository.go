package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/database"
)

const orgColumns = `id, provider_id, name, slug, logo, metadata, created_at, updated_at`

// Repository handles organization and organization_user persistence.
// Every method joins the transaction carried by ctx, if any.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.DBTX {
	return database.Conn(ctx, r.pool)
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(&org.ID, &org.ProviderID, &org.Name, &org.Slug, &org.Logo, &org.Metadata, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &org, nil
}

// Create inserts an organization. org.ID must be set.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (id, provider_id, name, slug, logo, metadata)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::jsonb, '{}'::jsonb))
		RETURNING created_at, updated_at`
	err := r.db(ctx).QueryRow(ctx, q, org.ID, org.ProviderID, org.Name, org.Slug, org.Logo, org.Metadata).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	return database.Translate(err)
}

// SetProviderID records the id the auth provider assigned to the organization.
func (r *Repository) SetProviderID(ctx context.Context, id, providerID string) error {
	tag, err := r.db(ctx).Exec(ctx, `UPDATE organizations SET provider_id = $2, updated_at = NOW() WHERE id = $1`, id, providerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return scanOrganization(r.db(ctx).QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

// SlugExists reports whether another organization than excludeID uses slug.
func (r *Repository) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1 AND id <> $2)`
	var exists bool
	if err := r.db(ctx).QueryRow(ctx, q, slug, excludeID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Update applies the non-nil fields of patch and returns the updated organization.
func (r *Repository) Update(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	sets, args := updateSet(patch)
	q := `UPDATE organizations SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + orgColumns
	return scanOrganization(r.db(ctx).QueryRow(ctx, q, append([]any{id}, args...)...))
}

// updateSet builds the SET assignments for the fields patch carries. Placeholders start at $2; $1 is the id.
func updateSet(patch models.OrganizationPatch) ([]string, []any) {
	sets := []string{"updated_at = NOW()"}
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)+1))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Slug != nil {
		add("slug", *patch.Slug)
	}
	if patch.Logo != nil {
		add("logo", *patch.Logo)
	}
	if patch.Metadata != nil {
		add("metadata", patch.Metadata)
	}
	return sets, args
}

// Delete removes an organization; memberships and subscriptions cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// ListDetails returns every organization, newest first, with members expanded.
func (r *Repository) ListDetails(ctx context.Context) ([]models.OrganizationDetail, error) {
	rows, err := r.db(ctx).Query(ctx, `SELECT `+orgColumns+` FROM organizations ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.OrganizationDetail{}
	index := map[string]int{}
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		index[org.ID] = len(list)
		list = append(list, models.OrganizationDetail{Organization: *org, Members: []models.Member{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	members, err := r.queryMembers(ctx, `WHERE TRUE`)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if i, ok := index[m.OrganizationID]; ok {
			list[i].Members = append(list[i].Members, m)
			list[i].MemberCount++
		}
	}
	return list, nil
}

// GetDetail returns one organization with members expanded.
func (r *Repository) GetDetail(ctx context.Context, id string) (*models.OrganizationDetail, error) {
	org, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := r.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.OrganizationDetail{Organization: *org, Members: members, MemberCount: len(members)}, nil
}

// AddMember adds a user to an organization with a role, updating the role if already a member.
func (r *Repository) AddMember(ctx context.Context, m *models.Member) error {
	const q = `INSERT INTO organization_users (id, organization_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
		RETURNING id, created_at`
	err := r.db(ctx).QueryRow(ctx, q, m.ID, m.OrganizationID, m.UserID, m.Role).Scan(&m.ID, &m.CreatedAt)
	return database.Translate(err)
}

// MirrorMember records a provider-reported membership when the user is known locally. It reports
// whether a row was written.
func (r *Repository) MirrorMember(ctx context.Context, m *models.Member) (bool, error) {
	const q = `INSERT INTO organization_users (id, organization_id, user_id, role)
		SELECT $1, $2, $3, $4 WHERE EXISTS (SELECT 1 FROM users WHERE id = $3)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()
		RETURNING id, created_at`
	err := r.db(ctx).QueryRow(ctx, q, m.ID, m.OrganizationID, m.UserID, m.Role).Scan(&m.ID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, database.Translate(err)
	}
	return true, nil
}

// RemoveMember deletes the user's membership in the organization.
func (r *Repository) RemoveMember(ctx context.Context, orgID, userID string) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM organization_users WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// LockUser takes a row lock on the user for the rest of the transaction, serializing membership changes
// for that user.
func (r *Repository) LockUser(ctx context.Context, userID string) error {
	var id string
	err := r.db(ctx).QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	return database.Translate(err)
}

// GetMembership returns the user's membership in the organization.
func (r *Repository) GetMembership(ctx context.Context, orgID, userID string) (*models.Member, error) {
	const q = `SELECT id, organization_id, user_id, role, created_at
		FROM organization_users WHERE organization_id = $1 AND user_id = $2`
	var m models.Member
	err := r.db(ctx).QueryRow(ctx, q, orgID, userID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &m, nil
}

// FirstMembership returns the user's oldest membership, which determines their effective organization.
func (r *Repository) FirstMembership(ctx context.Context, userID string) (*models.Member, error) {
	const q = `SELECT id, organization_id, user_id, role, created_at
		FROM organization_users WHERE user_id = $1
		ORDER BY created_at ASC, id ASC LIMIT 1`
	var m models.Member
	err := r.db(ctx).QueryRow(ctx, q, userID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &m, nil
}

// ListMembers returns members of an organization with user summaries (join organization_users + users).
func (r *Repository) ListMembers(ctx context.Context, orgID string) ([]models.Member, error) {
	return r.queryMembers(ctx, `WHERE ou.organization_id = $1`, orgID)
}

func (r *Repository) queryMembers(ctx context.Context, where string, args ...any) ([]models.Member, error) {
	q := `SELECT ou.id, ou.organization_id, ou.user_id, ou.role, ou.created_at,
			u.id, u.name, u.email, u.role, u.image, u.extension_enabled
		FROM organization_users ou
		INNER JOIN users u ON u.id = ou.user_id
		` + where + `
		ORDER BY ou.created_at ASC, ou.id ASC`
	rows, err := r.db(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Member{}
	for rows.Next() {
		var m models.Member
		var u models.UserSummary
		var role string
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.CreatedAt,
			&u.ID, &u.Name, &u.Email, &role, &u.Image, &u.ExtensionEnabled); err != nil {
			return nil, err
		}
		u.Role = models.GlobalRole(role)
		m.User = &u
		list = append(list, m)
	}
	return list, rows.Err()
}
