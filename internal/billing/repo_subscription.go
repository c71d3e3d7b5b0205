package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/database"
)

const subscriptionSelect = `SELECT s.id, s.organization_id, s.plan_id, s.active_seats, s.status, s.created_at, s.updated_at,
		o.id, o.name, o.slug, o.logo, o.created_at, o.updated_at,
		` + planColumns + `
	FROM company_subscriptions s
	INNER JOIN organizations o ON o.id = s.organization_id
	INNER JOIN plans p ON p.id = s.plan_id`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var (
		s      models.Subscription
		o      models.Organization
		p      models.Plan
		status string
	)
	err := row.Scan(&s.ID, &s.OrganizationID, &s.PlanID, &s.ActiveSeats, &status, &s.CreatedAt, &s.UpdatedAt,
		&o.ID, &o.Name, &o.Slug, &o.Logo, &o.CreatedAt, &o.UpdatedAt,
		&p.ID, &p.Name, &p.PricePerSeat, &p.Features, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	s.Status = models.SubscriptionStatus(status)
	s.Organization = &o
	s.Plan = &p
	return &s, nil
}

// CreateSubscription inserts a subscription. A second ACTIVE subscription for the organization violates
// company_subscriptions_one_active_idx and is reported as database.ErrConflict.
func (r *Repository) CreateSubscription(ctx context.Context, s *models.Subscription) error {
	const q = `INSERT INTO company_subscriptions (id, organization_id, plan_id, active_seats, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err := r.db(ctx).QueryRow(ctx, q, s.ID, s.OrganizationID, s.PlanID, s.ActiveSeats, string(s.Status)).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	return database.Translate(err)
}

// HasActiveSubscription reports whether the organization holds an ACTIVE subscription.
func (r *Repository) HasActiveSubscription(ctx context.Context, orgID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM company_subscriptions WHERE organization_id = $1 AND status = 'ACTIVE')`
	var exists bool
	if err := r.db(ctx).QueryRow(ctx, q, orgID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// GetSubscription returns a subscription with organization and plan expanded.
func (r *Repository) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return scanSubscription(r.db(ctx).QueryRow(ctx, subscriptionSelect+` WHERE s.id = $1`, id))
}

// ListSubscriptions returns subscriptions newest first, optionally for one organization.
func (r *Repository) ListSubscriptions(ctx context.Context, orgID string) ([]models.Subscription, error) {
	q := subscriptionSelect
	var args []any
	if orgID != "" {
		q += ` WHERE s.organization_id = $1`
		args = append(args, orgID)
	}
	rows, err := r.db(ctx).Query(ctx, q+` ORDER BY s.created_at DESC, s.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// SetSubscriptionStatus moves an ACTIVE subscription to status. It returns database.ErrNotFound when the
// subscription does not exist or is no longer ACTIVE.
func (r *Repository) SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) error {
	const q = `UPDATE company_subscriptions SET status = $2, updated_at = NOW() WHERE id = $1 AND status = 'ACTIVE'`
	tag, err := r.db(ctx).Exec(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// RecountSeats sets active_seats of the organization's ACTIVE subscription to the number of its
// members with the extension enabled, and returns the new count. ok is false when there is no ACTIVE
// subscription.
func (r *Repository) RecountSeats(ctx context.Context, orgID string) (seats int, ok bool, err error) {
	const q = `UPDATE company_subscriptions SET
			active_seats = (
				SELECT COUNT(*) FROM organization_users ou
				INNER JOIN users u ON u.id = ou.user_id
				WHERE ou.organization_id = $1 AND u.extension_enabled
			),
			updated_at = NOW()
		WHERE organization_id = $1 AND status = 'ACTIVE'
		RETURNING active_seats`
	err = r.db(ctx).QueryRow(ctx, q, orgID).Scan(&seats)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return seats, true, nil
}
