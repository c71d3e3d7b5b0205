// Package billing manages subscription plans, company subscriptions and billed seats.
package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/database"
)

const planColumns = `p.id, p.name, p.price_per_seat, p.features, p.created_at, p.updated_at`

// Repository handles plan and subscription persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a billing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context) database.DBTX {
	return database.Conn(ctx, r.pool)
}

func scanPlan(row pgx.Row, extra ...any) (*models.Plan, error) {
	var p models.Plan
	dest := append([]any{&p.ID, &p.Name, &p.PricePerSeat, &p.Features, &p.CreatedAt, &p.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, database.Translate(err)
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	return &p, nil
}

const planSummaryQuery = `SELECT ` + planColumns + `,
		COUNT(s.id) FILTER (WHERE s.status = 'ACTIVE') AS active_subscribers
	FROM plans p
	LEFT JOIN company_subscriptions s ON s.plan_id = p.id`

// ListPlans returns every plan with its number of ACTIVE subscriptions, oldest first.
func (r *Repository) ListPlans(ctx context.Context) ([]models.PlanSummary, error) {
	rows, err := r.db(ctx).Query(ctx, planSummaryQuery+` GROUP BY p.id ORDER BY p.created_at ASC, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.PlanSummary{}
	for rows.Next() {
		var n int
		p, err := scanPlan(rows, &n)
		if err != nil {
			return nil, err
		}
		list = append(list, models.PlanSummary{Plan: *p, ActiveSubscribers: n})
	}
	return list, rows.Err()
}

// GetPlan returns one plan with its number of ACTIVE subscriptions.
func (r *Repository) GetPlan(ctx context.Context, id string) (*models.PlanSummary, error) {
	var n int
	p, err := scanPlan(r.db(ctx).QueryRow(ctx, planSummaryQuery+` WHERE p.id = $1 GROUP BY p.id`, id), &n)
	if err != nil {
		return nil, err
	}
	return &models.PlanSummary{Plan: *p, ActiveSubscribers: n}, nil
}

// CreatePlan inserts a plan. p.ID must be set.
func (r *Repository) CreatePlan(ctx context.Context, p *models.Plan) error {
	const q = `INSERT INTO plans (id, name, price_per_seat, features)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	err := r.db(ctx).QueryRow(ctx, q, p.ID, p.Name, p.PricePerSeat, p.Features).Scan(&p.CreatedAt, &p.UpdatedAt)
	return database.Translate(err)
}

// UpdatePlan applies the non-nil fields of patch and returns the updated plan.
func (r *Repository) UpdatePlan(ctx context.Context, id string, patch models.PlanPatch) (*models.Plan, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.PricePerSeat != nil {
		add("price_per_seat", *patch.PricePerSeat)
	}
	if patch.Features != nil {
		add("features", patch.Features)
	}
	q := `UPDATE plans p SET ` + strings.Join(sets, ", ") + ` WHERE p.id = $1 RETURNING ` + planColumns
	return scanPlan(r.db(ctx).QueryRow(ctx, q, args...))
}

// DeletePlan removes a plan. Plans referenced by a subscription are kept and reported as
// database.ErrReferenced.
func (r *Repository) DeletePlan(ctx context.Context, id string) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}
