package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/apperr"
	"github.com/dispatch-ext/backend/pkg/database"
)

var (
	ErrPlanInput          = apperr.Validation("Invalid input: Name (string), Price Per Seat (number), Features (array) are required")
	ErrPlanName           = apperr.Validation("Plan name cannot be empty")
	ErrPlanPrice          = apperr.Validation("Price per seat must be a non-negative number")
	ErrEmptyPatch         = apperr.Validation("No fields to update")
	ErrPlanNotFound       = apperr.NotFound("Plan not found")
	ErrPlanExists         = apperr.Conflict("Plan already exists")
	ErrPlanInUse          = apperr.Conflict("Plan has subscriptions and cannot be deleted")
	ErrSubscriptionInput  = apperr.Validation("organizationId and planId is mandatory")
	ErrSeats              = apperr.Validation("activeSeats must be a non-negative integer")
	ErrOrgNotFound        = apperr.NotFound("Organization can not be found")
	ErrActivePlan         = apperr.Conflict("Company already has an active plan")
	ErrSubscriptionAbsent = apperr.NotFound("Subscription not found")
	ErrNotActive          = apperr.Conflict("Subscription is not active")
)

// Store is the persistence used by Service.
type Store interface {
	ListPlans(ctx context.Context) ([]models.PlanSummary, error)
	GetPlan(ctx context.Context, id string) (*models.PlanSummary, error)
	CreatePlan(ctx context.Context, p *models.Plan) error
	UpdatePlan(ctx context.Context, id string, patch models.PlanPatch) (*models.Plan, error)
	DeletePlan(ctx context.Context, id string) error

	CreateSubscription(ctx context.Context, s *models.Subscription) error
	HasActiveSubscription(ctx context.Context, orgID string) (bool, error)
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, orgID string) ([]models.Subscription, error)
	SetSubscriptionStatus(ctx context.Context, id string, status models.SubscriptionStatus) error
	RecountSeats(ctx context.Context, orgID string) (int, bool, error)
}

// OrgLookup finds organizations.
type OrgLookup interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// SuperAdminChecker verifies the SUPER_ADMIN tier.
type SuperAdminChecker interface {
	RequireSuperAdmin(ctx context.Context, userID string) error
}

// PlanInput is a plan create request. Nil fields are missing.
type PlanInput struct {
	Name         *string
	PricePerSeat *float64
	Features     []string
}

// SubscriptionInput is a subscription create request.
type SubscriptionInput struct {
	OrganizationID string
	PlanID         string
	ActiveSeats    *int
}

// Service implements plans and subscriptions.
type Service struct {
	store     Store
	orgs      OrgLookup
	authority SuperAdminChecker
	logger    *zap.Logger
}

// NewService creates a billing service.
func NewService(store Store, orgs OrgLookup, authority SuperAdminChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, orgs: orgs, authority: authority, logger: logger}
}

// ListPlans returns every plan with its ACTIVE subscriber count.
func (s *Service) ListPlans(ctx context.Context) ([]models.PlanSummary, error) {
	list, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, s.fail("list plans", err)
	}
	return list, nil
}

// GetPlan returns one plan with its ACTIVE subscriber count.
func (s *Service) GetPlan(ctx context.Context, id string) (*models.PlanSummary, error) {
	p, err := s.store.GetPlan(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, s.fail("get plan", err)
	}
	return p, nil
}

// CreatePlan creates a plan. SUPER_ADMIN only.
func (s *Service) CreatePlan(ctx context.Context, actor *auth.Identity, in PlanInput) (*models.Plan, error) {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	if in.Name == nil || in.PricePerSeat == nil || in.Features == nil {
		return nil, ErrPlanInput
	}
	name := strings.TrimSpace(*in.Name)
	if name == "" {
		return nil, ErrPlanInput
	}
	if !validPrice(*in.PricePerSeat) {
		return nil, ErrPlanPrice
	}

	p := &models.Plan{ID: uuid.NewString(), Name: name, PricePerSeat: *in.PricePerSeat, Features: in.Features}
	err := s.store.CreatePlan(ctx, p)
	if errors.Is(err, database.ErrConflict) {
		return nil, ErrPlanExists
	}
	if err != nil {
		return nil, s.fail("create plan", err)
	}
	s.logger.Info("plan created", zap.String("plan_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// UpdatePlan applies a partial update. SUPER_ADMIN only.
func (s *Service) UpdatePlan(ctx context.Context, actor *auth.Identity, id string, patch models.PlanPatch) (*models.Plan, error) {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	if patch.Name == nil && patch.PricePerSeat == nil && patch.Features == nil {
		return nil, ErrEmptyPatch
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrPlanName
		}
		patch.Name = &name
	}
	if patch.PricePerSeat != nil && !validPrice(*patch.PricePerSeat) {
		return nil, ErrPlanPrice
	}

	p, err := s.store.UpdatePlan(ctx, id, patch)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrPlanNotFound
	case errors.Is(err, database.ErrConflict):
		return nil, ErrPlanExists
	case err != nil:
		return nil, s.fail("update plan", err)
	}
	return p, nil
}

// DeletePlan deletes a plan no subscription references. SUPER_ADMIN only.
func (s *Service) DeletePlan(ctx context.Context, actor *auth.Identity, id string) error {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return err
	}
	err := s.store.DeletePlan(ctx, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return ErrPlanNotFound
	case errors.Is(err, database.ErrReferenced):
		return ErrPlanInUse
	case err != nil:
		return s.fail("delete plan", err)
	}
	s.logger.Info("plan deleted", zap.String("plan_id", id))
	return nil
}

// CreateSubscription subscribes an organization to a plan. An organization holds at most one ACTIVE
// subscription. SUPER_ADMIN only.
func (s *Service) CreateSubscription(ctx context.Context, actor *auth.Identity, in SubscriptionInput) (*models.Subscription, error) {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.PlanID = strings.TrimSpace(in.PlanID)
	if in.OrganizationID == "" || in.PlanID == "" {
		return nil, ErrSubscriptionInput
	}
	seats := 0
	if in.ActiveSeats != nil {
		seats = *in.ActiveSeats
	}
	if seats < 0 {
		return nil, ErrSeats
	}

	if _, err := s.orgs.GetByID(ctx, in.OrganizationID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, s.fail("get organization", err)
	}
	if _, err := s.GetPlan(ctx, in.PlanID); err != nil {
		return nil, err
	}
	active, err := s.store.HasActiveSubscription(ctx, in.OrganizationID)
	if err != nil {
		return nil, s.fail("check active subscription", err)
	}
	if active {
		return nil, ErrActivePlan
	}

	sub := &models.Subscription{
		ID:             uuid.NewString(),
		OrganizationID: in.OrganizationID,
		PlanID:         in.PlanID,
		ActiveSeats:    seats,
		Status:         models.SubscriptionActive,
	}
	err = s.store.CreateSubscription(ctx, sub)
	switch {
	case errors.Is(err, database.ErrConflict):
		return nil, ErrActivePlan
	case errors.Is(err, database.ErrReferenced):
		// The organization or plan was deleted after the checks above.
		return nil, ErrPlanNotFound
	case err != nil:
		return nil, s.fail("create subscription", err)
	}
	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("organization_id", sub.OrganizationID),
		zap.String("plan_id", sub.PlanID))

	full, err := s.store.GetSubscription(ctx, sub.ID)
	if err != nil {
		return nil, s.fail("get subscription", err)
	}
	return full, nil
}

// ListSubscriptions returns subscriptions, optionally for one organization. SUPER_ADMIN only.
func (s *Service) ListSubscriptions(ctx context.Context, actor *auth.Identity, orgID string) ([]models.Subscription, error) {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	list, err := s.store.ListSubscriptions(ctx, orgID)
	if err != nil {
		return nil, s.fail("list subscriptions", err)
	}
	return list, nil
}

// GetSubscription returns one subscription. SUPER_ADMIN only.
func (s *Service) GetSubscription(ctx context.Context, actor *auth.Identity, id string) (*models.Subscription, error) {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	sub, err := s.store.GetSubscription(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrSubscriptionAbsent
	}
	if err != nil {
		return nil, s.fail("get subscription", err)
	}
	return sub, nil
}

// CancelSubscription moves an ACTIVE subscription to CANCELED. SUPER_ADMIN only.
func (s *Service) CancelSubscription(ctx context.Context, actor *auth.Identity, id string) (*models.Subscription, error) {
	sub, err := s.GetSubscription(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionActive {
		return nil, ErrNotActive
	}
	if err := s.store.SetSubscriptionStatus(ctx, id, models.SubscriptionCanceled); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotActive
		}
		return nil, s.fail("cancel subscription", err)
	}
	s.logger.Info("subscription canceled", zap.String("subscription_id", id), zap.String("organization_id", sub.OrganizationID))
	sub.Status = models.SubscriptionCanceled
	return sub, nil
}

// RecountSeats recomputes the billed seats of the organization's ACTIVE subscription from its members
// with the extension enabled. Organizations without an ACTIVE subscription are left alone.
func (s *Service) RecountSeats(ctx context.Context, orgID string) error {
	seats, ok, err := s.store.RecountSeats(ctx, orgID)
	if err != nil {
		return fmt.Errorf("recount seats for %s: %w", orgID, err)
	}
	if !ok {
		s.logger.Debug("no active subscription to recount", zap.String("organization_id", orgID))
		return nil
	}
	s.logger.Info("seats recounted", zap.String("organization_id", orgID), zap.Int("active_seats", seats))
	return nil
}

func validPrice(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func (s *Service) fail(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return apperr.Internal("Internal server error", fmt.Errorf("%s: %w", op, err))
}
