// Package members manages organization memberships and the per-member extension flag.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/internal/rbac"
	"github.com/dispatch-ext/backend/pkg/apperr"
	"github.com/dispatch-ext/backend/pkg/database"
)

var (
	ErrAddInput          = apperr.Validation("userId or email and role are required")
	ErrRemoveInput       = apperr.Validation("userId and orgId are required")
	ErrOrgNotFound       = apperr.NotFound("Organization not found")
	ErrUserNotFound      = apperr.NotFound("User not found")
	ErrOtherOrganization = apperr.Conflict("User already belongs to another organization")
	ErrActorNotMember    = apperr.NotFound("You are not a member of this organization")
	ErrMemberNotFound    = apperr.NotFound("Member not found in this organization")
	ErrToggleForbidden   = apperr.Forbidden("Only the organization owner can toggle member extensions")
)

const (
	MsgExtensionActivated   = "Extension activated for user"
	MsgExtensionDeactivated = "Extension deactivated for user"
)

// OrgStore is the organization and membership persistence used by Service.
type OrgStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	AddMember(ctx context.Context, m *models.Member) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	FirstMembership(ctx context.Context, userID string) (*models.Member, error)
	LockUser(ctx context.Context, userID string) error
	ListMembers(ctx context.Context, orgID string) ([]models.Member, error)
}

// UserStore is the user persistence used by Service.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ToggleExtension(ctx context.Context, id string) (*models.User, error)
}

// TxRunner runs fn in a transaction carried by the context.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Authorizer is the role authority as used by Service.
type Authorizer interface {
	ResolveGlobalRole(ctx context.Context, userID string) (models.GlobalRole, error)
	ResolveMembership(ctx context.Context, userID, orgID string) (*models.Member, error)
	RequireManage(ctx context.Context, userID, orgID string) error
	CanToggleMember(ctx context.Context, userID, orgID string) bool
}

// SeatQueue schedules a recount of an organization's billed seats.
type SeatQueue interface {
	EnqueueSeatRecount(ctx context.Context, organizationID string) error
}

// AddInput identifies the user to add by id or email.
type AddInput struct {
	UserID string
	Email  string
	Role   string
}

// ToggleResult is the member after an extension toggle with a status message.
type ToggleResult struct {
	Member  *models.Member
	Message string
}

// Service implements membership management.
type Service struct {
	orgs      OrgStore
	users     UserStore
	tx        TxRunner
	authority Authorizer
	provider  authprovider.OrganizationAPI
	seats     SeatQueue
	logger    *zap.Logger
}

// NewService creates a membership service. seats may be nil.
func NewService(orgs OrgStore, users UserStore, tx TxRunner, authority Authorizer, provider authprovider.OrganizationAPI, seats SeatQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{orgs: orgs, users: users, tx: tx, authority: authority, provider: provider, seats: seats, logger: logger}
}

// List returns the organization's members with user summaries.
func (s *Service) List(ctx context.Context, actor *auth.Identity, orgID string) ([]models.Member, error) {
	if err := s.authority.RequireManage(ctx, actor.UserID, orgID); err != nil {
		return nil, err
	}
	if _, err := s.organization(ctx, orgID); err != nil {
		return nil, err
	}
	list, err := s.orgs.ListMembers(ctx, orgID)
	if err != nil {
		return nil, s.fail("list members", err)
	}
	return list, nil
}

// Add adds a user to the organization. The provider is told first inside the local transaction, so a
// provider rejection leaves no local row. A user may belong to one organization only.
func (s *Service) Add(ctx context.Context, actor *auth.Identity, orgID string, in AddInput) (*models.Member, error) {
	if err := s.authority.RequireManage(ctx, actor.UserID, orgID); err != nil {
		return nil, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	if (in.UserID == "" && in.Email == "") || in.Role == "" {
		return nil, ErrAddInput
	}
	org, err := s.organization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	user, err := s.lookupUser(ctx, in.UserID, in.Email)
	if err != nil {
		return nil, err
	}

	if err := s.requireFreeOrSame(ctx, user.ID, orgID); err != nil {
		return nil, s.fail("get membership", err)
	}

	m := &models.Member{ID: uuid.NewString(), OrganizationID: orgID, UserID: user.ID, Role: in.Role}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orgs.LockUser(ctx, user.ID); err != nil {
			return err
		}
		if err := s.requireFreeOrSame(ctx, user.ID, orgID); err != nil {
			return err
		}
		if _, err := s.provider.AddMember(ctx, authprovider.AddMemberRequest{
			UserID:         user.ID,
			Email:          user.Email,
			Role:           in.Role,
			OrganizationID: org.ProviderKey(),
		}, nil); err != nil {
			return err
		}
		return s.orgs.AddMember(ctx, m)
	})
	if err != nil {
		return nil, s.fail("add member", err)
	}

	summary := user.ToSummary()
	m.User = &summary
	s.logger.Info("member added", zap.String("organization_id", orgID), zap.String("user_id", user.ID), zap.String("role", in.Role))
	s.recountSeats(ctx, orgID)
	return m, nil
}

// requireFreeOrSame returns ErrOtherOrganization when the user belongs to an organization other than orgID.
func (s *Service) requireFreeOrSame(ctx context.Context, userID, orgID string) error {
	current, err := s.orgs.FirstMembership(ctx, userID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil
	case err != nil:
		return err
	case current.OrganizationID != orgID:
		return ErrOtherOrganization
	}
	return nil
}

// Remove removes the user from the organization. The provider is keyed by the user's email.
func (s *Service) Remove(ctx context.Context, actor *auth.Identity, orgID, userID string) error {
	if err := s.authority.RequireManage(ctx, actor.UserID, orgID); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || orgID == "" {
		return ErrRemoveInput
	}
	user, err := s.lookupUser(ctx, userID, "")
	if err != nil {
		return err
	}
	org, err := s.organization(ctx, orgID)
	if err != nil {
		return err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orgs.RemoveMember(ctx, orgID, user.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		return s.provider.RemoveMember(ctx, authprovider.RemoveMemberRequest{
			MemberIDOrEmail: user.Email,
			OrganizationID:  org.ProviderKey(),
		}, actor.Credentials)
	})
	if err != nil {
		return s.fail("remove member", err)
	}
	s.logger.Info("member removed", zap.String("organization_id", orgID), zap.String("user_id", user.ID))
	s.recountSeats(ctx, orgID)
	return nil
}

// ToggleExtension flips the target member's extension flag. The actor must be the organization owner
// or SUPER_ADMIN.
func (s *Service) ToggleExtension(ctx context.Context, actor *auth.Identity, orgID, targetUserID string) (*ToggleResult, error) {
	if actor == nil || actor.UserID == "" {
		return nil, rbac.ErrNoActor
	}
	role, err := s.authority.ResolveGlobalRole(ctx, actor.UserID)
	if err != nil {
		return nil, s.fail("resolve role", err)
	}
	if role != models.GlobalRoleSuperAdmin {
		own, err := s.authority.ResolveMembership(ctx, actor.UserID, orgID)
		if err != nil {
			return nil, s.fail("resolve membership", err)
		}
		if own == nil {
			return nil, ErrActorNotMember
		}
	}
	if !s.authority.CanToggleMember(ctx, actor.UserID, orgID) {
		return nil, ErrToggleForbidden
	}

	target, err := s.authority.ResolveMembership(ctx, targetUserID, orgID)
	if err != nil {
		return nil, s.fail("resolve membership", err)
	}
	if target == nil {
		return nil, ErrMemberNotFound
	}
	user, err := s.users.ToggleExtension(ctx, targetUserID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, s.fail("toggle extension", err)
	}

	summary := user.ToSummary()
	target.User = &summary
	msg := MsgExtensionDeactivated
	if user.ExtensionEnabled {
		msg = MsgExtensionActivated
	}
	s.logger.Info("member extension toggled",
		zap.String("organization_id", orgID),
		zap.String("user_id", targetUserID),
		zap.Bool("extension_enabled", user.ExtensionEnabled))
	s.recountSeats(ctx, orgID)
	return &ToggleResult{Member: target, Message: msg}, nil
}

func (s *Service) organization(ctx context.Context, orgID string) (*models.Organization, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, s.fail("get organization", err)
	}
	return org, nil
}

func (s *Service) lookupUser(ctx context.Context, userID, email string) (*models.User, error) {
	var (
		u   *models.User
		err error
	)
	if userID != "" {
		u, err = s.users.GetByID(ctx, userID)
	} else {
		u, err = s.users.GetByEmail(ctx, email)
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, s.fail("get user", err)
	}
	return u, nil
}

// recountSeats schedules a seat recount. Failures are logged only.
func (s *Service) recountSeats(ctx context.Context, orgID string) {
	if s.seats == nil {
		return
	}
	if err := s.seats.EnqueueSeatRecount(ctx, orgID); err != nil {
		s.logger.Warn("enqueue seat recount failed", zap.String("organization_id", orgID), zap.Error(err))
	}
}

func (s *Service) fail(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return apperr.Internal("Internal server error", fmt.Errorf("%s: %w", op, err))
}
