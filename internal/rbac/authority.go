// Package rbac answers authorization questions from the global role tier and organization memberships.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/apperr"
	"github.com/dispatch-ext/backend/pkg/database"
)

var (
	ErrUserNotFound      = apperr.NotFound("User not found")
	ErrInsufficientPerms = apperr.Forbidden("Insufficient permissions")
	ErrAccessDenied      = apperr.Forbidden("Access denied: insufficient permissions")
	ErrNoActor           = apperr.Unauthenticated("User not authenticated")
)

// UserStore reads users. Missing users are reported as database.ErrNotFound.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// MembershipStore reads memberships. Missing memberships are reported as database.ErrNotFound.
type MembershipStore interface {
	GetMembership(ctx context.Context, orgID, userID string) (*models.Member, error)
	FirstMembership(ctx context.Context, userID string) (*models.Member, error)
}

// Authority resolves roles and evaluates the authorization predicates.
type Authority struct {
	users   UserStore
	members MembershipStore
	logger  *zap.Logger
}

// NewAuthority creates an Authority.
func NewAuthority(users UserStore, members MembershipStore, logger *zap.Logger) *Authority {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authority{users: users, members: members, logger: logger}
}

// ResolveGlobalRole returns the user's global role.
func (a *Authority) ResolveGlobalRole(ctx context.Context, userID string) (models.GlobalRole, error) {
	if userID == "" {
		return "", ErrNoActor
	}
	u, err := a.users.GetByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	return u.Role, nil
}

// ResolveMembership returns the user's membership in orgID, or their first membership when orgID is
// empty. It returns nil, nil when there is none.
func (a *Authority) ResolveMembership(ctx context.Context, userID, orgID string) (*models.Member, error) {
	var (
		m   *models.Member
		err error
	)
	if orgID == "" {
		m, err = a.members.FirstMembership(ctx, userID)
	} else {
		m, err = a.members.GetMembership(ctx, orgID, userID)
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// IsSuperAdmin reports whether the user holds the SUPER_ADMIN tier. Lookup failures count as false.
func (a *Authority) IsSuperAdmin(ctx context.Context, userID string) bool {
	role, err := a.ResolveGlobalRole(ctx, userID)
	return err == nil && role == models.GlobalRoleSuperAdmin
}

// CanManageOrganization reports whether the user may manage orgID: SUPER_ADMIN, or a MANAGER or ADMIN
// membership. Any lookup failure denies.
func (a *Authority) CanManageOrganization(ctx context.Context, userID, orgID string) bool {
	ok, err := a.canManage(ctx, userID, orgID)
	if err != nil {
		a.logger.Warn("manage check failed", zap.String("user_id", userID), zap.String("organization_id", orgID), zap.Error(err))
		return false
	}
	return ok
}

// CanToggleMember reports whether the user may toggle member extensions in orgID: SUPER_ADMIN, or the
// organization owner. Any lookup failure denies.
func (a *Authority) CanToggleMember(ctx context.Context, userID, orgID string) bool {
	if userID == "" {
		return false
	}
	role, err := a.ResolveGlobalRole(ctx, userID)
	if err != nil {
		a.logger.Warn("toggle check failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	if role == models.GlobalRoleSuperAdmin {
		return true
	}
	m, err := a.ResolveMembership(ctx, userID, orgID)
	if err != nil {
		a.logger.Warn("toggle check failed", zap.String("user_id", userID), zap.String("organization_id", orgID), zap.Error(err))
		return false
	}
	return m != nil && m.Role == models.MemberRoleOwner
}

// RequireSuperAdmin returns nil when the user is SUPER_ADMIN.
func (a *Authority) RequireSuperAdmin(ctx context.Context, userID string) error {
	role, err := a.ResolveGlobalRole(ctx, userID)
	if err != nil {
		return internalOr(err)
	}
	if role != models.GlobalRoleSuperAdmin {
		return ErrInsufficientPerms
	}
	return nil
}

// RequireManage returns nil when CanManageOrganization would allow, and a typed error otherwise.
func (a *Authority) RequireManage(ctx context.Context, userID, orgID string) error {
	ok, err := a.canManage(ctx, userID, orgID)
	if err != nil {
		return internalOr(err)
	}
	if !ok {
		return ErrAccessDenied
	}
	return nil
}

func (a *Authority) canManage(ctx context.Context, userID, orgID string) (bool, error) {
	role, err := a.ResolveGlobalRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if role == models.GlobalRoleSuperAdmin {
		return true, nil
	}
	m, err := a.ResolveMembership(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	return m.Role == models.MemberRoleManager || m.Role == models.MemberRoleAdmin, nil
}

// internalOr passes application errors through and wraps anything else as internal.
func internalOr(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal("Failed to verify permissions", err)
}
