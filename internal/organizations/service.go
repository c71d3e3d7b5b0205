package organizations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/apperr"
	"github.com/dispatch-ext/backend/pkg/database"
	"github.com/dispatch-ext/backend/pkg/storage"
	"github.com/dispatch-ext/backend/pkg/utils"
)

var (
	ErrNameRequired       = apperr.Validation("Organization name is required")
	ErrInvalidName        = apperr.Validation("Organization name must produce a valid slug")
	ErrInvalidSlug        = apperr.Validation("Slug must be 2-64 chars, lowercase letters, numbers, hyphens only")
	ErrEmptyPatch         = apperr.Validation("No fields to update")
	ErrSlugTaken          = apperr.Conflict("Slug already in use")
	ErrNotFoundOrNoAccess = apperr.NotFound("Organization not found or no access")
	ErrOrgNotFound        = apperr.NotFound("Organization not found")
	ErrNoMembership       = apperr.NotFound("User is not a member of any organization")
	ErrAlreadyMember      = apperr.Conflict("User already belongs to another organization")
	ErrLogoStorage        = apperr.Unavailable("Logo storage is not configured")
	ErrLogoType           = apperr.Validation("Logo must be a JPEG, PNG, WebP, GIF or SVG image")
	ErrLogoTooLarge       = apperr.Validation("Logo exceeds the 2MB limit")
)

// Store is the persistence used by Service.
type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	SetProviderID(ctx context.Context, id, providerID string) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
	Update(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error)
	Delete(ctx context.Context, id string) error
	ListDetails(ctx context.Context) ([]models.OrganizationDetail, error)
	GetDetail(ctx context.Context, id string) (*models.OrganizationDetail, error)
	AddMember(ctx context.Context, m *models.Member) error
	MirrorMember(ctx context.Context, m *models.Member) (bool, error)
	// LockUser holds the user's row until the surrounding transaction ends.
	LockUser(ctx context.Context, userID string) error
}

// TxRunner runs fn in a transaction carried by the context.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Authorizer is the role authority as used by Service.
type Authorizer interface {
	ResolveGlobalRole(ctx context.Context, userID string) (models.GlobalRole, error)
	ResolveMembership(ctx context.Context, userID, orgID string) (*models.Member, error)
	RequireSuperAdmin(ctx context.Context, userID string) error
	RequireManage(ctx context.Context, userID, orgID string) error
}

// LogoStorage stores organization logos and returns their public URL.
type LogoStorage interface {
	UploadLogo(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// LogoUpload is an uploaded logo file.
type LogoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// MyOrganization is the caller's effective organization and their role in it.
type MyOrganization struct {
	models.OrganizationDetail
	MemberRole string `json:"memberRole"`
}

// RoleInfo describes the caller's global role and effective membership.
type RoleInfo struct {
	GlobalRole     models.GlobalRole `json:"globalRole"`
	OrganizationID *string           `json:"organizationId"`
	MemberRole     *string           `json:"memberRole"`
}

// Service implements the organization lifecycle.
type Service struct {
	store     Store
	tx        TxRunner
	authority Authorizer
	provider  authprovider.OrganizationAPI
	logos     LogoStorage
	logger    *zap.Logger
}

// NewService creates an organization service. logos may be nil when S3 is not configured.
func NewService(store Store, tx TxRunner, authority Authorizer, provider authprovider.OrganizationAPI, logos LogoStorage, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tx: tx, authority: authority, provider: provider, logos: logos, logger: logger}
}

// Create creates an organization named name, with a slug derived from it, in the provider and locally.
// The local row commits only when the provider accepts the organization. Users other than SUPER_ADMIN
// may create an organization only while they belong to none.
func (s *Service) Create(ctx context.Context, actor *auth.Identity, name string) (*models.OrganizationDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	slug, err := utils.Slugify(name)
	if err != nil {
		return nil, ErrInvalidName
	}
	taken, err := s.store.SlugExists(ctx, slug, "")
	if err != nil {
		return nil, s.fail("check slug", err)
	}
	if taken {
		return nil, ErrSlugTaken
	}
	role, err := s.authority.ResolveGlobalRole(ctx, actor.UserID)
	if err != nil {
		return nil, s.fail("resolve role", err)
	}
	single := role != models.GlobalRoleSuperAdmin
	if single {
		if err := s.requireNoMembership(ctx, actor.UserID); err != nil {
			return nil, err
		}
	}

	org := &models.Organization{ID: uuid.NewString(), Name: name, Slug: slug}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if single {
			if err := s.store.LockUser(ctx, actor.UserID); err != nil {
				return err
			}
			if err := s.requireNoMembership(ctx, actor.UserID); err != nil {
				return err
			}
		}
		if err := s.store.Create(ctx, org); err != nil {
			return err
		}
		rec, err := s.provider.CreateOrganization(ctx, authprovider.CreateOrganizationRequest{Name: name, Slug: slug}, actor.Credentials)
		if err != nil {
			return err
		}
		if rec.ID != "" && rec.ID != org.ID {
			if err := s.store.SetProviderID(ctx, org.ID, rec.ID); err != nil {
				return err
			}
			org.ProviderID = rec.ID
		}
		return s.mirrorMembers(ctx, org.ID, actor.UserID, rec.Members)
	})
	if errors.Is(err, database.ErrConflict) {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, s.fail("create organization", err)
	}

	s.logger.Info("organization created", zap.String("organization_id", org.ID), zap.String("slug", slug), zap.String("user_id", actor.UserID))
	detail, err := s.store.GetDetail(ctx, org.ID)
	if err != nil {
		return nil, s.fail("get organization", err)
	}
	return detail, nil
}

// requireNoMembership returns ErrAlreadyMember when the user already belongs to an organization.
func (s *Service) requireNoMembership(ctx context.Context, userID string) error {
	m, err := s.authority.ResolveMembership(ctx, userID, "")
	if err != nil {
		return s.fail("resolve membership", err)
	}
	if m != nil {
		return ErrAlreadyMember
	}
	return nil
}

// mirrorMembers records the memberships the provider created with the organization. When the provider
// reports none, the creator becomes the owner locally.
func (s *Service) mirrorMembers(ctx context.Context, orgID, creatorID string, members []authprovider.MemberRecord) error {
	if len(members) == 0 {
		return s.store.AddMember(ctx, &models.Member{ID: uuid.NewString(), OrganizationID: orgID, UserID: creatorID, Role: models.MemberRoleOwner})
	}
	for _, rec := range members {
		m := &models.Member{ID: uuid.NewString(), OrganizationID: orgID, UserID: rec.UserID, Role: rec.Role}
		ok, err := s.store.MirrorMember(ctx, m)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Warn("skipped provider member without local user", zap.String("organization_id", orgID), zap.String("user_id", rec.UserID))
		}
	}
	return nil
}

// Get returns an organization the actor may see. SUPER_ADMIN sees all; others only their own.
func (s *Service) Get(ctx context.Context, actor *auth.Identity, orgID string) (*models.OrganizationDetail, error) {
	role, err := s.authority.ResolveGlobalRole(ctx, actor.UserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, ErrNotFoundOrNoAccess
		}
		return nil, s.fail("resolve role", err)
	}
	if role != models.GlobalRoleSuperAdmin {
		m, err := s.authority.ResolveMembership(ctx, actor.UserID, orgID)
		if err != nil {
			return nil, s.fail("resolve membership", err)
		}
		if m == nil {
			return nil, ErrNotFoundOrNoAccess
		}
	}
	detail, err := s.store.GetDetail(ctx, orgID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFoundOrNoAccess
	}
	if err != nil {
		return nil, s.fail("get organization", err)
	}
	return detail, nil
}

// ListAll returns every organization with members, newest first. SUPER_ADMIN only.
func (s *Service) ListAll(ctx context.Context, actor *auth.Identity) ([]models.OrganizationDetail, error) {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return nil, err
	}
	list, err := s.store.ListDetails(ctx)
	if err != nil {
		return nil, s.fail("list organizations", err)
	}
	return list, nil
}

// GetMine returns the actor's effective organization.
func (s *Service) GetMine(ctx context.Context, actor *auth.Identity) (*MyOrganization, error) {
	m, err := s.authority.ResolveMembership(ctx, actor.UserID, "")
	if err != nil {
		return nil, s.fail("resolve membership", err)
	}
	if m == nil {
		return nil, ErrNoMembership
	}
	detail, err := s.store.GetDetail(ctx, m.OrganizationID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoMembership
	}
	if err != nil {
		return nil, s.fail("get organization", err)
	}
	return &MyOrganization{OrganizationDetail: *detail, MemberRole: m.Role}, nil
}

// GetRole returns the actor's global role and effective membership.
func (s *Service) GetRole(ctx context.Context, actor *auth.Identity) (*RoleInfo, error) {
	role, err := s.authority.ResolveGlobalRole(ctx, actor.UserID)
	if err != nil {
		return nil, s.fail("resolve role", err)
	}
	info := &RoleInfo{GlobalRole: role}
	m, err := s.authority.ResolveMembership(ctx, actor.UserID, "")
	if err != nil {
		return nil, s.fail("resolve membership", err)
	}
	if m != nil {
		info.OrganizationID = &m.OrganizationID
		info.MemberRole = &m.Role
	}
	return info, nil
}

// Update applies a partial update. Requires manage permission on the organization.
func (s *Service) Update(ctx context.Context, actor *auth.Identity, orgID string, patch models.OrganizationPatch) (*models.Organization, error) {
	if err := s.authority.RequireManage(ctx, actor.UserID, orgID); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, ErrEmptyPatch
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		patch.Name = &name
	}
	if patch.Slug != nil {
		slug := strings.ToLower(strings.TrimSpace(*patch.Slug))
		if !utils.ValidSlug(slug) {
			return nil, ErrInvalidSlug
		}
		patch.Slug = &slug
	}

	if _, err := s.store.GetByID(ctx, orgID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, s.fail("get organization", err)
	}
	if patch.Slug != nil {
		taken, err := s.store.SlugExists(ctx, *patch.Slug, orgID)
		if err != nil {
			return nil, s.fail("check slug", err)
		}
		if taken {
			return nil, ErrSlugTaken
		}
	}

	org, err := s.store.Update(ctx, orgID, patch)
	switch {
	case errors.Is(err, database.ErrConflict):
		return nil, ErrSlugTaken
	case errors.Is(err, database.ErrNotFound):
		return nil, ErrOrgNotFound
	case err != nil:
		return nil, s.fail("update organization", err)
	}
	return org, nil
}

// Delete removes an organization and its memberships. SUPER_ADMIN only.
func (s *Service) Delete(ctx context.Context, actor *auth.Identity, orgID string) error {
	if err := s.authority.RequireSuperAdmin(ctx, actor.UserID); err != nil {
		return err
	}
	err := s.store.Delete(ctx, orgID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrOrgNotFound
	}
	if err != nil {
		return s.fail("delete organization", err)
	}
	s.logger.Info("organization deleted", zap.String("organization_id", orgID), zap.String("user_id", actor.UserID))
	return nil
}

// UploadLogo stores a logo image and points the organization at it.
func (s *Service) UploadLogo(ctx context.Context, actor *auth.Identity, orgID string, file LogoUpload) (*models.Organization, error) {
	if err := s.authority.RequireManage(ctx, actor.UserID, orgID); err != nil {
		return nil, err
	}
	if s.logos == nil {
		return nil, ErrLogoStorage
	}
	if !storage.ValidateLogoFileType(file.ContentType, file.Filename) {
		return nil, ErrLogoType
	}
	if file.Size > storage.MaxLogoFileSize {
		return nil, ErrLogoTooLarge
	}
	if _, err := s.store.GetByID(ctx, orgID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, s.fail("get organization", err)
	}

	contentType := storage.LogoContentType(file.ContentType, file.Filename)
	key := storage.LogoKey(orgID, uuid.NewString(), contentType)
	url, err := s.logos.UploadLogo(ctx, key, contentType, file.Body, file.Size)
	if err != nil {
		return nil, s.fail("upload logo", err)
	}
	return s.Update(ctx, actor, orgID, models.OrganizationPatch{Logo: &url})
}

// fail passes application errors through and wraps the rest as internal, logging the cause.
func (s *Service) fail(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return apperr.Internal("Internal server error", fmt.Errorf("%s: %w", op, err))
}
