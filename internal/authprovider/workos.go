package authprovider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/workos/workos-go/v6/pkg/organizations"
	"github.com/workos/workos-go/v6/pkg/usermanagement"
	"github.com/workos/workos-go/v6/pkg/workos_errors"
	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/pkg/apperr"
)

// WorkOS mirrors organizations and memberships into WorkOS. WorkOS identifies users by its own ids,
// so both add and remove resolve the user by email.
type WorkOS struct {
	createOrganization func(context.Context, organizations.CreateOrganizationOpts) (organizations.Organization, error)
	createMembership   func(context.Context, usermanagement.CreateOrganizationMembershipOpts) (usermanagement.OrganizationMembership, error)
	listUsers          func(context.Context, usermanagement.ListUsersOpts) (usermanagement.ListUsersResponse, error)
	listMemberships    func(context.Context, usermanagement.ListOrganizationMembershipsOpts) (usermanagement.ListOrganizationMembershipsResponse, error)
	deleteMembership   func(context.Context, usermanagement.DeleteOrganizationMembershipOpts) error
	logger             *zap.Logger
}

// NewWorkOS configures the WorkOS SDK with apiKey and returns an OrganizationAPI backed by it.
func NewWorkOS(apiKey string, logger *zap.Logger) *WorkOS {
	organizations.SetAPIKey(apiKey)
	usermanagement.SetAPIKey(apiKey)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkOS{
		createOrganization: organizations.CreateOrganization,
		createMembership:   usermanagement.CreateOrganizationMembership,
		listUsers:          usermanagement.ListUsers,
		listMemberships:    usermanagement.ListOrganizationMemberships,
		deleteMembership:   usermanagement.DeleteOrganizationMembership,
		logger:             logger,
	}
}

// CreateOrganization implements OrganizationAPI. WorkOS has no slug; the local slug stays authoritative.
func (w *WorkOS) CreateOrganization(ctx context.Context, in CreateOrganizationRequest, _ http.Header) (*OrganizationRecord, error) {
	org, err := w.createOrganization(ctx, organizations.CreateOrganizationOpts{Name: in.Name})
	if err != nil {
		return nil, w.upstream("create organization", err, "Failed to create organization")
	}
	return &OrganizationRecord{ID: org.ID, Name: org.Name, Slug: in.Slug}, nil
}

// AddMember implements OrganizationAPI. The returned record keeps the local user id.
func (w *WorkOS) AddMember(ctx context.Context, in AddMemberRequest, _ http.Header) (*MemberRecord, error) {
	userID, err := w.userIDByEmail(ctx, in.Email, "Failed to add member")
	if err != nil {
		return nil, err
	}
	m, err := w.createMembership(ctx, usermanagement.CreateOrganizationMembershipOpts{
		UserID:         userID,
		OrganizationID: in.OrganizationID,
		RoleSlug:       strings.ToLower(in.Role),
	})
	if err != nil {
		return nil, w.upstream("add member", err, "Failed to add member")
	}
	return &MemberRecord{ID: m.ID, OrganizationID: m.OrganizationID, UserID: in.UserID, Role: in.Role}, nil
}

// RemoveMember implements OrganizationAPI.
func (w *WorkOS) RemoveMember(ctx context.Context, in RemoveMemberRequest, _ http.Header) error {
	userID, err := w.userIDByEmail(ctx, in.MemberIDOrEmail, "Failed to remove member")
	if err != nil {
		return err
	}
	memberships, err := w.listMemberships(ctx, usermanagement.ListOrganizationMembershipsOpts{
		OrganizationID: in.OrganizationID,
		UserID:         userID,
	})
	if err != nil {
		return w.upstream("list memberships", err, "Failed to remove member")
	}
	if len(memberships.Data) == 0 {
		return apperr.Upstream(http.StatusNotFound, "Member not found")
	}
	for _, m := range memberships.Data {
		if err := w.deleteMembership(ctx, usermanagement.DeleteOrganizationMembershipOpts{OrganizationMembership: m.ID}); err != nil {
			return w.upstream("delete membership", err, "Failed to remove member")
		}
	}
	return nil
}

// userIDByEmail returns the WorkOS id of the user with the given email.
func (w *WorkOS) userIDByEmail(ctx context.Context, email, failMsg string) (string, error) {
	if email == "" {
		return "", apperr.Upstream(http.StatusNotFound, "Member not found")
	}
	users, err := w.listUsers(ctx, usermanagement.ListUsersOpts{Email: email})
	if err != nil {
		return "", w.upstream("list users", err, failMsg)
	}
	if len(users.Data) == 0 {
		return "", apperr.Upstream(http.StatusNotFound, "Member not found")
	}
	return users.Data[0].ID, nil
}

// upstream carries the WorkOS status and message when the SDK returned an HTTP error, and 500 otherwise.
func (w *WorkOS) upstream(op string, err error, msg string) error {
	w.logger.Warn("workos request failed", zap.String("op", op), zap.Error(err))
	var httpErr workos_errors.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code != 0 {
		if httpErr.Message != "" {
			msg = httpErr.Message
		}
		return apperr.Upstream(httpErr.Code, msg)
	}
	return apperr.Upstream(http.StatusInternalServerError, msg)
}
