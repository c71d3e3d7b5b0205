// Package authprovider talks to the external identity provider that owns sign-in, sessions and the
// provider-side copy of organizations and memberships.
package authprovider

import (
	"context"
	"net/http"
	"time"
)

// Session is a verified provider session reduced to the fields this backend uses.
type Session struct {
	UserID        string
	Email         string
	Name          string
	Image         *string
	EmailVerified bool
	ExpiresAt     time.Time
}

// SessionVerifier resolves request credentials into a session.
// It returns nil, nil when the credentials are absent, garbled, or expired.
type SessionVerifier interface {
	GetSession(ctx context.Context, headers http.Header) (*Session, error)
}

// CreateOrganizationRequest is the provider-side organization create call.
type CreateOrganizationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// AddMemberRequest is the provider-side add-member call. Email identifies the user at providers that
// keep their own user ids.
type AddMemberRequest struct {
	UserID         string `json:"userId"`
	Email          string `json:"-"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
}

// RemoveMemberRequest is the provider-side remove-member call. MemberIDOrEmail carries the user's email.
type RemoveMemberRequest struct {
	MemberIDOrEmail string `json:"memberIdOrEmail"`
	OrganizationID  string `json:"organizationId"`
}

// OrganizationRecord is the provider's view of an organization.
type OrganizationRecord struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Slug    string         `json:"slug"`
	Members []MemberRecord `json:"members"`
}

// MemberRecord is the provider's view of a membership.
type MemberRecord struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	UserID         string `json:"userId"`
	Role           string `json:"role"`
}

// OrganizationAPI mirrors organization and membership changes into the provider.
// Rejections are returned as apperr upstream errors carrying the provider's status and message.
type OrganizationAPI interface {
	CreateOrganization(ctx context.Context, req CreateOrganizationRequest, creds http.Header) (*OrganizationRecord, error)
	AddMember(ctx context.Context, req AddMemberRequest, creds http.Header) (*MemberRecord, error)
	RemoveMember(ctx context.Context, req RemoveMemberRequest, creds http.Header) error
}
