package models

import (
	"time"
)

// Organization represents a tenant.
type Organization struct {
	ID string `json:"id"`
	// ProviderID is the organization id assigned by the auth provider; empty when it reuses ID.
	ProviderID string         `json:"-"`
	Name       string         `json:"name"`
	Slug       string         `json:"slug"`
	Logo       *string        `json:"logo,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// ProviderKey returns the id the auth provider knows this organization by.
func (o *Organization) ProviderKey() string {
	if o.ProviderID != "" {
		return o.ProviderID
	}
	return o.ID
}

// Membership roles. The vocabulary is organization scoped; the provider may accept others.
const (
	MemberRoleOwner   = "owner"
	MemberRoleManager = "MANAGER"
	MemberRoleAdmin   = "ADMIN"
	MemberRoleUser    = "USER"
)

// Member links a user to an organization with a role.
type Member struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organizationId"`
	UserID         string       `json:"userId"`
	Role           string       `json:"role"`
	CreatedAt      time.Time    `json:"createdAt"`
	User           *UserSummary `json:"user,omitempty"`
}

// OrganizationDetail is an organization with its members expanded.
type OrganizationDetail struct {
	Organization
	MemberCount int      `json:"memberCount"`
	Members     []Member `json:"members"`
}

// OrganizationPatch carries the optional fields of a partial organization update.
// A nil field is left untouched.
type OrganizationPatch struct {
	Name     *string
	Slug     *string
	Logo     *string
	Metadata map[string]any
}

// Empty reports whether the patch changes nothing.
func (p OrganizationPatch) Empty() bool {
	return p.Name == nil && p.Slug == nil && p.Logo == nil && p.Metadata == nil
}
