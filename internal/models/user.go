package models

import (
	"time"
)

// GlobalRole is a user-wide permission tier, independent of organization membership.
type GlobalRole string

const (
	GlobalRoleUser       GlobalRole = "USER"
	GlobalRoleSuperAdmin GlobalRole = "SUPER_ADMIN"
)

// Valid reports whether r is a known global role.
func (r GlobalRole) Valid() bool {
	return r == GlobalRoleUser || r == GlobalRoleSuperAdmin
}

// User represents a platform user mirrored from the identity provider.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Image            *string    `json:"image,omitempty"`
	EmailVerified    bool       `json:"emailVerified"`
	ExtensionEnabled bool       `json:"extensionEnabled"`
	Role             GlobalRole `json:"role"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// UserSummary is the user projection nested in organization and member responses.
type UserSummary struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Role             GlobalRole `json:"role"`
	Image            *string    `json:"image,omitempty"`
	ExtensionEnabled bool       `json:"extensionEnabled"`
}

// ToSummary converts User to UserSummary.
func (u *User) ToSummary() UserSummary {
	return UserSummary{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		Image:            u.Image,
		ExtensionEnabled: u.ExtensionEnabled,
	}
}
